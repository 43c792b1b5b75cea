package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Djtony707/TITAN/internal/apperr"
)

// PersistRunBundle atomically writes a goal's plan plus its ordinal-dense
// steps plus any trace events produced while planning, satisfying the
// "persist_run_bundle" contract (spec §4.2). Plans are immutable once
// written: calling this twice for the same goal is a caller bug, not
// something this method reconciles.
func (s *Store) PersistRunBundle(ctx context.Context, plan Plan, steps []Step, traces []TraceEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		candidatesJSON, err := json.Marshal(plan.Candidates)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO plans (id, goal_id, candidates_json, selected_index, score_breakdown_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			plan.ID, plan.GoalID, string(candidatesJSON), plan.SelectedIndex, plan.ScoreBreakdownJSON, plan.CreatedAt); err != nil {
			return fmt.Errorf("insert plan: %w", err)
		}

		for _, st := range steps {
			if err := insertStep(ctx, tx, st); err != nil {
				return err
			}
		}

		for _, ev := range traces {
			if err := insertTrace(ctx, tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertStep(ctx context.Context, tx *sql.Tx, st Step) error {
	argsJSON, err := json.Marshal(st.Args)
	if err != nil {
		return err
	}
	reqIn, err := json.Marshal(st.RequiredInputs)
	if err != nil {
		return err
	}
	reqOut, err := json.Marshal(st.RequiredOutputs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO steps
		(id, plan_id, ordinal, tool_name, args_json, args_digest, capability_class,
		 required_inputs_json, required_outputs_json, state, result_json, error_text, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.PlanID, st.Ordinal, st.ToolName, string(argsJSON), st.ArgsDigest, st.CapabilityClass,
		string(reqIn), string(reqOut), st.State, nullIfEmpty(st.Result), nullIfEmpty(st.ErrorText), st.StartedAt, st.FinishedAt)
	return err
}

// RecordStepOutcome writes a step's terminal (or awaiting/running)
// transition. It rejects the write if the step is already in a terminal
// state, guarding against duplicate executor resumption re-applying a
// stale outcome (spec §4.2, testable property 7).
func (s *Store) RecordStepOutcome(ctx context.Context, stepID string, state StepState, result, errText string, finishedAt *time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT state FROM steps WHERE id = ?`, stepID)
		var current StepState
		if err := row.Scan(&current); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("step %s not found", stepID)
			}
			return err
		}
		if current.Terminal() {
			return apperr.Invariant("step_already_terminal", fmt.Errorf("step %s already %s", stepID, current))
		}
		_, err := tx.ExecContext(ctx, `UPDATE steps SET state = ?, result_json = ?, error_text = ?, finished_at = ? WHERE id = ?`,
			state, nullIfEmpty(result), nullIfEmpty(errText), finishedAt, stepID)
		return err
	})
}

// SetStepState is a lighter transition used for queued->awaiting_approval
// and awaiting_approval/queued->running, which don't yet carry a result.
func (s *Store) SetStepState(ctx context.Context, stepID string, state StepState, startedAt *time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE steps SET state = ?, started_at = COALESCE(started_at, ?) WHERE id = ?`, state, startedAt, stepID)
		return err
	})
}

// GetPlanByGoal loads a goal's most recently created plan. A goal can
// accumulate more than one plan row across a localized replan (spec §4.8
// point 4), so this orders by creation time rather than assuming one row
// per goal.
func (s *Store) GetPlanByGoal(ctx context.Context, goalID string) (Plan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, goal_id, candidates_json, selected_index, score_breakdown_json, created_at
		FROM plans WHERE goal_id = ? ORDER BY created_at DESC LIMIT 1`, goalID)
	var p Plan
	var candJSON string
	if err := row.Scan(&p.ID, &p.GoalID, &candJSON, &p.SelectedIndex, &p.ScoreBreakdownJSON, &p.CreatedAt); err != nil {
		return Plan{}, err
	}
	if err := json.Unmarshal([]byte(candJSON), &p.Candidates); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// ListSteps returns every step for a plan, ordered by ordinal.
func (s *Store) ListSteps(ctx context.Context, planID string) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, plan_id, ordinal, tool_name, args_json, args_digest, capability_class,
		required_inputs_json, required_outputs_json, state, result_json, error_text, started_at, finished_at
		FROM steps WHERE plan_id = ? ORDER BY ordinal ASC`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Step
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanStep(row rowScanner) (Step, error) {
	var st Step
	var argsJSON, reqIn, reqOut string
	var result, errText sql.NullString
	var started, finished sql.NullTime
	if err := row.Scan(&st.ID, &st.PlanID, &st.Ordinal, &st.ToolName, &argsJSON, &st.ArgsDigest, &st.CapabilityClass,
		&reqIn, &reqOut, &st.State, &result, &errText, &started, &finished); err != nil {
		return Step{}, err
	}
	st.Result = result.String
	st.ErrorText = errText.String
	if started.Valid {
		st.StartedAt = &started.Time
	}
	if finished.Valid {
		st.FinishedAt = &finished.Time
	}
	_ = json.Unmarshal([]byte(argsJSON), &st.Args)
	_ = json.Unmarshal([]byte(reqIn), &st.RequiredInputs)
	_ = json.Unmarshal([]byte(reqOut), &st.RequiredOutputs)
	return st, nil
}
