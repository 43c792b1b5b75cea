package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// AppendTrace writes one trace event, assigning it the next sequence number
// for its goal inside the same transaction that inserts it — satisfying
// testable property 4 (strictly increasing, contiguous sequence per goal).
func (s *Store) AppendTrace(ctx context.Context, ev TraceEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertTrace(ctx, tx, ev)
	})
}

func insertTrace(ctx context.Context, tx *sql.Tx, ev TraceEvent) error {
	if ev.Seq == 0 {
		row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM trace_events WHERE goal_id = ?`, ev.GoalID)
		if err := row.Scan(&ev.Seq); err != nil {
			return err
		}
	}
	payloadJSON, err := json.Marshal(ev.Payload)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO trace_events (id, goal_id, step_id, kind, payload_json, seq, risk_mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.GoalID, nullIfEmpty(ev.StepID), ev.Kind, string(payloadJSON), ev.Seq, ev.RiskMode, ev.CreatedAt)
	return err
}

// ListTraces returns every trace event for a goal in sequence order.
func (s *Store) ListTraces(ctx context.Context, goalID string) ([]TraceEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, goal_id, step_id, kind, payload_json, seq, risk_mode, created_at
		FROM trace_events WHERE goal_id = ? ORDER BY seq ASC`, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TraceEvent
	for rows.Next() {
		var ev TraceEvent
		var stepID sql.NullString
		var payloadJSON string
		if err := rows.Scan(&ev.ID, &ev.GoalID, &stepID, &ev.Kind, &payloadJSON, &ev.Seq, &ev.RiskMode, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.StepID = stepID.String
		_ = json.Unmarshal([]byte(payloadJSON), &ev.Payload)
		out = append(out, ev)
	}
	return out, rows.Err()
}
