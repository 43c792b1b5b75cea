package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Djtony707/TITAN/internal/apperr"
)

// CreateGoal inserts a new goal with the state given in g.State. Returns
// apperr.Validation if dedupe_key collides with a non-terminal goal (spec
// §8 boundary behavior) or if description is empty.
func (s *Store) CreateGoal(ctx context.Context, g Goal) error {
	if g.Description == "" {
		return apperr.Validation("empty_goal_description", nil)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if g.DedupeKey != "" {
			row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM goals WHERE dedupe_key = ? AND state NOT IN ('done','failed','cancelled')`, g.DedupeKey)
			var n int
			if err := row.Scan(&n); err != nil {
				return err
			}
			if n > 0 {
				return apperr.Validation("duplicate_dedupe_key", nil)
			}
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO goals
			(id, description, origin, channel_target, actor_id, dedupe_key, submitted_at, state)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			g.ID, g.Description, g.Origin, g.ChannelTarget, g.ActorID, nullIfEmpty(g.DedupeKey), g.SubmittedAt, g.State)
		return err
	})
}

// SetGoalState performs the goal's next state transition. Callers are
// responsible for only requesting legal transitions (spec §3: "Terminal
// state is monotone").
func (s *Store) SetGoalState(ctx context.Context, goalID string, state GoalState) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE goals SET state = ? WHERE id = ?`, state, goalID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("goal %s not found", goalID)
		}
		return nil
	})
}

// GetGoal loads a single goal by id.
func (s *Store) GetGoal(ctx context.Context, id string) (Goal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, description, origin, channel_target, actor_id, dedupe_key, submitted_at, state FROM goals WHERE id = ?`, id)
	return scanGoal(row)
}

// ListNonTerminalGoals returns every goal not yet in a terminal state, used
// by session resume at process restart (spec §4.8).
func (s *Store) ListNonTerminalGoals(ctx context.Context) ([]Goal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, description, origin, channel_target, actor_id, dedupe_key, submitted_at, state
		FROM goals WHERE state NOT IN ('done','failed','cancelled')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListGoals returns the most recently submitted goals, newest first, up to
// limit (<= 0 means no limit). Used by the read-only listing surfaces
// (spec §6: CLI `goal show`/HTTP goal listing).
func (s *Store) ListGoals(ctx context.Context, limit int) ([]Goal, error) {
	query := `SELECT id, description, origin, channel_target, actor_id, dedupe_key, submitted_at, state
		FROM goals ORDER BY submitted_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (Goal, error) {
	var g Goal
	var dedupe sql.NullString
	var channel, actor sql.NullString
	if err := row.Scan(&g.ID, &g.Description, &g.Origin, &channel, &actor, &dedupe, &g.SubmittedAt, &g.State); err != nil {
		return Goal{}, err
	}
	g.DedupeKey = dedupe.String
	g.ChannelTarget = channel.String
	g.ActorID = actor.String
	return g, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
