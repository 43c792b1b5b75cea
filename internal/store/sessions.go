package store

import (
	"context"
	"database/sql"
)

// UpsertSession records or updates a goal's resumable execution context
// (spec §4.8: the executor checkpoints progress so a restart can resume
// rather than replan from scratch).
func (s *Store) UpsertSession(ctx context.Context, sess Session) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO sessions (goal_id, current_step_ordinal, suspended_at, resume_reason)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(goal_id) DO UPDATE SET
				current_step_ordinal=excluded.current_step_ordinal,
				suspended_at=excluded.suspended_at,
				resume_reason=excluded.resume_reason`,
			sess.GoalID, sess.CurrentStepOrdinal, sess.SuspendedAt, nullIfEmpty(sess.ResumeReason))
		return err
	})
}

// GetSession loads a goal's session row, if one exists.
func (s *Store) GetSession(ctx context.Context, goalID string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT goal_id, current_step_ordinal, suspended_at, resume_reason
		FROM sessions WHERE goal_id = ?`, goalID)
	return scanSession(row)
}

// ListSuspendedSessions returns every session still awaiting resume. The
// startup resume path does not use it; it lists goals through
// ListNonTerminalGoals instead.
func (s *Store) ListSuspendedSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT goal_id, current_step_ordinal, suspended_at, resume_reason
		FROM sessions WHERE suspended_at IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a goal's session row once it reaches a terminal
// state and no longer needs to be resumable.
func (s *Store) DeleteSession(ctx context.Context, goalID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE goal_id = ?`, goalID)
		return err
	})
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var suspendedAt sql.NullTime
	var resumeReason sql.NullString
	if err := row.Scan(&sess.GoalID, &sess.CurrentStepOrdinal, &suspendedAt, &resumeReason); err != nil {
		return Session{}, err
	}
	if suspendedAt.Valid {
		sess.SuspendedAt = &suspendedAt.Time
	}
	sess.ResumeReason = resumeReason.String
	return sess, nil
}
