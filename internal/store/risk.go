package store

import (
	"context"
	"database/sql"
	"time"
)

// GetYoloArmedUntil returns the wall-clock deadline YOLO bypass was last
// armed until (spec §4.3: "a wall-clock expiry set at arming time"), or nil
// if it has never been armed or has since been disarmed.
func (s *Store) GetYoloArmedUntil(ctx context.Context) (*time.Time, error) {
	var armedUntil sql.NullTime
	row := s.db.QueryRowContext(ctx, `SELECT armed_until FROM risk_state WHERE id = 1`)
	if err := row.Scan(&armedUntil); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if !armedUntil.Valid {
		return nil, nil
	}
	t := armedUntil.Time.UTC()
	return &t, nil
}

// SetYoloArmedUntil arms (or re-arms) YOLO bypass until the given deadline.
// Only the `titan yolo arm` command calls this (spec §4.3: "only settable
// from the local terminal surface").
func (s *Store) SetYoloArmedUntil(ctx context.Context, until time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE risk_state SET armed_until = ? WHERE id = 1`, until.UTC())
		return err
	})
}

// ClearYoloArmed disarms YOLO bypass immediately, independent of its
// previous deadline.
func (s *Store) ClearYoloArmed(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE risk_state SET armed_until = NULL WHERE id = 1`)
		return err
	})
}
