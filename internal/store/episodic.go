package store

import (
	"context"
	"database/sql"
)

// CreateEpisodicMemory writes the one episodic memory row created on goal
// terminalization (spec §3 lifecycle).
func (s *Store) CreateEpisodicMemory(ctx context.Context, m EpisodicMemory) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO episodic_memory (id, goal_id, summary, outcome_label, created_at)
			VALUES (?, ?, ?, ?, ?)`, m.ID, m.GoalID, m.Summary, m.OutcomeLabel, m.CreatedAt)
		return err
	})
}

// ListEpisodicMemory returns episodic memory rows, most recent first,
// capped at limit (0 means no cap).
func (s *Store) ListEpisodicMemory(ctx context.Context, limit int) ([]EpisodicMemory, error) {
	query := `SELECT id, goal_id, summary, outcome_label, created_at FROM episodic_memory ORDER BY created_at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, query+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EpisodicMemory
	for rows.Next() {
		var m EpisodicMemory
		if err := rows.Scan(&m.ID, &m.GoalID, &m.Summary, &m.OutcomeLabel, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PutSemanticFact appends a new version of a topic's content. Editing a
// topic never overwrites; it inserts the next version (spec §3: "editing
// produces a new version").
func (s *Store) PutSemanticFact(ctx context.Context, f SemanticFact) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM semantic_facts WHERE topic = ?`, f.Topic)
		if err := row.Scan(&f.Version); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO semantic_facts (id, topic, content, provenance, version, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`, f.ID, f.Topic, f.Content, f.Provenance, f.Version, f.CreatedAt)
		return err
	})
}

// LatestSemanticFact returns the highest-versioned fact for a topic.
func (s *Store) LatestSemanticFact(ctx context.Context, topic string) (SemanticFact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, topic, content, provenance, version, created_at
		FROM semantic_facts WHERE topic = ? ORDER BY version DESC LIMIT 1`, topic)
	var f SemanticFact
	err := row.Scan(&f.ID, &f.Topic, &f.Content, &f.Provenance, &f.Version, &f.CreatedAt)
	return f, err
}
