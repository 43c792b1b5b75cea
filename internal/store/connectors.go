package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// UpsertConnector inserts or replaces a connector's non-secret metadata.
// The secret itself never reaches this table (spec §3, §4.10).
func (s *Store) UpsertConnector(ctx context.Context, c Connector) error {
	fields, err := json.Marshal(c.Fields)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO connectors (id, type, display_name, fields_json, secret_key)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET type=excluded.type, display_name=excluded.display_name,
				fields_json=excluded.fields_json, secret_key=excluded.secret_key`,
			c.ID, c.Type, c.DisplayName, string(fields), nullIfEmpty(c.SecretKey))
		return err
	})
}

// GetConnector loads one connector by id.
func (s *Store) GetConnector(ctx context.Context, id string) (Connector, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, type, display_name, fields_json, secret_key FROM connectors WHERE id = ?`, id)
	return scanConnector(row)
}

// ListConnectors returns every connector.
func (s *Store) ListConnectors(ctx context.Context) ([]Connector, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, type, display_name, fields_json, secret_key FROM connectors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Connector
	for rows.Next() {
		c, err := scanConnector(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RemoveConnector deletes a connector by id.
func (s *Store) RemoveConnector(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM connectors WHERE id = ?`, id)
		return err
	})
}

func scanConnector(row rowScanner) (Connector, error) {
	var c Connector
	var fieldsJSON string
	var secretKey sql.NullString
	if err := row.Scan(&c.ID, &c.Type, &c.DisplayName, &fieldsJSON, &secretKey); err != nil {
		return Connector{}, err
	}
	c.SecretKey = secretKey.String
	_ = json.Unmarshal([]byte(fieldsJSON), &c.Fields)
	return c, nil
}
