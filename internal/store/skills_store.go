package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

// UpsertInstalledSkill inserts or replaces an installed skill row and its
// matching lockfile entry in one transaction (spec §4.6 step 6).
func (s *Store) UpsertInstalledSkill(ctx context.Context, sk InstalledSkill) error {
	scopes, err := json.Marshal(sk.Scopes)
	if err != nil {
		return err
	}
	paths, err := json.Marshal(sk.AllowedPaths)
	if err != nil {
		return err
	}
	hosts, err := json.Marshal(sk.AllowedHosts)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO installed_skills
			(slug, version, source, bundle_hash, scopes_json, allowed_paths_json, allowed_hosts_json, signature_status, last_run_goal_id, installed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(slug) DO UPDATE SET
				version=excluded.version, source=excluded.source, bundle_hash=excluded.bundle_hash,
				scopes_json=excluded.scopes_json, allowed_paths_json=excluded.allowed_paths_json,
				allowed_hosts_json=excluded.allowed_hosts_json, signature_status=excluded.signature_status,
				last_run_goal_id=excluded.last_run_goal_id, installed_at=excluded.installed_at`,
			sk.Slug, sk.Version, sk.Source, sk.BundleHash, string(scopes), string(paths), string(hosts),
			sk.SignatureStatus, nullIfEmpty(sk.LastRunGoalID), sk.InstalledAt)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO skill_lockfile (slug, version, source, bundle_hash)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(slug) DO UPDATE SET version=excluded.version, source=excluded.source, bundle_hash=excluded.bundle_hash`,
			sk.Slug, sk.Version, sk.Source, sk.BundleHash)
		return err
	})
}

// SetSkillLastRunGoal rotates (or clears, when goalID is empty) the
// installed skill's last_run_goal_id. It has no caller at present
// (`skill update` is not implemented).
func (s *Store) SetSkillLastRunGoal(ctx context.Context, slug, goalID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE installed_skills SET last_run_goal_id = ? WHERE slug = ?`, nullIfEmpty(goalID), slug)
		return err
	})
}

// GetInstalledSkill loads one installed skill by slug.
func (s *Store) GetInstalledSkill(ctx context.Context, slug string) (InstalledSkill, error) {
	row := s.db.QueryRowContext(ctx, `SELECT slug, version, source, bundle_hash, scopes_json, allowed_paths_json,
		allowed_hosts_json, signature_status, last_run_goal_id, installed_at FROM installed_skills WHERE slug = ?`, slug)
	return scanInstalledSkill(row)
}

// ListInstalledSkills returns every installed skill.
func (s *Store) ListInstalledSkills(ctx context.Context) ([]InstalledSkill, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slug, version, source, bundle_hash, scopes_json, allowed_paths_json,
		allowed_hosts_json, signature_status, last_run_goal_id, installed_at FROM installed_skills`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []InstalledSkill
	for rows.Next() {
		sk, err := scanInstalledSkill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

func scanInstalledSkill(row rowScanner) (InstalledSkill, error) {
	var sk InstalledSkill
	var lastRun sql.NullString
	var scopesJSON, pathsJSON, hostsJSON string
	if err := row.Scan(&sk.Slug, &sk.Version, &sk.Source, &sk.BundleHash, &scopesJSON, &pathsJSON, &hostsJSON,
		&sk.SignatureStatus, &lastRun, &sk.InstalledAt); err != nil {
		return InstalledSkill{}, err
	}
	sk.LastRunGoalID = lastRun.String
	_ = json.Unmarshal([]byte(scopesJSON), &sk.Scopes)
	_ = json.Unmarshal([]byte(pathsJSON), &sk.AllowedPaths)
	_ = json.Unmarshal([]byte(hostsJSON), &sk.AllowedHosts)
	return sk, nil
}

// RemoveInstalledSkill deletes an installed skill and its lockfile entry.
func (s *Store) RemoveInstalledSkill(ctx context.Context, slug string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM installed_skills WHERE slug = ?`, slug); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM skill_lockfile WHERE slug = ?`, slug)
		return err
	})
}

// Lockfile returns every pinned entry, sorted by slug, for canonical
// serialization (spec §6: "two installs with the same resolution produce
// identical bytes").
func (s *Store) Lockfile(ctx context.Context) ([]SkillLockEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slug, version, source, bundle_hash FROM skill_lockfile ORDER BY slug ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SkillLockEntry
	for rows.Next() {
		var e SkillLockEntry
		if err := rows.Scan(&e.Slug, &e.Version, &e.Source, &e.BundleHash); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
