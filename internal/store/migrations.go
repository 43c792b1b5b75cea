package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CurrentSchemaVersion is bumped whenever a migration is appended.
// Schema history:
//
//	v1: goals, plans, steps, trace_events, approvals, episodic_memory
//	v2: semantic_facts, installed_skills, skill_lockfile
//	v3: jobs, job_runs, connectors, sessions
//	v4: approvals.summary_note
//	v5: risk_state
const CurrentSchemaVersion = 5

// migration is one forward-only schema step, applied inside the same
// transaction as the version bump that follows it.
type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS goals (
				id TEXT PRIMARY KEY,
				description TEXT NOT NULL,
				origin TEXT NOT NULL,
				channel_target TEXT,
				actor_id TEXT,
				dedupe_key TEXT,
				submitted_at DATETIME NOT NULL,
				state TEXT NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_goals_dedupe_nonterminal
				ON goals(dedupe_key)
				WHERE dedupe_key IS NOT NULL AND state NOT IN ('done','failed','cancelled')`,
			`CREATE TABLE IF NOT EXISTS plans (
				id TEXT PRIMARY KEY,
				goal_id TEXT NOT NULL REFERENCES goals(id) ON DELETE CASCADE,
				candidates_json TEXT NOT NULL,
				selected_index INTEGER NOT NULL,
				score_breakdown_json TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS steps (
				id TEXT PRIMARY KEY,
				plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
				ordinal INTEGER NOT NULL,
				tool_name TEXT NOT NULL,
				args_json TEXT NOT NULL,
				args_digest TEXT NOT NULL,
				capability_class TEXT NOT NULL,
				required_inputs_json TEXT NOT NULL,
				required_outputs_json TEXT NOT NULL,
				state TEXT NOT NULL,
				result_json TEXT,
				error_text TEXT,
				started_at DATETIME,
				finished_at DATETIME,
				UNIQUE(plan_id, ordinal)
			)`,
			`CREATE TABLE IF NOT EXISTS trace_events (
				id TEXT PRIMARY KEY,
				goal_id TEXT NOT NULL REFERENCES goals(id) ON DELETE CASCADE,
				step_id TEXT,
				kind TEXT NOT NULL,
				payload_json TEXT NOT NULL,
				seq INTEGER NOT NULL,
				risk_mode TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				UNIQUE(goal_id, seq)
			)`,
			`CREATE TABLE IF NOT EXISTS approvals (
				id TEXT PRIMARY KEY,
				tool_name TEXT NOT NULL,
				step_id TEXT,
				scopes_json TEXT NOT NULL,
				paths_json TEXT NOT NULL,
				hosts_json TEXT NOT NULL,
				bundle_hash TEXT,
				signature_status TEXT NOT NULL,
				ttl_deadline DATETIME NOT NULL,
				resolver_identity TEXT,
				decision TEXT,
				reason TEXT,
				created_at DATETIME NOT NULL,
				decided_at DATETIME
			)`,
			`CREATE TABLE IF NOT EXISTS episodic_memory (
				id TEXT PRIMARY KEY,
				goal_id TEXT NOT NULL REFERENCES goals(id) ON DELETE CASCADE,
				summary TEXT NOT NULL,
				outcome_label TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
		},
	},
	{
		version: 2,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS semantic_facts (
				id TEXT PRIMARY KEY,
				topic TEXT NOT NULL,
				content TEXT NOT NULL,
				provenance TEXT NOT NULL,
				version INTEGER NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_semantic_facts_topic ON semantic_facts(topic)`,
			`CREATE TABLE IF NOT EXISTS installed_skills (
				slug TEXT PRIMARY KEY,
				version TEXT NOT NULL,
				source TEXT NOT NULL,
				bundle_hash TEXT NOT NULL,
				scopes_json TEXT NOT NULL,
				allowed_paths_json TEXT NOT NULL,
				allowed_hosts_json TEXT NOT NULL,
				signature_status TEXT NOT NULL,
				last_run_goal_id TEXT,
				installed_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS skill_lockfile (
				slug TEXT PRIMARY KEY,
				version TEXT NOT NULL,
				source TEXT NOT NULL,
				bundle_hash TEXT NOT NULL
			)`,
		},
	},
	{
		version: 3,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS jobs (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				schedule_kind TEXT NOT NULL,
				schedule_value TEXT NOT NULL,
				goal_template TEXT NOT NULL,
				mode TEXT NOT NULL,
				allowed_scopes_json TEXT NOT NULL,
				enabled INTEGER NOT NULL DEFAULT 1,
				last_run_at DATETIME,
				last_status TEXT,
				next_fire_at DATETIME
			)`,
			`CREATE TABLE IF NOT EXISTS job_runs (
				id TEXT PRIMARY KEY,
				job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
				started_at DATETIME NOT NULL,
				finished_at DATETIME,
				status TEXT NOT NULL,
				goal_id TEXT,
				error_summary TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS connectors (
				id TEXT PRIMARY KEY,
				type TEXT NOT NULL,
				display_name TEXT NOT NULL,
				fields_json TEXT NOT NULL,
				secret_key TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				goal_id TEXT PRIMARY KEY REFERENCES goals(id) ON DELETE CASCADE,
				current_step_ordinal INTEGER NOT NULL,
				suspended_at DATETIME,
				resume_reason TEXT
			)`,
		},
	},
	{
		version: 4,
		stmts: []string{
			`ALTER TABLE approvals ADD COLUMN summary_note TEXT`,
		},
	},
	{
		version: 5,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS risk_state (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				armed_until DATETIME
			)`,
			`INSERT INTO risk_state (id, armed_until) VALUES (1, NULL)`,
		},
	},
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}

	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration v%d: %w", m.version, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM schema_version`); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (?)`, m.version)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`)
	var v int
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}
