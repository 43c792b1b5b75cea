package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// CreateJob inserts a new scheduled job.
func (s *Store) CreateJob(ctx context.Context, j Job) error {
	scopes, err := json.Marshal(j.AllowedScopes)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO jobs
			(id, name, schedule_kind, schedule_value, goal_template, mode, allowed_scopes_json, enabled, next_fire_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			j.ID, j.Name, j.ScheduleKind, j.ScheduleValue, j.GoalTemplate, j.Mode, string(scopes), j.Enabled, j.NextFireAt)
		return err
	})
}

// NextDueJobs returns every enabled job whose next-fire time is at or
// before now (spec §4.2 contract "next_due_jobs").
func (s *Store) NextDueJobs(ctx context.Context, now time.Time) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, schedule_kind, schedule_value, goal_template, mode,
		allowed_scopes_json, enabled, last_run_at, last_status, next_fire_at
		FROM jobs WHERE enabled = 1 AND next_fire_at IS NOT NULL AND next_fire_at <= ?`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// SetJobEnabled toggles a job's enabled flag (pause/resume, spec §4.9).
func (s *Store) SetJobEnabled(ctx context.Context, jobID string, enabled bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE jobs SET enabled = ? WHERE id = ?`, enabled, jobID)
		return err
	})
}

// SetJobNextFire updates a job's schedule bookkeeping after a run.
func (s *Store) SetJobNextFire(ctx context.Context, jobID string, nextFireAt time.Time, lastRunAt time.Time, lastStatus string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE jobs SET next_fire_at = ?, last_run_at = ?, last_status = ? WHERE id = ?`,
			nextFireAt, lastRunAt, lastStatus, jobID)
		return err
	})
}

// GetJob loads a single job by id.
func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, schedule_kind, schedule_value, goal_template, mode,
		allowed_scopes_json, enabled, last_run_at, last_status, next_fire_at FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ListJobs returns every job.
func (s *Store) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, schedule_kind, schedule_value, goal_template, mode,
		allowed_scopes_json, enabled, last_run_at, last_status, next_fire_at FROM jobs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// RemoveJob deletes a job and cascades to its job runs.
func (s *Store) RemoveJob(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
		return err
	})
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var scopesJSON string
	var lastRunAt, nextFireAt sql.NullTime
	var lastStatus sql.NullString
	if err := row.Scan(&j.ID, &j.Name, &j.ScheduleKind, &j.ScheduleValue, &j.GoalTemplate, &j.Mode,
		&scopesJSON, &j.Enabled, &lastRunAt, &lastStatus, &nextFireAt); err != nil {
		return Job{}, err
	}
	if lastRunAt.Valid {
		j.LastRunAt = &lastRunAt.Time
	}
	if nextFireAt.Valid {
		j.NextFireAt = &nextFireAt.Time
	}
	j.LastStatus = lastStatus.String
	_ = json.Unmarshal([]byte(scopesJSON), &j.AllowedScopes)
	return j, nil
}

// CreateJobRun inserts a new in-flight job run row.
func (s *Store) CreateJobRun(ctx context.Context, r JobRun) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO job_runs (id, job_id, started_at, status, goal_id)
			VALUES (?, ?, ?, ?, ?)`, r.ID, r.JobID, r.StartedAt, r.Status, nullIfEmpty(r.GoalID))
		return err
	})
}

// FinishJobRun records a job run's terminal status.
func (s *Store) FinishJobRun(ctx context.Context, id string, status JobRunStatus, finishedAt time.Time, errSummary string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE job_runs SET status = ?, finished_at = ?, error_summary = ? WHERE id = ?`,
			status, finishedAt, nullIfEmpty(errSummary), id)
		return err
	})
}

// ActiveJobRun returns the currently-running job run for a job, if any —
// used to implement the per-job lock (spec §4.9, testable property 6).
func (s *Store) ActiveJobRun(ctx context.Context, jobID string) (JobRun, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, job_id, started_at, finished_at, status, goal_id, error_summary
		FROM job_runs WHERE job_id = ? AND finished_at IS NULL ORDER BY started_at DESC LIMIT 1`, jobID)
	var r JobRun
	var goalID, errSummary sql.NullString
	var finishedAt sql.NullTime
	err := row.Scan(&r.ID, &r.JobID, &r.StartedAt, &finishedAt, &r.Status, &goalID, &errSummary)
	if err == sql.ErrNoRows {
		return JobRun{}, false, nil
	}
	if err != nil {
		return JobRun{}, false, err
	}
	r.GoalID = goalID.String
	r.ErrorSummary = errSummary.String
	return r, true, nil
}

// ListJobRuns returns every run of a job, most recent first.
func (s *Store) ListJobRuns(ctx context.Context, jobID string) ([]JobRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, job_id, started_at, finished_at, status, goal_id, error_summary
		FROM job_runs WHERE job_id = ? ORDER BY started_at DESC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobRun
	for rows.Next() {
		var r JobRun
		var goalID, errSummary sql.NullString
		var finishedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.JobID, &r.StartedAt, &finishedAt, &r.Status, &goalID, &errSummary); err != nil {
			return nil, err
		}
		if finishedAt.Valid {
			r.FinishedAt = &finishedAt.Time
		}
		r.GoalID = goalID.String
		r.ErrorSummary = errSummary.String
		out = append(out, r)
	}
	return out, rows.Err()
}
