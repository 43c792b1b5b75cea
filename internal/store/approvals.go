package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Djtony707/TITAN/internal/apperr"
)

// CreateApproval inserts a new pending approval request.
func (s *Store) CreateApproval(ctx context.Context, a Approval) error {
	scopes, err := json.Marshal(a.Scopes)
	if err != nil {
		return err
	}
	paths, err := json.Marshal(a.Paths)
	if err != nil {
		return err
	}
	hosts, err := json.Marshal(a.Hosts)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO approvals
			(id, tool_name, step_id, scopes_json, paths_json, hosts_json, bundle_hash, signature_status, ttl_deadline, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.ToolName, nullIfEmpty(a.StepID), string(scopes), string(paths), string(hosts),
			nullIfEmpty(a.BundleHash), a.SignatureStatus, a.TTLDeadline, a.CreatedAt)
		return err
	})
}

// ClaimPendingApproval conditionally records a decision: it only succeeds
// if the approval is still pending, and returns the approval's state as it
// stood before the attempted claim so callers can detect a lost race as an
// "already resolved" condition (spec §4.2, §4.4, testable property 3)
// instead of corrupting state with a second write.
func (s *Store) ClaimPendingApproval(ctx context.Context, id, resolver string, decision Decision, reason string) (previous Approval, claimed bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT id, tool_name, step_id, scopes_json, paths_json, hosts_json, bundle_hash,
			signature_status, ttl_deadline, resolver_identity, decision, reason, summary_note, created_at, decided_at
			FROM approvals WHERE id = ?`, id)
		a, scanErr := scanApproval(row)
		if scanErr != nil {
			if scanErr == sql.ErrNoRows {
				return fmt.Errorf("approval %s not found", id)
			}
			return scanErr
		}
		previous = a
		if !a.Pending() {
			claimed = false
			return nil
		}
		now := time.Now()
		_, execErr := tx.ExecContext(ctx, `UPDATE approvals SET resolver_identity = ?, decision = ?, reason = ?, decided_at = ?
			WHERE id = ? AND decision IS NULL`, resolver, decision, reason, now, id)
		if execErr != nil {
			return execErr
		}
		claimed = true
		return nil
	})
	return previous, claimed, err
}

// ExpirePastDeadline marks every still-pending approval whose TTL has
// elapsed as decision="timeout" (spec §4.4), returning the ids so the
// caller can fail the gated steps.
func (s *Store) ExpirePastDeadline(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM approvals WHERE decision IS NULL AND ttl_deadline <= ?`, now)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `UPDATE approvals SET decision = 'timeout', reason = 'ttl_expired', decided_at = ?
				WHERE id = ? AND decision IS NULL`, now, id); err != nil {
				return err
			}
		}
		return nil
	})
	return ids, err
}

// GetApproval loads a single approval by id.
func (s *Store) GetApproval(ctx context.Context, id string) (Approval, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, tool_name, step_id, scopes_json, paths_json, hosts_json, bundle_hash,
		signature_status, ttl_deadline, resolver_identity, decision, reason, summary_note, created_at, decided_at
		FROM approvals WHERE id = ?`, id)
	a, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return Approval{}, apperr.Validation("approval_not_found", err)
	}
	return a, err
}

// GetApprovalByStepID returns the most recently created approval gating a
// step, used by the Run Executor to resume a goal suspended in
// awaiting_approval without issuing a duplicate approval request for work
// that was already gated before a restart.
func (s *Store) GetApprovalByStepID(ctx context.Context, stepID string) (Approval, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, tool_name, step_id, scopes_json, paths_json, hosts_json, bundle_hash,
		signature_status, ttl_deadline, resolver_identity, decision, reason, summary_note, created_at, decided_at
		FROM approvals WHERE step_id = ? ORDER BY created_at DESC LIMIT 1`, stepID)
	a, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return Approval{}, apperr.Validation("approval_not_found_for_step", err)
	}
	return a, err
}

// ListPendingApprovals returns every approval still awaiting a decision.
func (s *Store) ListPendingApprovals(ctx context.Context) ([]Approval, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, tool_name, step_id, scopes_json, paths_json, hosts_json, bundle_hash,
		signature_status, ttl_deadline, resolver_identity, decision, reason, summary_note, created_at, decided_at
		FROM approvals WHERE decision IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetApprovalSummaryNote attaches a human-readable note to a pending
// approval, surfaced alongside its scopes/paths/hosts to whoever resolves
// it. Callers that generate this out of band (e.g. an LLM-backed bundle
// review) write it after CreateApproval and before the approval is
// resolved; it has no effect on the approval's own state machine.
func (s *Store) SetApprovalSummaryNote(ctx context.Context, id, note string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE approvals SET summary_note = ? WHERE id = ?`, note, id)
	return err
}

// ListApprovals returns every approval, pending or resolved, newest first
// (spec §6: CLI `approval list` / HTTP approval listing).
func (s *Store) ListApprovals(ctx context.Context) ([]Approval, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, tool_name, step_id, scopes_json, paths_json, hosts_json, bundle_hash,
		signature_status, ttl_deadline, resolver_identity, decision, reason, summary_note, created_at, decided_at
		FROM approvals ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanApproval(row rowScanner) (Approval, error) {
	var a Approval
	var stepID, bundleHash, resolver, decision, reason, summaryNote sql.NullString
	var decidedAt sql.NullTime
	var scopesJSON, pathsJSON, hostsJSON string
	if err := row.Scan(&a.ID, &a.ToolName, &stepID, &scopesJSON, &pathsJSON, &hostsJSON, &bundleHash,
		&a.SignatureStatus, &a.TTLDeadline, &resolver, &decision, &reason, &summaryNote, &a.CreatedAt, &decidedAt); err != nil {
		return Approval{}, err
	}
	a.StepID = stepID.String
	a.BundleHash = bundleHash.String
	a.ResolverIdentity = resolver.String
	a.Decision = Decision(decision.String)
	a.Reason = reason.String
	a.SummaryNote = summaryNote.String
	if decidedAt.Valid {
		a.DecidedAt = &decidedAt.Time
	}
	_ = json.Unmarshal([]byte(scopesJSON), &a.Scopes)
	_ = json.Unmarshal([]byte(pathsJSON), &a.Paths)
	_ = json.Unmarshal([]byte(hostsJSON), &a.Hosts)
	return a, nil
}
