// Package store implements TITAN's embedded relational Persistent Store
// (spec §4.2): goals, plans, steps, traces, approvals, episodic memory,
// connector metadata, jobs, job runs, installed skills, and the skills
// lockfile, all in one SQLite database opened in WAL mode.
//
// Grounded on the teacher's internal/store.LocalStore: a single *sql.DB
// guarded by a sync.RWMutex, opened once at boot, with a versioned
// migration pass applied before first use.
package store

import (
	"context"
	"database/sql"
	"fmt"
	mathrand "math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Djtony707/TITAN/internal/logging"
)

// Store wraps the embedded database and exposes the transactional
// operations every core component needs.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// Open opens (creating if necessary) the SQLite database at path, enables
// WAL journaling and full synchronous durability (spec §4.2), and applies
// any pending schema migrations.
func Open(path string) (*Store, error) {
	log := logging.For(logging.CategoryStore)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer: WAL handles concurrent readers, not concurrent writers

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	log.Sugar().Infof("store opened at %s (schema v%d)", path, CurrentSchemaVersion)
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// maxBusyRetries bounds the retry-with-jitter loop in withTx (spec §5: "the
// core treats busy responses as a signal to retry with jitter"). s.mu plus
// db.SetMaxOpenConns(1) rule out same-process contention; this covers a
// second OS process (or a WAL checkpoint) touching the same database file.
const maxBusyRetries = 5

// withTx runs fn inside a single transaction, committing on success and
// rolling back on any error. Every multi-row write for one state
// transition goes through this (spec §4.2: "one transaction"). A
// SQLITE_BUSY-class error is retried a bounded number of times with a
// jittered backoff rather than surfaced immediately.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= maxBusyRetries; attempt++ {
		err := func() error {
			tx, err := s.db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin tx: %w", err)
			}
			if err := fn(tx); err != nil {
				_ = tx.Rollback()
				return err
			}
			return tx.Commit()
		}()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isBusy(err) || attempt == maxBusyRetries {
			return lastErr
		}
		backoff := time.Duration(attempt) * 10 * time.Millisecond
		jitter := time.Duration(mathrand.Intn(10)) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}
	return lastErr
}

// isBusy reports whether err is a SQLITE_BUSY-class error, which withTx
// treats as a signal to retry with jitter (spec §5).
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	// Both driver implementations surface "database is locked"/"busy" in the
	// error text; matching on the message is the portable way to do this
	// across the cgo (mattn) and pure-Go (modernc) drivers without importing
	// driver-specific error types into driver-agnostic code.
	msg := err.Error()
	return strings.Contains(msg, "locked") || strings.Contains(msg, "busy")
}
