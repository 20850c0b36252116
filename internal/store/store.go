// Package store implements the per-user embedded relational store, per
// spec.md §4.A. Grounded on niraj8-things/email/internal/store/sqlite.go:
// one *sql.DB per user, WAL journal mode, ON CONFLICT upserts, migrations
// applied on open.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Store is one user's durable, single-writer database. All exported methods
// are safe for concurrent use; writes serialize on SQLite's own locking and
// are additionally tracked by an idle barrier so callers can observe
// quiescence (spec.md §4.A "Concurrency").
type Store struct {
	db     *sql.DB
	userID string // "" for the legacy shared.db opened without a user, see DESIGN.md
	log    zerolog.Logger

	mu       sync.Mutex
	inFlight int
	idleCond *sync.Cond
}

// Open opens (creating if absent) the SQLite file at path and runs the
// schema bootstrap + migration. userID is the owning user for this store, or
// "" for the legacy single-user shared.db.
func Open(path, userID string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single-writer semantics per spec.md §4.A: one connection avoids
	// SQLITE_BUSY storms from this process itself.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db, userID: userID, log: log.With().Str("component", "store").Str("user_id", userID).Logger()}
	s.idleCond = sync.NewCond(&s.mu)

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// UserID is the store's owning user, or "" for the legacy shared store.
func (s *Store) UserID() string { return s.userID }

// enter marks one write/txn in flight; leave decrements it and wakes any
// waiter in WaitForIdle. Read-only helpers (query/queryAll) do not call
// enter/leave — only mutating paths do, matching spec.md §4.A's "idle
// barrier tracks in-flight writes".
func (s *Store) enter() {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
}

func (s *Store) leave() {
	s.mu.Lock()
	s.inFlight--
	if s.inFlight == 0 {
		s.idleCond.Broadcast()
	}
	s.mu.Unlock()
}

// WaitForIdle blocks until no write is in flight on this store.
func (s *Store) WaitForIdle() {
	s.mu.Lock()
	for s.inFlight > 0 {
		s.idleCond.Wait()
	}
	s.mu.Unlock()
}

// Close awaits the idle barrier, then closes the underlying database.
func (s *Store) Close() error {
	s.WaitForIdle()
	return s.db.Close()
}

// ExecResult is Store.Execute's return shape.
type ExecResult struct {
	Changes int64
	LastID  int64
}

// Execute runs one DML/DDL statement with a single parameter vector.
func (s *Store) Execute(ctx context.Context, query string, params ...interface{}) (ExecResult, error) {
	s.enter()
	defer s.leave()

	res, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return ExecResult{}, err
	}
	changes, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return ExecResult{Changes: changes, LastID: lastID}, nil
}

// ExecuteBatch runs one statement for each param vector in paramSets inside a
// single transaction, rolling back on the first error, per spec.md §4.A.
func (s *Store) ExecuteBatch(ctx context.Context, query string, paramSets [][]interface{}) (ExecResult, error) {
	s.enter()
	defer s.leave()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ExecResult{}, err
	}
	defer tx.Rollback()

	var total ExecResult
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return ExecResult{}, err
	}
	defer stmt.Close()

	for _, params := range paramSets {
		res, err := stmt.ExecContext(ctx, params...)
		if err != nil {
			return ExecResult{}, fmt.Errorf("batch statement failed: %w", err)
		}
		changes, _ := res.RowsAffected()
		lastID, _ := res.LastInsertId()
		total.Changes += changes
		total.LastID = lastID
	}

	if err := tx.Commit(); err != nil {
		return ExecResult{}, err
	}
	return total, nil
}

// QueryRow is a thin wrapper so call sites don't need *sql.DB directly.
func (s *Store) QueryRow(ctx context.Context, query string, params ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, query, params...)
}

// Query returns the raw *sql.Rows for callers that need to scan a
// multi-row result set (e.g. SearchEmails' column list).
func (s *Store) Query(ctx context.Context, query string, params ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, params...)
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
