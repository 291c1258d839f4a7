// Package db provides database connection helpers, schema migration, and the
// shared error types surfaced by the storage-backed packages.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite" // sqlite driver registered as 'sqlite'
)

// DBTX is the subset of *sql.DB and *sql.Tx the storage packages use. It lets
// a component run inside an explicit transaction boundary without knowing
// whether one is open.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Connect opens the embedded SQLite store at path with WAL journaling, a busy
// timeout, and enforced foreign keys. Foreign keys are load-bearing: week and
// seed deletion cascade through them.
func Connect(path string) (*sql.DB, error) {
	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// The embedded engine serializes writers anyway; a single connection
	// keeps the per-connection pragmas in effect for every statement.
	database.SetMaxOpenConns(1)
	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, &StorageError{Op: "ping", Err: err}
	}
	if err := ensureForeignKeysEnabled(database); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

func ensureForeignKeysEnabled(database *sql.DB) error {
	var enabled int
	if err := database.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		return &StorageError{Op: "check foreign_keys pragma", Err: err}
	}
	if enabled != 1 {
		return &StorageError{Op: "check foreign_keys pragma", Err: fmt.Errorf("sqlite foreign keys are disabled")}
	}
	return nil
}

// WithTx runs fn inside a transaction. fn's storage writes commit together or
// not at all; on error the transaction is rolled back and the error returned.
// External side effects performed inside fn are not covered and must be
// compensated by the caller.
func WithTx(ctx context.Context, database *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "begin tx", Err: err}
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "commit tx", Err: err}
	}
	return nil
}
