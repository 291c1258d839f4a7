// Package testutil holds shared helpers for package tests.
package testutil

import (
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/onnwee/bingo-ledger/db"
)

// SetupTestDB opens a fresh embedded store in the test's temp directory and
// runs migrations. The store is closed when the test finishes.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Connect(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.RunMigrations(database); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}

// Logger returns a logger that discards output so tests stay quiet.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
