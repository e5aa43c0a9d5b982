package storage

import (
	"path/filepath"
	"testing"
)

// NewTest creates a temp-file-backed SQLite database with migrations applied, the way
// station's internal/db/test_helper.go sets up integration tests. Ported because
// modernc.org/sqlite's shared-cache in-memory DSN behaves inconsistently across multiple
// *sql.DB connections in the pool; a real temp file avoids that class of flake.
func NewTest(tb testing.TB) *DB {
	tb.Helper()
	dbPath := filepath.Join(tb.TempDir(), "test.db")

	database, err := Open(dbPath, 1, 1)
	if err != nil {
		tb.Fatalf("open test database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		tb.Fatalf("migrate test database: %v", err)
	}
	tb.Cleanup(func() { database.Close() })
	return database
}
