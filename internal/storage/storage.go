// Package storage owns the single SQLite connection rocketcore writes through. Grounded on
// station's internal/db/db.go for PRAGMA setup, but drops its libsql
// branch: per SPEC_FULL.md's single-writer-per-database Non-goal, only modernc.org/sqlite (a
// CGO-free SQLite driver) is wired.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Database is the interface rocketcore's repositories and pipeline depend on, so tests can
// substitute an in-memory instance. Mirrors station's internal/db.Database.
type Database interface {
	Conn() *sql.DB
	Close() error
	Migrate() error
}

// DB is the modernc.org/sqlite-backed Database.
type DB struct {
	conn *sql.DB
}

// Open connects to the SQLite database at path (or an in-memory database for
// "file::memory:?cache=shared"-style DSNs), configuring the PRAGMAs the write
// pipeline's single-writer model depends on. It makes a single connection attempt.
func Open(path string, maxOpenConns, maxIdleConns int) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" && dir != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxOpenConns > 0 {
		conn.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		conn.SetMaxIdleConns(maxIdleConns)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return &DB{conn: conn}, nil
}

// Conn returns the underlying *sql.DB.
func (d *DB) Conn() *sql.DB { return d.conn }

// Close shuts down the connection pool.
func (d *DB) Close() error {
	d.conn.SetMaxOpenConns(0)
	d.conn.SetMaxIdleConns(0)
	d.conn.SetConnMaxLifetime(0)
	return d.conn.Close()
}

// Migrate runs the embedded goose migrations.
func (d *DB) Migrate() error {
	return RunMigrations(d.conn)
}

var _ Database = (*DB)(nil)
