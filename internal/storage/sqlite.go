// Package storage owns the shared SQLite secondary index backing the
// Intervention Store (C6) and Session State Store (C7): both components
// keep their source of truth elsewhere (an in-memory map for C6, a
// file-per-session JSON store for C7) and mirror their records into this
// database. C6 serves "list paused sessions" from it; C7 only writes to
// it, and its list / list-resumable queries scan the JSON files. Grounded on
// joestump-claude-ops's internal/db package for the modernc.org/sqlite +
// pressly/goose wiring idiom.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// DB wraps the secondary-index connection.
type DB struct {
	conn *sql.DB
}

// Open connects to the sqlite file at path (use ":memory:" for tests) and
// applies every pending migration.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	migrationsFS, err := fs.Sub(MigrationFS, "migrations")
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations sub-fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, migrationsFS)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Conn exposes the underlying connection to package-local query code.
func (d *DB) Conn() *sql.DB { return d.conn }

// Close releases the connection.
func (d *DB) Close() error { return d.conn.Close() }
