// Package audit keeps a tamper-evident history of vault operations in a
// SQLite database next to the vault file. Each event carries the SHA-256 of
// its predecessor, so editing or deleting a row breaks the chain.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Log wraps the SQLite handle holding the event chain.
type Log struct {
	sql  *sql.DB
	path string
	now  func() time.Time
}

// Open initialises the audit database at path and applies the schema.
func Open(path string) (*Log, error) {
	if path == "" {
		return nil, fmt.Errorf("audit database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	handle.SetMaxOpenConns(1)

	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}

	if err := ensurePerm0600(path); err != nil {
		handle.Close()
		return nil, err
	}

	l := &Log{sql: handle, path: path, now: func() time.Time { return time.Now().UTC() }}
	if err := l.Migrate(); err != nil {
		handle.Close()
		return nil, err
	}
	return l, nil
}

// Path returns the database location.
func (l *Log) Path() string { return l.path }

// Close releases the database handle.
func (l *Log) Close() error {
	if l == nil || l.sql == nil {
		return nil
	}
	return l.sql.Close()
}

// ensurePerm0600 restricts the database to its owner on Unix systems.
func ensurePerm0600(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("chmod audit database: %w", err)
	}
	return nil
}

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
	seq       INTEGER PRIMARY KEY,
	at        TEXT    NOT NULL,
	vault_id  TEXT    NOT NULL,
	action    TEXT    NOT NULL,
	subject   TEXT    NOT NULL DEFAULT '',
	prev_hash BLOB    NOT NULL,
	hash      BLOB    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_vault ON events(vault_id, seq);
`

// Migrate ensures the events table exists.
func (l *Log) Migrate() error {
	if l == nil || l.sql == nil {
		return fmt.Errorf("audit database handle is nil")
	}
	if _, err := l.sql.Exec(createEventsTable); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}
