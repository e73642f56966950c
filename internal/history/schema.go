// Package history provides a SQLite-backed audit log of verification results.
package history

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS checks (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	path            TEXT NOT NULL,
	outcome         TEXT NOT NULL,
	stored_checksum TEXT,
	stored_ts       INTEGER,
	actual_checksum TEXT NOT NULL DEFAULT '',
	actual_ts       INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	checked_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_checks_path ON checks(path, id);
CREATE INDEX IF NOT EXISTS idx_checks_outcome ON checks(outcome);
`

// DB wraps a sql.DB with history-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
