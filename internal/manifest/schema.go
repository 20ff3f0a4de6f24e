// Package manifest records conversion runs in a SQLite database.
package manifest

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  DATETIME NOT NULL,
	input_path  TEXT NOT NULL,
	output_path TEXT NOT NULL,
	rows        INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	excluded    INTEGER NOT NULL DEFAULT 0,
	promoted    INTEGER NOT NULL DEFAULT 0,
	written     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS notes (
	run_id    INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	path      TEXT NOT NULL,
	task_id   TEXT NOT NULL,
	title     TEXT NOT NULL DEFAULT '',
	synthetic INTEGER NOT NULL DEFAULT 0,
	checksum  TEXT NOT NULL DEFAULT '',
	UNIQUE(run_id, path)
);

CREATE TABLE IF NOT EXISTS failures (
	run_id  INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	path    TEXT NOT NULL,
	task_id TEXT NOT NULL,
	error   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_task ON notes(task_id);
`

// DB wraps a sql.DB with manifest operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the manifest database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("manifest: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
