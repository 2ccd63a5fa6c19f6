// Package index provides the SQLite-backed append log and the materialized
// views derived from it: the bullet tree, the link index, annotation history,
// and optional FTS5 full-text search.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// coreSchemaSQL creates the append log (the single source of truth) and every
// materialized table. The appends table uses AUTOINCREMENT so sequence
// numbers are strictly increasing and never reused, globally across notes.
const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL CHECK (kind IN ('daily', 'named')),
	date       TEXT UNIQUE,
	title      TEXT UNIQUE,
	last_seq   INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS appends (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	note_id    TEXT NOT NULL REFERENCES notes(id),
	kind       TEXT NOT NULL CHECK (kind IN ('bullet', 'annotation', 'redact')),
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS bullets (
	id         TEXT PRIMARY KEY,
	note_id    TEXT NOT NULL REFERENCES notes(id),
	parent_id  TEXT,
	depth      INTEGER NOT NULL,
	order_seq  INTEGER NOT NULL UNIQUE,
	text       TEXT NOT NULL,
	spans      TEXT NOT NULL DEFAULT '[]',
	redacted   INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_bullets_note ON bullets(note_id, order_seq);

CREATE TABLE IF NOT EXISTS links (
	bullet_id    TEXT NOT NULL REFERENCES bullets(id),
	target_type  TEXT NOT NULL,
	target_value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_links_bullet ON links(bullet_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_type, target_value);

CREATE TABLE IF NOT EXISTS annotations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	bullet_id  TEXT NOT NULL REFERENCES bullets(id),
	type       TEXT NOT NULL,
	data       TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_annotations_bullet ON annotations(bullet_id, type, id);

CREATE TABLE IF NOT EXISTS idempotency_keys (
	client_id  TEXT NOT NULL,
	client_seq INTEGER NOT NULL,
	bullet_id  TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (client_id, client_seq)
);

CREATE TABLE IF NOT EXISTS import_files (
	path     TEXT PRIMARY KEY,
	checksum TEXT NOT NULL
);
`

// DB wraps a sql.DB with log and materialization operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
