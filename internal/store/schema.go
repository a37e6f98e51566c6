// Package store provides the SQLite-backed workspace data store with
// soft-delete semantics and permission-scoped queries.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pages (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	owner_id   TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS sections (
	id         TEXT PRIMARY KEY,
	page_id    TEXT NOT NULL REFERENCES pages(id),
	name       TEXT NOT NULL,
	owner_id   TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	section_id TEXT NOT NULL REFERENCES sections(id),
	content    TEXT NOT NULL DEFAULT '',
	tags       TEXT NOT NULL DEFAULT '[]',
	date       DATETIME,
	completed  INTEGER NOT NULL DEFAULT 0,
	owner_id   TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS grants (
	user_id TEXT NOT NULL,
	page_id TEXT NOT NULL REFERENCES pages(id),
	UNIQUE(user_id, page_id)
);

CREATE INDEX IF NOT EXISTS idx_sections_page ON sections(page_id);
CREATE INDEX IF NOT EXISTS idx_notes_section ON notes(section_id);
CREATE INDEX IF NOT EXISTS idx_notes_deleted ON notes(deleted_at);
CREATE INDEX IF NOT EXISTS idx_grants_user ON grants(user_id);
`

// Query limits for note materialization.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 500
)

// DB wraps a sql.DB with workspace-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// placeholders returns "?, ?, ..." for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// scopeArgs converts a scope's page IDs to query arguments.
func scopeArgs(scope Scope) []any {
	ids := scope.PageIDs()
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
