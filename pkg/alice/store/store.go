// Package store provides the central SQLite database for Alice.
// A single alice.db file holds users, their preference map, the
// conversation memory log, and the scheduled tasks the scheduler polls.
// All writes are single-statement and therefore atomic per row, which is
// what keeps a chat-triggered task delete safe against a concurrent
// scheduler re-evaluation of the same task.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// schema is the DDL executed on every startup (idempotent via IF NOT EXISTS).
const schema = `
-- Users (created on first contact, never deleted).
CREATE TABLE IF NOT EXISTS users (
    id         TEXT PRIMARY KEY,
    username   TEXT DEFAULT '',
    tier       TEXT NOT NULL DEFAULT 'bronze',
    created_at TEXT NOT NULL
);

-- Free-form per-user preference map (nickname, timezone, ...).
CREATE TABLE IF NOT EXISTS preferences (
    user_id TEXT NOT NULL,
    key     TEXT NOT NULL,
    value   TEXT NOT NULL,
    PRIMARY KEY (user_id, key)
);

-- Conversation memory (append-only, one row per message).
CREATE TABLE IF NOT EXISTS memories (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    TEXT NOT NULL,
    role       TEXT NOT NULL,
    content    TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);

-- Scheduled tasks polled by the scheduler.
CREATE TABLE IF NOT EXISTS tasks (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    TEXT NOT NULL,
    task_type  TEXT NOT NULL,
    config     TEXT NOT NULL DEFAULT '{}',
    next_run   TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
CREATE INDEX IF NOT EXISTS idx_tasks_next_run ON tasks(next_run);
`

// Store wraps the shared database handle. One Store is constructed at
// process start and passed into the assistant and the scheduler; there
// is no package-level singleton.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) alice.db at the given path. It enables WAL
// mode for concurrent read performance and creates all tables.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "./data/alice.db"
	}

	// Ensure parent directory exists.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	// Verify connectivity.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Create schema (idempotent).
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
