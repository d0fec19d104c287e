// Package store – memory.go implements the append-only conversation
// memory log and the bounded most-recent-N window used to build worker
// context.
package store

import (
	"fmt"
	"time"
)

// MemoryEntry is one message of a user's conversation history.
type MemoryEntry struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"-"`
}

// AddMemory appends a message to the user's conversation memory.
func (s *Store) AddMemory(userID, role, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO memories (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		userID, role, content, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("add memory for %q: %w", userID, err)
	}
	return nil
}

// MemoryWindow returns the user's most recent `limit` messages in
// chronological order, ready for serialization into the worker payload.
func (s *Store) MemoryWindow(userID string, limit int) ([]MemoryEntry, error) {
	rows, err := s.db.Query(
		`SELECT role, content, created_at FROM
		   (SELECT id, role, content, created_at FROM memories
		    WHERE user_id = ? ORDER BY id DESC LIMIT ?)
		 ORDER BY id ASC`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("load memory window for %q: %w", userID, err)
	}
	defer rows.Close()

	var entries []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		var createdAt string
		if err := rows.Scan(&e.Role, &e.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory entry: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MemoryCount returns how many memory entries the user has accumulated.
func (s *Store) MemoryCount(userID string) (int, error) {
	row := s.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE user_id = ?`, userID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories for %q: %w", userID, err)
	}
	return n, nil
}
