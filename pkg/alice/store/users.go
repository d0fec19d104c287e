// Package store – users.go implements user rows and the per-user
// preference map.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/v-sk/alice/pkg/alice/tier"
)

// User is a registered bot user. Users are created on first contact and
// never deleted; tier changes and preference directives mutate them.
type User struct {
	ID        string
	Username  string
	Tier      tier.Tier
	CreatedAt time.Time
}

// GetUser returns the user with the given ID, or nil if unknown.
func (s *Store) GetUser(id string) (*User, error) {
	row := s.db.QueryRow(
		`SELECT id, username, tier, created_at FROM users WHERE id = ?`, id)

	var u User
	var tierStr, createdAt string
	if err := row.Scan(&u.ID, &u.Username, &tierStr, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %q: %w", id, err)
	}
	u.Tier = tier.Parse(tierStr)
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

// GetOrCreateUser returns the user, creating a Bronze row on first contact.
func (s *Store) GetOrCreateUser(id, username string) (*User, error) {
	u, err := s.GetUser(id)
	if err != nil {
		return nil, err
	}
	if u != nil {
		return u, nil
	}

	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO users (id, username, tier, created_at) VALUES (?, ?, ?, ?)`,
		id, username, string(tier.Bronze), now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("create user %q: %w", id, err)
	}

	return &User{ID: id, Username: username, Tier: tier.Bronze, CreatedAt: now}, nil
}

// UpdateUserTier changes a user's tier.
func (s *Store) UpdateUserTier(id string, t tier.Tier) error {
	_, err := s.db.Exec(`UPDATE users SET tier = ? WHERE id = ?`, string(t), id)
	if err != nil {
		return fmt.Errorf("update tier for %q: %w", id, err)
	}
	return nil
}

// SetPreference writes one key of the user's preference map (upsert).
func (s *Store) SetPreference(userID, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO preferences (user_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value`,
		userID, key, value)
	if err != nil {
		return fmt.Errorf("set preference %q for %q: %w", key, userID, err)
	}
	return nil
}

// GetPreference reads one key of the user's preference map.
// Returns "" if the key is unset.
func (s *Store) GetPreference(userID, key string) (string, error) {
	row := s.db.QueryRow(
		`SELECT value FROM preferences WHERE user_id = ? AND key = ?`, userID, key)

	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("get preference %q for %q: %w", key, userID, err)
	}
	return value, nil
}
