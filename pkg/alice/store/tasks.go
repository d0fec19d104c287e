// Package store – tasks.go implements the durable task rows the
// scheduler polls. Task config is a typed JSON payload; next_run is the
// single scheduling field and a task is only ever selected while
// next_run ≤ now.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Task types known to the confirmation and scheduling logic. Unknown
// types are stored and scheduled with a default interval, so new types
// can be introduced by the worker prompt alone.
const (
	TaskPriceMonitor    = "price_monitor"
	TaskScheduledReport = "scheduled_report"
)

// CooldownOnce is the cooldown sentinel meaning "fire once, then the
// monitor deletes itself".
const CooldownOnce = 999999

// TaskConfig is the typed config payload of a task. Fields are
// type-specific: price monitors use Coin/TargetPrice/Condition/Cooldown,
// scheduled reports use Topic/Interval.
type TaskConfig struct {
	// Coin is the monitored asset symbol (e.g. "BTC").
	Coin string `json:"coin,omitempty"`

	// TargetPrice is the threshold that triggers the alert.
	TargetPrice float64 `json:"target_price,omitempty"`

	// Condition is "above" or "below".
	Condition string `json:"condition,omitempty"`

	// Cooldown is the repeat-notification interval in minutes.
	// 0 means continuous; CooldownOnce means fire once.
	Cooldown int `json:"cooldown,omitempty"`

	// Topic is the scheduled report subject.
	Topic string `json:"topic,omitempty"`

	// Interval is the report period in minutes (default 60).
	Interval int `json:"interval,omitempty"`
}

// Task is a durable, time-triggered job owned by a user.
type Task struct {
	ID        int64
	UserID    string
	Type      string
	Config    TaskConfig
	NextRun   time.Time
	CreatedAt time.Time
}

// CreateTask persists a new task and returns its assigned ID.
func (s *Store) CreateTask(userID, taskType string, cfg TaskConfig, nextRun time.Time) (int64, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return 0, fmt.Errorf("marshal task config: %w", err)
	}

	res, err := s.db.Exec(
		`INSERT INTO tasks (user_id, task_type, config, next_run, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, taskType, string(raw),
		nextRun.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("create task for %q: %w", userID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("task id: %w", err)
	}
	return id, nil
}

// GetTask returns the task with the given ID, or nil if unknown.
func (s *Store) GetTask(id int64) (*Task, error) {
	row := s.db.QueryRow(
		`SELECT id, user_id, task_type, config, next_run, created_at
		 FROM tasks WHERE id = ?`, id)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// UserTasks returns all tasks owned by the user, oldest first. The
// ordering is what positional (1-based index) deletes resolve against.
func (s *Store) UserTasks(userID string) ([]*Task, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, task_type, config, next_run, created_at
		 FROM tasks WHERE user_id = ? ORDER BY id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("load tasks for %q: %w", userID, err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// DueTasks returns every task with next_run ≤ now, across all users.
func (s *Store) DueTasks(now time.Time) ([]*Task, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, task_type, config, next_run, created_at
		 FROM tasks WHERE next_run <= ? ORDER BY next_run ASC`,
		now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("load due tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// DeleteTask removes a task by ID. Deleting an already-deleted task is
// not an error, which is what makes the scheduler/chat delete race safe.
func (s *Store) DeleteTask(id int64) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

// UpdateTaskNextRun advances a task's next_run timestamp.
func (s *Store) UpdateTaskNextRun(id int64, nextRun time.Time) error {
	_, err := s.db.Exec(`UPDATE tasks SET next_run = ? WHERE id = ?`,
		nextRun.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("update next_run for task %d: %w", id, err)
	}
	return nil
}

// ---------- Internal ----------

// rowScanner abstracts *sql.Row and *sql.Rows for scanTask.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var config, nextRun, createdAt string
	if err := row.Scan(&t.ID, &t.UserID, &t.Type, &config, &nextRun, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	if err := json.Unmarshal([]byte(config), &t.Config); err != nil {
		return nil, fmt.Errorf("parse config of task %d: %w", t.ID, err)
	}
	t.NextRun, _ = time.Parse(time.RFC3339, nextRun)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]*Task, error) {
	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
