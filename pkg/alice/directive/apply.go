// Package directive – apply.go runs the parse-and-apply step over raw
// worker output and assembles the structured outcome.
package directive

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/v-sk/alice/pkg/alice/store"
)

// Processor applies directives found in worker output against the store.
type Processor struct {
	store  *store.Store
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// Outcome describes what a parse-and-apply pass did.
type Outcome struct {
	// Text is the worker output with all recognized marker blocks
	// stripped and the sanitation rules applied.
	Text string

	// TaskCreated is true if a create directive was applied.
	TaskCreated bool

	// CreatedTaskID is the assigned task ID when TaskCreated.
	CreatedTaskID int64

	// TaskDeleted is true if a delete directive removed at least one task.
	TaskDeleted bool

	// DeleteMessage is the human-readable delete confirmation to append
	// to the reply. Set whenever a well-formed delete directive was seen,
	// even if nothing matched.
	DeleteMessage string
}

// NewProcessor creates a directive processor bound to the store.
func NewProcessor(st *store.Store, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:  st,
		logger: logger.With("component", "directive"),
		now:    time.Now,
	}
}

// Apply extracts and applies every directive in the worker output for
// the given user. When allowTasks is false (Bronze) the task markers are
// still stripped, but no task mutation happens; preference directives
// apply for every tier.
//
// Delete is applied before create, so "cancel the BTC alert and set a
// new one" cannot remove the task it just created.
func (p *Processor) Apply(userID, raw string, allowTasks bool) Outcome {
	out := Outcome{}
	text := raw

	text = p.applyUserInfo(userID, text)
	text, out.TaskDeleted, out.DeleteMessage = p.applyDelete(userID, text, allowTasks)
	text, out.TaskCreated, out.CreatedTaskID = p.applyCreate(userID, text, allowTasks)

	text = Sanitize(text)

	// If a task was created and the surrounding natural-language
	// confirmation is unusable (empty, too short, too long), replace it
	// with a deterministic template built from the task's own config.
	if out.TaskCreated {
		if n := len([]rune(text)); n > 80 || n < 5 {
			if task, err := p.store.GetTask(out.CreatedTaskID); err == nil && task != nil {
				text = Confirmation(task.Type, task.Config)
			}
		}
	}

	out.Text = text
	return out
}

// ---------- Task create ----------

func (p *Processor) applyCreate(userID, text string, allowTasks bool) (string, bool, int64) {
	body, remaining, found := extractBlock(text, openTaskCreate, closeTaskCreate)
	if !found {
		return text, false, 0
	}

	var payload createPayload
	if !decodeBody(body, &payload) || payload.Type == "" || emptyConfig(payload.Config) {
		p.logger.Warn("malformed task create directive stripped", "user", userID)
		return remaining, false, 0
	}
	var cfg store.TaskConfig
	if err := json.Unmarshal(payload.Config, &cfg); err != nil {
		p.logger.Warn("malformed task create directive stripped", "user", userID)
		return remaining, false, 0
	}
	if !allowTasks {
		p.logger.Info("task create directive ignored for tier without tasks", "user", userID)
		return remaining, false, 0
	}

	nextRun := store.NextRunAfter(p.now(), payload.Type, cfg)
	id, err := p.store.CreateTask(userID, payload.Type, cfg, nextRun)
	if err != nil {
		p.logger.Error("failed to create task from directive", "user", userID, "error", err)
		return remaining, false, 0
	}

	p.logger.Info("task created from directive",
		"user", userID, "task_id", id, "type", payload.Type,
		"next_run", nextRun.Format(time.RFC3339))
	return remaining, true, id
}

// ---------- Task delete ----------

func (p *Processor) applyDelete(userID, text string, allowTasks bool) (string, bool, string) {
	body, remaining, found := extractBlock(text, openTaskDelete, closeTaskDelete)
	if !found {
		return text, false, ""
	}

	var payload deletePayload
	if !decodeBody(body, &payload) {
		p.logger.Warn("malformed task delete directive stripped", "user", userID)
		return remaining, false, ""
	}
	if !allowTasks {
		p.logger.Info("task delete directive ignored for tier without tasks", "user", userID)
		return remaining, false, ""
	}

	deleted, msg := p.deleteTasks(userID, payload)
	return remaining, deleted, msg
}

// deleteTasks resolves the target set in a single pass over the user's
// current tasks and deletes every match.
func (p *Processor) deleteTasks(userID string, payload deletePayload) (bool, string) {
	tasks, err := p.store.UserTasks(userID)
	if err != nil {
		p.logger.Error("failed to load tasks for delete directive", "user", userID, "error", err)
		return false, ""
	}

	if payload.All {
		for _, t := range tasks {
			if err := p.store.DeleteTask(t.ID); err != nil {
				p.logger.Error("failed to delete task", "task_id", t.ID, "error", err)
			}
		}
		p.logger.Info("delete-all directive applied", "user", userID, "count", len(tasks))
		if len(tasks) == 0 {
			return false, "📭 Nothing to delete — you have no tasks."
		}
		return true, fmt.Sprintf("✅ Deleted all %d tasks.", len(tasks))
	}

	var deletedInfo []string
	for i, t := range tasks {
		position := i + 1 // positional deletes are 1-based

		match := false
		switch {
		case payload.Index != 0:
			match = position == payload.Index
		case payload.Coin != "":
			if strings.EqualFold(t.Config.Coin, payload.Coin) {
				match = payload.TaskType == "" || t.Type == payload.TaskType
			}
		case payload.TaskType != "":
			match = t.Type == payload.TaskType
		}
		if !match {
			continue
		}

		deletedInfo = append(deletedInfo, describeTask(t))
		if err := p.store.DeleteTask(t.ID); err != nil {
			p.logger.Error("failed to delete task", "task_id", t.ID, "error", err)
		}
	}

	p.logger.Info("delete directive applied", "user", userID, "count", len(deletedInfo))
	if len(deletedInfo) == 0 {
		return false, "❌ No matching task found."
	}
	return true, "✅ Deleted: " + strings.Join(deletedInfo, ", ")
}

// describeTask builds the human-readable fragment a deleted task
// contributes to the confirmation message.
func describeTask(t *store.Task) string {
	if t.Type == store.TaskPriceMonitor {
		op := ">"
		if t.Config.Condition == "below" {
			op = "<"
		}
		return fmt.Sprintf("%s %s $%s", t.Config.Coin, op, humanize.Commaf(t.Config.TargetPrice))
	}
	if t.Config.Topic != "" {
		return t.Config.Topic
	}
	return t.Type
}

// ---------- User info ----------

func (p *Processor) applyUserInfo(userID, text string) string {
	body, remaining, found := extractBlock(text, openUserInfo, closeUserInfo)
	if !found {
		return text
	}

	var payload userInfoPayload
	if !decodeBody(body, &payload) {
		p.logger.Warn("malformed user info directive stripped", "user", userID)
		return remaining
	}

	if payload.Nickname != nil {
		if err := p.store.SetPreference(userID, "nickname", *payload.Nickname); err != nil {
			p.logger.Error("failed to save nickname", "user", userID, "error", err)
		} else {
			p.logger.Info("nickname saved", "user", userID)
		}
	}
	if payload.Timezone != nil {
		if err := p.store.SetPreference(userID, "timezone", *payload.Timezone); err != nil {
			p.logger.Error("failed to save timezone", "user", userID, "error", err)
		} else {
			p.logger.Info("timezone saved", "user", userID)
		}
	}

	return remaining
}

// ---------- Confirmations ----------

// Confirmation builds the deterministic templated confirmation for a
// freshly created task. Used when the model's own confirmation text is
// empty, too short, or too long.
func Confirmation(taskType string, cfg store.TaskConfig) string {
	switch taskType {
	case store.TaskPriceMonitor:
		op := ">"
		if cfg.Condition == "below" {
			op = "<"
		}
		freq := ""
		switch {
		case cfg.Cooldown >= store.CooldownOnce:
			freq = " (alerts once)"
		case cfg.Cooldown == 0:
			freq = " (continuous)"
		}
		coin := cfg.Coin
		if coin == "" {
			coin = "?"
		}
		return fmt.Sprintf("✅ Price watch set: %s %s $%s%s",
			coin, op, humanize.Commaf(cfg.TargetPrice), freq)

	case store.TaskScheduledReport:
		topic := cfg.Topic
		if topic == "" {
			topic = "scheduled report"
		}
		interval := cfg.Interval
		if interval <= 0 {
			interval = 60
		}
		return fmt.Sprintf("✅ Report scheduled: %s (every %d min)", topic, interval)

	default:
		return "✅ Task created."
	}
}
