// Package scheduler implements the background task loop for Alice.
// On a fixed tick it selects due tasks from the store, re-evaluates each
// through the ephemeral worker path on behalf of the owning user, feeds
// the worker output through the directive pipeline (a monitor can delete
// itself or spawn a follow-up task), and reschedules whatever survived.
//
// A failed evaluation never deletes or advances the task — it stays due
// and is retried next tick — and never produces a user notification.
// Users only hear about actual state changes (condition met).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/v-sk/alice/pkg/alice/directive"
	"github.com/v-sk/alice/pkg/alice/store"
)

// noActionMarker is what the worker replies when a monitored condition
// is not met. Any other non-empty cleaned output counts as a state
// change and is forwarded to the owner.
const noActionMarker = "[NO_ACTION]"

// Config holds the scheduler configuration.
type Config struct {
	// TickSeconds is the polling period in seconds. Defaults to 60.
	TickSeconds int `yaml:"tick_seconds"`

	// TickInterval is the resolved duration form of TickSeconds.
	TickInterval time.Duration `yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	// TickInterval is left zero here; New resolves it from TickSeconds
	// so a YAML override of the seconds field always wins.
	return Config{TickSeconds: 60}
}

// TaskRunner is the slice of the worker orchestrator the scheduler
// needs: one ephemeral invocation scoped to a user.
type TaskRunner interface {
	RunEphemeral(ctx context.Context, userID, prompt string, memory []store.MemoryEntry) (string, error)
}

// DirectiveApplier runs the parse-and-apply pipeline over worker output.
type DirectiveApplier interface {
	Apply(userID, raw string, allowTasks bool) directive.Outcome
}

// Notifier delivers a message to a user through the transport layer.
type Notifier func(userID, message string) error

// Scheduler owns the repeating evaluation tick.
type Scheduler struct {
	cfg        Config
	store      *store.Store
	runner     TaskRunner
	directives DirectiveApplier
	notify     Notifier
	logger     *slog.Logger

	// cron drives the tick via a single @every entry.
	cron *cron.Cron

	// evaluating tracks task IDs currently being evaluated, so a slow
	// evaluation is not re-entered by the next tick.
	evaluating map[int64]bool

	// evalWg tracks in-flight evaluation goroutines, which cron does
	// not know about, so Stop can wait for them.
	evalWg sync.WaitGroup

	// now is swappable for tests.
	now func() time.Time

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler. The notifier may be nil, in which case
// condition-met results are only logged.
func New(cfg Config, st *store.Store, runner TaskRunner, directives DirectiveApplier, notify Notifier, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TickInterval <= 0 && cfg.TickSeconds > 0 {
		cfg.TickInterval = time.Duration(cfg.TickSeconds) * time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 60 * time.Second
	}

	return &Scheduler{
		cfg:        cfg,
		store:      st,
		runner:     runner,
		directives: directives,
		notify:     notify,
		logger:     logger.With("component", "scheduler"),
		evaluating: make(map[int64]bool),
		now:        time.Now,
	}
}

// Start begins ticking. The first tick fires one interval after Start.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.TickInterval)
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}
	s.cron.Start()

	s.logger.Info("scheduler started", "tick_interval", s.cfg.TickInterval)
	return nil
}

// Stop gracefully shuts down the scheduler, waiting briefly for
// in-flight evaluations.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		select {
		case <-ctx.Done():
		case <-time.After(10 * time.Second):
			s.logger.Warn("scheduler stop timed out")
		}
	}

	done := make(chan struct{})
	go func() {
		s.evalWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		s.logger.Warn("in-flight evaluations did not finish in time")
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("scheduler stopped")
}

// tick selects the due batch and evaluates each task on its own
// goroutine. One task's failure never aborts the rest of the batch.
func (s *Scheduler) tick() {
	now := s.now()
	due, err := s.store.DueTasks(now)
	if err != nil {
		s.logger.Error("failed to query due tasks", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	runID := uuid.NewString()[:8]
	s.logger.Info("evaluating due tasks", "run", runID, "count", len(due))

	for _, task := range due {
		s.mu.Lock()
		if s.evaluating[task.ID] {
			s.mu.Unlock()
			s.logger.Warn("skipping task (still evaluating)", "task_id", task.ID)
			continue
		}
		s.evaluating[task.ID] = true
		s.mu.Unlock()

		s.evalWg.Add(1)
		go func(task *store.Task) {
			defer s.evalWg.Done()
			s.evaluate(task, now, runID)
		}(task)
	}
}

// evaluate runs one task through the worker and directive pipeline.
func (s *Scheduler) evaluate(task *store.Task, now time.Time, runID string) {
	defer func() {
		s.mu.Lock()
		delete(s.evaluating, task.ID)
		s.mu.Unlock()

		// One panicking task must not take down the loop.
		if r := recover(); r != nil {
			s.logger.Error("task evaluation panicked",
				"run", runID, "task_id", task.ID, "panic", r)
		}
	}()

	log := s.logger.With("run", runID, "task_id", task.ID, "user", task.UserID)

	// The ephemeral path carries its own hard timeout; a hung worker is
	// reclaimed there and surfaces as an error here.
	output, err := s.runner.RunEphemeral(s.ctx, task.UserID, evalPrompt(task), nil)
	if err != nil {
		// Transient failure: next_run stays untouched so the task is
		// retried next tick, and the user hears nothing.
		log.Error("task evaluation failed", "error", err)
		return
	}

	outcome := s.directives.Apply(task.UserID, output, true)

	// The directive pass may have deleted this task (or a chat turn may
	// have raced us). Only reschedule what still exists.
	current, err := s.store.GetTask(task.ID)
	if err != nil {
		log.Error("failed to reload task", "error", err)
		return
	}
	if current == nil {
		log.Info("task removed during evaluation, not rescheduling")
		return
	}

	if conditionMet(outcome.Text) {
		s.deliver(task.UserID, outcome.Text, log)

		// Fire-once monitors delete themselves after the first
		// successful alert.
		if current.Type == store.TaskPriceMonitor && current.Config.Cooldown >= store.CooldownOnce {
			if err := s.store.DeleteTask(current.ID); err != nil {
				log.Error("failed to delete fired one-shot monitor", "error", err)
			} else {
				log.Info("one-shot monitor fired and removed")
			}
			return
		}
	}

	next := store.NextRunAfter(now, current.Type, current.Config)
	if err := s.store.UpdateTaskNextRun(current.ID, next); err != nil {
		log.Error("failed to reschedule task", "error", err)
		return
	}
	log.Info("task rescheduled", "next_run", next.Format(time.RFC3339))
}

// deliver forwards a condition-met result to the owning user.
func (s *Scheduler) deliver(userID, message string, log *slog.Logger) {
	if s.notify == nil {
		log.Info("condition met (no notifier configured)", "message_len", len(message))
		return
	}
	if err := s.notify(userID, message); err != nil {
		log.Error("failed to notify user", "error", err)
		return
	}
	log.Info("user notified", "message_len", len(message))
}

// conditionMet interprets cleaned worker output: empty text or the
// no-action marker means nothing changed.
func conditionMet(text string) bool {
	t := strings.TrimSpace(text)
	return t != "" && t != noActionMarker
}

// evalPrompt synthesizes the worker prompt describing the monitored
// condition and its current config.
func evalPrompt(task *store.Task) string {
	var b strings.Builder
	b.WriteString("You are evaluating a background task. ")

	switch task.Type {
	case store.TaskPriceMonitor:
		fmt.Fprintf(&b, "Check the current %s price. ", task.Config.Coin)
		fmt.Fprintf(&b, "The user wants an alert when the price is %s $%.0f. ",
			task.Config.Condition, task.Config.TargetPrice)
		b.WriteString("If the condition is met, reply with a short alert message for the user. ")
	case store.TaskScheduledReport:
		fmt.Fprintf(&b, "Produce the recurring report the user asked for: %s. ", task.Config.Topic)
		b.WriteString("Reply with the report content. ")
	default:
		fmt.Fprintf(&b, "Run the recurring task of type %q with config %+v. ", task.Type, task.Config)
	}

	b.WriteString("If there is nothing to tell the user, reply with exactly " + noActionMarker + " and nothing else.")
	return b.String()
}
