// Package assistant implements the main orchestrator for Alice.
// Coordinates channels, the worker orchestrator, the directive pipeline,
// and the store to process user messages and generate replies.
//
// Message flow: receive → ensure user → command check → intent check →
// tier dispatch (bronze/silver/gold) → directive pass → reply assembly → send.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/v-sk/alice/pkg/alice/channels"
	"github.com/v-sk/alice/pkg/alice/directive"
	"github.com/v-sk/alice/pkg/alice/store"
	"github.com/v-sk/alice/pkg/alice/worker"
)

// Config holds assistant configuration.
type Config struct {
	// MemoryWindow is how many recent memory entries are loaded as
	// context for Silver and Gold turns. Defaults to 20.
	MemoryWindow int `yaml:"memory_window"`

	// MaxReplyLen is the hard cap on outgoing reply length in runes.
	// Longer replies are truncated with a marker. Defaults to 4000.
	MaxReplyLen int `yaml:"max_reply_len"`

	// AdminIDs lists user IDs allowed to run /admin commands.
	AdminIDs []string `yaml:"admin_ids"`

	// IntentMaxLen is the longest message (in runes) still checked for
	// natural-language command intent. Longer messages go straight to
	// the worker. Defaults to 20.
	IntentMaxLen int `yaml:"intent_max_len"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MemoryWindow: 20,
		MaxReplyLen:  4000,
		IntentMaxLen: 20,
	}
}

// route remembers where a user last talked to us, so scheduler
// notifications can find their way back.
type route struct {
	channel string
	chatID  string
}

// Assistant is the main orchestrator for Alice.
type Assistant struct {
	cfg Config

	store      *store.Store
	channelMgr *channels.Manager
	workers    *worker.Orchestrator
	directives *directive.Processor

	logger *slog.Logger

	// routes maps userID to the last channel/chat they wrote from.
	routes   map[string]route
	routesMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Assistant with all dependencies.
func New(cfg Config, st *store.Store, mgr *channels.Manager, workers *worker.Orchestrator, directives *directive.Processor, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MemoryWindow <= 0 {
		cfg.MemoryWindow = 20
	}
	if cfg.MaxReplyLen <= 0 {
		cfg.MaxReplyLen = 4000
	}
	if cfg.IntentMaxLen <= 0 {
		cfg.IntentMaxLen = 20
	}

	return &Assistant{
		cfg:        cfg,
		store:      st,
		channelMgr: mgr,
		workers:    workers,
		directives: directives,
		logger:     logger.With("component", "assistant"),
		routes:     make(map[string]route),
	}
}

// Start begins the main message processing loop.
func (a *Assistant) Start(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(ctx)
	go a.messageLoop()
	a.logger.Info("assistant started")
}

// Stop halts message processing.
func (a *Assistant) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.logger.Info("assistant stopped")
}

// Notify delivers a scheduler message to the user's last known chat.
// Satisfies the scheduler's Notifier contract.
func (a *Assistant) Notify(userID, message string) error {
	a.routesMu.RLock()
	r, ok := a.routes[userID]
	a.routesMu.RUnlock()

	if !ok {
		return fmt.Errorf("no known route for user %s", userID)
	}
	return a.channelMgr.Send(a.ctx, r.channel, r.chatID, &channels.OutgoingMessage{Content: message})
}

// messageLoop processes messages from all channels.
func (a *Assistant) messageLoop() {
	for {
		select {
		case msg, ok := <-a.channelMgr.Messages():
			if !ok {
				return
			}
			go a.handleMessage(msg)

		case <-a.ctx.Done():
			return
		}
	}
}

// handleMessage processes one incoming message end to end.
func (a *Assistant) handleMessage(msg *channels.IncomingMessage) {
	start := time.Now()
	logger := a.logger.With(
		"channel", msg.Channel,
		"chat_id", msg.ChatID,
		"from", msg.From,
		"msg_id", msg.ID,
	)

	prompt := strings.TrimSpace(msg.Content)
	if utf8.RuneCountInString(prompt) < 2 {
		return
	}

	a.recordRoute(msg)

	user, err := a.store.GetOrCreateUser(msg.From, msg.Username)
	if err != nil {
		logger.Error("failed to load user", "error", err)
		return
	}

	// Commands always work, before anything else.
	if IsCommand(prompt) {
		result := a.HandleCommand(msg, user)
		if result.Handled {
			if result.Response != "" {
				a.sendReply(msg, result.Response)
			}
			logger.Info("command processed", "duration_ms", time.Since(start).Milliseconds())
			return
		}
	}

	// Short messages get a natural-language intent check; long messages
	// go straight to the worker.
	if utf8.RuneCountInString(prompt) <= a.cfg.IntentMaxLen {
		if response, ok := a.handleIntent(prompt, msg, user); ok {
			a.sendReply(msg, response)
			logger.Info("intent handled", "duration_ms", time.Since(start).Milliseconds())
			return
		}
	}

	logger.Info("message received, processing...", "tier", user.Tier)

	reply := a.processTurn(user, prompt, msg)
	a.sendReply(msg, reply)

	logger.Info("message processed",
		"tier", user.Tier,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// processTurn runs the tier-appropriate worker path and assembles the
// final reply text.
func (a *Assistant) processTurn(user *store.User, prompt string, msg *channels.IncomingMessage) string {
	var (
		text    string
		outcome directive.Outcome
	)

	switch {
	case user.Tier.Capabilities().PersistentSession:
		text, outcome = a.goldTurn(user, prompt, msg)
	case user.Tier.Capabilities().Memory:
		text, outcome = a.silverTurn(user, prompt, msg)
	default:
		text, outcome = a.bronzeTurn(user, prompt, msg)
	}

	text = truncateReply(text, a.cfg.MaxReplyLen)

	if outcome.TaskCreated {
		if !strings.Contains(text, "✅") {
			text = "✅ Task created!\n\n" + text
		}
		text += "\n\n💡 Use /tasks to see everything I'm watching for you"
	}
	if outcome.DeleteMessage != "" {
		text += "\n\n" + outcome.DeleteMessage
	}
	return text
}

// bronzeTurn: no memory, ephemeral worker, no tasks. Task directives in
// the output are stripped without side effects.
func (a *Assistant) bronzeTurn(user *store.User, prompt string, msg *channels.IncomingMessage) (string, directive.Outcome) {
	a.sendReply(msg, "🔄 Processing...")

	raw, err := a.workers.RunEphemeral(a.ctx, user.ID, prompt, nil)
	if err != nil {
		return worker.FailureText(err), directive.Outcome{}
	}

	outcome := a.directives.Apply(user.ID, raw, false)
	// Bronze never creates or deletes, even if the worker tried.
	return outcome.Text, directive.Outcome{}
}

// silverTurn: memory window, ephemeral worker, tasks enabled, Gold-only
// features gated off with an upgrade hint.
func (a *Assistant) silverTurn(user *store.User, prompt string, msg *channels.IncomingMessage) (string, directive.Outcome) {
	if kw := user.Tier.Gated(prompt); kw != "" {
		a.logger.Info("gated feature refused", "user", user.ID, "keyword", kw)
		return "🥇 Browsing the web is a Gold feature! Use /upgrade gold to unlock it.", directive.Outcome{}
	}

	a.sendReply(msg, "🔄 Processing (with memory)...")

	memory, err := a.store.MemoryWindow(user.ID, a.cfg.MemoryWindow)
	if err != nil {
		a.logger.Error("failed to load memory", "user", user.ID, "error", err)
	}
	if err := a.store.AddMemory(user.ID, "user", prompt); err != nil {
		a.logger.Error("failed to save user memory", "user", user.ID, "error", err)
	}

	raw, err := a.workers.RunEphemeral(a.ctx, user.ID, prompt, memory)
	if err != nil {
		return worker.FailureText(err), directive.Outcome{}
	}

	outcome := a.directives.Apply(user.ID, raw, true)
	a.rememberReply(user.ID, outcome.Text)
	return outcome.Text, outcome
}

// goldTurn: memory window plus the persistent worker session.
func (a *Assistant) goldTurn(user *store.User, prompt string, msg *channels.IncomingMessage) (string, directive.Outcome) {
	a.sendReply(msg, "🔄 Processing (Gold worker)...")

	memory, err := a.store.MemoryWindow(user.ID, a.cfg.MemoryWindow)
	if err != nil {
		a.logger.Error("failed to load memory", "user", user.ID, "error", err)
	}
	if err := a.store.AddMemory(user.ID, "user", prompt); err != nil {
		a.logger.Error("failed to save user memory", "user", user.ID, "error", err)
	}

	raw, err := a.workers.Sessions().SendMessage(a.ctx, user.ID, prompt, memory)
	if err != nil {
		return worker.FailureText(err), directive.Outcome{}
	}

	outcome := a.directives.Apply(user.ID, raw, true)
	a.rememberReply(user.ID, outcome.Text)
	return outcome.Text, outcome
}

// truncateReply caps a reply at max runes, never splitting a multibyte
// character.
func truncateReply(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "\n\n... (truncated)"
}

// rememberReply stores the assistant's cleaned reply in memory, except
// error replies, which would only pollute future context.
func (a *Assistant) rememberReply(userID, text string) {
	if text == "" || strings.HasPrefix(text, "Error") {
		return
	}
	if err := a.store.AddMemory(userID, "assistant", text); err != nil {
		a.logger.Error("failed to save assistant memory", "user", userID, "error", err)
	}
}

// recordRoute remembers the user's channel and chat for notifications.
func (a *Assistant) recordRoute(msg *channels.IncomingMessage) {
	a.routesMu.Lock()
	a.routes[msg.From] = route{channel: msg.Channel, chatID: msg.ChatID}
	a.routesMu.Unlock()
}

// sendReply sends a response to the original message's channel.
func (a *Assistant) sendReply(original *channels.IncomingMessage, content string) {
	out := &channels.OutgoingMessage{
		Content: content,
		ReplyTo: original.ID,
	}
	if err := a.channelMgr.Send(a.ctx, original.Channel, original.ChatID, out); err != nil {
		a.logger.Error("failed to send reply",
			"channel", original.Channel,
			"chat_id", original.ChatID,
			"error", err,
		)
	}
}

// isAdmin reports whether the user may run /admin commands.
func (a *Assistant) isAdmin(userID string) bool {
	for _, id := range a.cfg.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
