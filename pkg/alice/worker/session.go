// Package worker – session.go implements persistent worker sessions for
// Gold users. Each Gold user owns at most one long-lived container,
// reused across turns via docker exec. A session that fails a send is
// marked dead and transparently recreated on the next use.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/v-sk/alice/pkg/alice/store"
)

// SessionState is the liveness state of a persistent session.
type SessionState string

const (
	SessionStarting SessionState = "starting"
	SessionReady    SessionState = "ready"
	SessionDead     SessionState = "dead"
)

// sessionPrefix names every persistent container so orphans from a
// previous process can be found and reclaimed at startup.
const sessionPrefix = "alice_molt_"

// SessionName returns the deterministic container name for a Gold
// user's persistent worker.
func SessionName(userID string) string {
	return sessionPrefix + userID
}

// Session tracks one Gold user's long-lived worker container.
type Session struct {
	// ID identifies this session incarnation in logs; a recreated
	// container gets a fresh ID.
	ID string

	// UserID is the owning user. Exactly one live session per user.
	UserID string

	// Name is the container name.
	Name string

	// State is the liveness state.
	State SessionState

	// LastActive is the time of the last successful send.
	LastActive time.Time

	// mu serializes turns against this session. Two conversations must
	// never interleave inside one stateful container.
	mu sync.Mutex
}

// SessionManager owns all persistent sessions.
type SessionManager struct {
	orch   *Orchestrator
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func newSessionManager(orch *Orchestrator, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		orch:     orch,
		logger:   logger.With("component", "session"),
		sessions: make(map[string]*Session),
	}
}

// SendMessage runs one turn against the user's persistent session,
// creating or recreating the container as needed. Calls for the same
// user queue behind each other; calls for different users proceed
// independently.
func (m *SessionManager) SendMessage(ctx context.Context, userID, prompt string, memory []store.MemoryEntry) (string, error) {
	sess := m.session(userID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.State != SessionReady || !m.orch.containerRunning(ctx, sess.Name) {
		if err := m.start(ctx, sess); err != nil {
			return "", err
		}
	}

	args, err := workerArgs(prompt, memory)
	if err != nil {
		m.logger.Error("failed to build session payload", "user", userID, "error", err)
		return "", fmt.Errorf("%w: %v", ErrExecution, err)
	}

	execArgs := append([]string{"exec", sess.Name}, args...)

	execCtx, cancel := context.WithTimeout(ctx, m.orch.cfg.Timeout)
	defer cancel()

	out, err := m.orch.docker(execCtx, execArgs...)
	if err != nil {
		// The container is unresponsive or crashed mid-turn. Mark the
		// session dead; the next call recreates it transparently.
		sess.State = SessionDead
		m.logger.Error("session send failed, marking dead",
			"user", userID, "session", sess.ID, "error", err)
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, m.orch.cfg.Timeout)
		}
		return "", fmt.Errorf("%w: %v", ErrExecution, err)
	}

	sess.LastActive = time.Now()
	return out, nil
}

// Invalidate tears down a user's session immediately. The next send
// starts a fresh one.
func (m *SessionManager) Invalidate(ctx context.Context, userID string) {
	sess := m.session(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	m.orch.removeContainer(ctx, sess.Name)
	sess.State = SessionDead
	m.logger.Info("session invalidated", "user", userID, "session", sess.ID)
}

// Reconcile removes orphaned session containers left behind by a
// previous process. Orphans are discarded rather than adopted: the
// in-memory session state they belonged to is gone, and adopting a
// container of unknown liveness is how leaks turn into wedged users.
func (m *SessionManager) Reconcile(ctx context.Context) {
	out, err := m.orch.docker(ctx, "ps", "-a",
		"--filter", "name="+sessionPrefix, "--format", "{{.Names}}")
	if err != nil {
		m.logger.Warn("session reconciliation failed", "error", err)
		return
	}
	if out == "" {
		return
	}

	names := strings.Split(out, "\n")
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		m.orch.removeContainer(ctx, name)
	}
	m.logger.Info("orphaned sessions reclaimed", "count", len(names))
}

// Active returns userID → state for every tracked session. Used by the
// admin listing.
func (m *SessionManager) Active() map[string]SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]SessionState, len(m.sessions))
	for uid, sess := range m.sessions {
		out[uid] = sess.State
	}
	return out
}

// CloseAll tears down every session container. Called on shutdown.
func (m *SessionManager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		m.orch.removeContainer(ctx, sess.Name)
		sess.State = SessionDead
		sess.mu.Unlock()
	}
	m.logger.Info("all sessions closed", "count", len(sessions))
}

// ---------- Internal ----------

// session returns the tracked session for the user, creating the
// bookkeeping entry (not the container) if needed.
func (m *SessionManager) session(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[userID]; ok {
		return sess
	}
	sess := &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		Name:   SessionName(userID),
		State:  SessionStarting,
	}
	m.sessions[userID] = sess
	return sess
}

// start launches a fresh container for the session. Caller holds
// sess.mu.
func (m *SessionManager) start(ctx context.Context, sess *Session) error {
	if !m.orch.imageExists(ctx) {
		m.logger.Error("worker image missing", "image", m.orch.cfg.Image)
		return fmt.Errorf("%w: %s", ErrImageMissing, m.orch.cfg.Image)
	}

	// Clear any previous incarnation under this name.
	m.orch.removeContainer(ctx, sess.Name)

	runArgs := append([]string{"run", "-d", "--name", sess.Name}, m.orch.workerEnv()...)
	runArgs = append(runArgs, m.orch.cfg.Image)

	if _, err := m.orch.docker(ctx, runArgs...); err != nil {
		sess.State = SessionDead
		m.logger.Error("session container launch failed",
			"user", sess.UserID, "error", err)
		return fmt.Errorf("%w: %v", ErrExecution, err)
	}

	sess.ID = uuid.NewString()
	sess.State = SessionReady
	m.logger.Info("session container started",
		"user", sess.UserID, "session", sess.ID, "container", sess.Name)
	return nil
}
