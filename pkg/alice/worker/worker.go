// Package worker manages execution of prompt+memory payloads inside
// sandboxed Docker containers running the Alice worker image.
//
// Two execution modes sit behind one contract:
//
//   - Ephemeral (Bronze/Silver and all scheduler evaluations): a fresh
//     container per call, named deterministically per user so a leaked
//     instance from a previous crash can be reclaimed before launch,
//     always removed afterward.
//   - Persistent (Gold): one long-lived container per user, reused
//     across turns via docker exec, health-checked and replaced on
//     failure. Access per user is serialized.
//
// Containers are driven through the docker CLI. The worker image is
// expected to expose `python worker.py --prompt ... [--memory ...]` as
// its one-shot entry and a long-running default mode for persistent
// sessions.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/v-sk/alice/pkg/alice/store"
)

// Failure taxonomy. ErrImageMissing is the only condition reported to
// users in distinct wording — it means the operator has not provisioned
// the worker image. Everything else collapses into a generic failure.
var (
	// ErrImageMissing means the worker image is not present on the host.
	ErrImageMissing = errors.New("worker image not found")

	// ErrTimeout means an invocation exceeded its execution bound and
	// the container was force-reclaimed.
	ErrTimeout = errors.New("worker execution timed out")

	// ErrExecution is a generic sandbox/runtime failure. Details are
	// logged, never shown to the user.
	ErrExecution = errors.New("worker execution failed")
)

// Config holds the orchestrator configuration.
type Config struct {
	// Image is the Docker image to run workers from.
	// Defaults to "alice-worker".
	Image string `yaml:"image"`

	// TimeoutSeconds is the hard bound on a single invocation.
	// Defaults to 120.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// Timeout is the resolved duration form of TimeoutSeconds.
	Timeout time.Duration `yaml:"-"`

	// Model is the LLM model identifier passed to the worker.
	Model string `yaml:"model"`

	// BaseURL optionally overrides the LLM API endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKey is the LLM API credential. Resolved at startup from the
	// keyring/env chain, never serialized back to disk.
	APIKey string `yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	// Timeout is left zero here; New resolves it from TimeoutSeconds so
	// a YAML override of the seconds field always wins.
	return Config{
		Image:          "alice-worker",
		TimeoutSeconds: 120,
		Model:          "claude-sonnet-4-5",
	}
}

// Orchestrator launches and supervises worker containers. One
// Orchestrator is constructed at process start and shared by the
// assistant and the scheduler.
type Orchestrator struct {
	cfg      Config
	logger   *slog.Logger
	sessions *SessionManager

	// run executes one external command and returns its combined
	// output. Swappable for tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// New creates an Orchestrator.
func New(cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Image == "" {
		cfg.Image = "alice-worker"
	}
	if cfg.Timeout <= 0 && cfg.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	o := &Orchestrator{
		cfg:    cfg,
		logger: logger.With("component", "worker"),
	}
	o.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, name, args...).CombinedOutput()
	}
	o.sessions = newSessionManager(o, logger)
	return o
}

// Sessions returns the persistent-session manager for Gold users.
func (o *Orchestrator) Sessions() *SessionManager {
	return o.sessions
}

// FailureText maps an orchestrator error to the user-visible failure
// string. Only the missing-image case gets distinct wording; it is the
// one condition that needs operator action rather than a retry.
func FailureText(err error) string {
	if errors.Is(err, ErrImageMissing) {
		return "Error: worker image not found. Build it first with: docker build -f Dockerfile.worker -t alice-worker ."
	}
	return "Error: something went wrong while processing that. Please try again."
}

// ---------- Docker plumbing ----------

// docker runs a docker CLI command and returns its trimmed combined
// output.
func (o *Orchestrator) docker(ctx context.Context, args ...string) (string, error) {
	out, err := o.run(ctx, "docker", args...)
	result := strings.TrimSpace(string(out))
	if err != nil {
		if result != "" {
			return result, fmt.Errorf("docker %s: %s", args[0], result)
		}
		return result, fmt.Errorf("docker %s: %w", args[0], err)
	}
	return result, nil
}

// imageExists checks whether the worker image is present on the host.
func (o *Orchestrator) imageExists(ctx context.Context) bool {
	_, err := o.docker(ctx, "image", "inspect", o.cfg.Image)
	return err == nil
}

// removeContainer force-removes a container, ignoring not-found.
func (o *Orchestrator) removeContainer(ctx context.Context, name string) {
	if _, err := o.docker(ctx, "rm", "-f", name); err != nil {
		if !strings.Contains(err.Error(), "No such container") {
			o.logger.Debug("container remove failed", "name", name, "error", err)
		}
	}
}

// containerRunning reports whether the named container exists and is
// in the running state.
func (o *Orchestrator) containerRunning(ctx context.Context, name string) bool {
	out, err := o.docker(ctx, "inspect", "-f", "{{.State.Running}}", name)
	return err == nil && out == "true"
}

// workerEnv builds the -e flags passed to worker containers.
func (o *Orchestrator) workerEnv() []string {
	env := []string{
		"-e", "ANTHROPIC_API_KEY=" + o.cfg.APIKey,
		"-e", "CLAUDE_MODEL=" + o.cfg.Model,
	}
	if o.cfg.BaseURL != "" {
		env = append(env, "-e", "ANTHROPIC_BASE_URL="+o.cfg.BaseURL)
	}
	return env
}

// workerArgs builds the worker.py invocation for a prompt and optional
// serialized memory window.
func workerArgs(prompt string, memory []store.MemoryEntry) ([]string, error) {
	args := []string{"python", "worker.py", "--prompt", prompt}
	if len(memory) > 0 {
		raw, err := json.Marshal(memory)
		if err != nil {
			return nil, fmt.Errorf("serialize memory window: %w", err)
		}
		args = append(args, "--memory", string(raw))
	}
	return args, nil
}
