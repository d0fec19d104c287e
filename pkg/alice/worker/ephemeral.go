// Package worker – ephemeral.go implements the one-shot execution path:
// spin up, run to completion, tear down, bounded by a timeout.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/v-sk/alice/pkg/alice/store"
)

// EphemeralName returns the deterministic container name for a user's
// one-shot worker. Deterministic naming is what lets a leaked container
// from a crashed run be detected and reclaimed before the next launch.
func EphemeralName(userID string) string {
	return "alice_worker_" + userID
}

// RunEphemeral executes the worker payload in a fresh container and
// returns its combined output. The container is removed on every exit
// path — success, timeout, or fault.
//
// Errors are from the package taxonomy: ErrImageMissing when the worker
// image is not provisioned, ErrTimeout when the bound expired, and a
// wrapped ErrExecution for everything else. Callers translate them with
// FailureText; this function never panics in normal operation.
func (o *Orchestrator) RunEphemeral(ctx context.Context, userID, prompt string, memory []store.MemoryEntry) (string, error) {
	name := EphemeralName(userID)
	log := o.logger.With("container", name)

	if !o.imageExists(ctx) {
		log.Error("worker image missing", "image", o.cfg.Image)
		return "", fmt.Errorf("%w: %s", ErrImageMissing, o.cfg.Image)
	}

	// Reclaim a stale container with this name left behind by a
	// previous run that crashed before cleanup.
	o.removeContainer(ctx, name)

	args, err := workerArgs(prompt, memory)
	if err != nil {
		log.Error("failed to build worker payload", "error", err)
		return "", fmt.Errorf("%w: %v", ErrExecution, err)
	}

	runArgs := append([]string{"run", "--name", name, "--entrypoint", ""}, o.workerEnv()...)
	runArgs = append(runArgs, o.cfg.Image)
	runArgs = append(runArgs, args...)

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	// Teardown is unconditional: a timed-out `docker run` kills the CLI
	// process but leaves the container behind, and a completed run still
	// has its stopped container to reap.
	defer o.removeContainer(context.WithoutCancel(ctx), name)

	start := time.Now()
	out, err := o.docker(runCtx, runArgs...)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			log.Error("worker timed out", "timeout", o.cfg.Timeout, "duration", duration)
			return "", fmt.Errorf("%w after %s", ErrTimeout, o.cfg.Timeout)
		}
		log.Error("worker run failed", "error", err, "duration", duration)
		return "", fmt.Errorf("%w: %v", ErrExecution, err)
	}

	log.Info("worker completed", "duration", duration, "output_len", len(out))
	return out, nil
}
