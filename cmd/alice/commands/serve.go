package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/v-sk/alice/pkg/alice/assistant"
	"github.com/v-sk/alice/pkg/alice/channels"
	"github.com/v-sk/alice/pkg/alice/channels/discord"
	"github.com/v-sk/alice/pkg/alice/channels/telegram"
	"github.com/v-sk/alice/pkg/alice/config"
	"github.com/v-sk/alice/pkg/alice/directive"
	"github.com/v-sk/alice/pkg/alice/scheduler"
	"github.com/v-sk/alice/pkg/alice/store"
	"github.com/v-sk/alice/pkg/alice/worker"
)

// newServeCmd creates the `alice serve` command that starts the bot.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bot with messaging channels",
		Long: `Start Alice as a daemon, connecting to the enabled channels
(Telegram, Discord), running the background task scheduler, and
processing messages.

Examples:
  alice serve
  alice serve --channel telegram
  alice serve --config ./config.yaml`,
		RunE: runServe,
	}

	cmd.Flags().StringSlice("channel", nil, "channels to enable (telegram, discord)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	// ── Load config ──
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// ── Configure logger ──
	logger := buildLogger(cmd, cfg)

	// ── Resolve secrets ──
	config.ResolveAPIKey(cfg, logger)

	// ── Open store ──
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	// ── Build the core ──
	orch := worker.New(cfg.Worker, logger)
	directives := directive.NewProcessor(st, logger)
	channelMgr := channels.NewManager(logger)
	asst := assistant.New(cfg.Assistant, st, channelMgr, orch, directives, logger)
	sched := scheduler.New(cfg.Scheduler, st, orch, directives, asst.Notify, logger)

	// ── Register channels ──
	channelFilter, _ := cmd.Flags().GetStringSlice("channel")

	if shouldEnable("telegram", channelFilter, cfg.Channels.Telegram.Enabled) && cfg.Channels.Telegram.Token != "" {
		tg := telegram.New(cfg.Channels.Telegram.Config, logger)
		if err := channelMgr.Register(tg); err != nil {
			logger.Error("failed to register Telegram", "error", err)
		}
	}
	if shouldEnable("discord", channelFilter, cfg.Channels.Discord.Enabled) && cfg.Channels.Discord.Token != "" {
		dc := discord.New(cfg.Channels.Discord.Config, logger)
		if err := channelMgr.Register(dc); err != nil {
			logger.Error("failed to register Discord", "error", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Reclaim leftovers from a previous process ──
	orch.Sessions().Reconcile(ctx)

	// ── Start everything ──
	if err := channelMgr.Start(ctx); err != nil {
		return fmt.Errorf("starting channels: %w", err)
	}
	asst.Start(ctx)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	logger.Info("Alice running. Press Ctrl+C to stop.",
		"name", cfg.Name,
		"database", cfg.Database.Path,
		"tick_seconds", cfg.Scheduler.TickSeconds,
	)

	// ── Wait for shutdown ──
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	done := make(chan struct{})
	go func() {
		sched.Stop()
		asst.Stop()
		channelMgr.Stop()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		orch.Sessions().CloseAll(shutdownCtx)
		cancelShutdown()

		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(30 * time.Second):
		logger.Warn("shutdown timed out, forcing exit")
	}

	return nil
}

// resolveConfig loads the config from the --config flag, discovered
// standard locations, or built-in defaults (in that order).
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	if configPath != "" {
		return config.LoadFile(configPath)
	}
	if found := config.FindConfigFile(); found != "" {
		return config.LoadFile(found)
	}
	return config.Default(), nil
}

// buildLogger configures slog from the config and --verbose flag.
func buildLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	if verbose || cfg.Log.Level == "debug" {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}

// shouldEnable decides whether a channel starts, honoring the --channel
// filter over the config's enabled flag.
func shouldEnable(name string, filter []string, configEnabled bool) bool {
	if len(filter) == 0 {
		return configEnabled
	}
	for _, f := range filter {
		if f == name {
			return true
		}
	}
	return false
}
