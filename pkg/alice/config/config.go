// Package config defines Alice's configuration tree and loads it from
// YAML with environment variable expansion and OS-keyring secret
// resolution.
package config

import (
	"fmt"

	"github.com/v-sk/alice/pkg/alice/assistant"
	"github.com/v-sk/alice/pkg/alice/channels/discord"
	"github.com/v-sk/alice/pkg/alice/channels/telegram"
	"github.com/v-sk/alice/pkg/alice/scheduler"
	"github.com/v-sk/alice/pkg/alice/worker"
)

// Config is the root configuration for the Alice bot.
type Config struct {
	// Name is the bot's display name used in logs.
	Name string `yaml:"name"`

	// Database holds the SQLite settings.
	Database DatabaseConfig `yaml:"database"`

	// Log holds logging settings.
	Log LogConfig `yaml:"log"`

	// Assistant holds the message pipeline settings.
	Assistant assistant.Config `yaml:"assistant"`

	// Worker holds the sandbox orchestrator settings.
	Worker worker.Config `yaml:"worker"`

	// Scheduler holds the background task loop settings.
	Scheduler scheduler.Config `yaml:"scheduler"`

	// Channels holds per-transport settings.
	Channels ChannelsConfig `yaml:"channels"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	// Path is the SQLite database file location.
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// ChannelsConfig holds per-transport settings. A transport with
// enabled=false (or a missing token) is simply not registered.
type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
}

// TelegramConfig wraps the telegram transport config with an enable flag.
type TelegramConfig struct {
	Enabled         bool `yaml:"enabled"`
	telegram.Config `yaml:",inline"`
}

// DiscordConfig wraps the discord transport config with an enable flag.
type DiscordConfig struct {
	Enabled        bool `yaml:"enabled"`
	discord.Config `yaml:",inline"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Name: "Alice",
		Database: DatabaseConfig{
			Path: "data/alice.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Assistant: assistant.DefaultConfig(),
		Worker:    worker.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{Config: telegram.DefaultConfig()},
			Discord:  DiscordConfig{Config: discord.DefaultConfig()},
		},
	}
}

// Validate checks the configuration for fatal problems.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Channels.Telegram.Enabled && c.Channels.Telegram.Token == "" {
		return fmt.Errorf("channels.telegram.token is required when telegram is enabled")
	}
	if c.Channels.Discord.Enabled && c.Channels.Discord.Token == "" {
		return fmt.Errorf("channels.discord.token is required when discord is enabled")
	}
	return nil
}
