package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/v-sk/alice/pkg/alice/config"
)

// newConfigCmd creates the `alice config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage bot configuration",
		Long: `Manage Alice's configuration.

Examples:
  alice config init
  alice config show
  alice config set-key`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
		newConfigSetKeyCmd(),
	)

	return cmd
}

const configTemplate = `name: Alice

database:
  path: data/alice.db

log:
  level: info
  format: text

worker:
  image: alice-worker
  timeout_seconds: 120
  model: ${CLAUDE_MODEL:-}
  base_url: ${ANTHROPIC_BASE_URL:-}

scheduler:
  tick_seconds: 60

assistant:
  memory_window: 20
  max_reply_len: 4000
  admin_ids: []

channels:
  telegram:
    enabled: true
    token: ${TELEGRAM_TOKEN:?telegram bot token is required}
    respond_to_dms: true
    respond_to_groups: false
  discord:
    enabled: false
    token: ${DISCORD_TOKEN:-}
`

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config.yaml",
		RunE: func(_ *cobra.Command, _ []string) error {
			const path = "config.yaml"
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			fmt.Printf("Config written to ./%s\n", path)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			// Never print secrets.
			cfg.Worker.APIKey = ""
			redacted := *cfg
			if redacted.Channels.Telegram.Token != "" {
				redacted.Channels.Telegram.Token = "<set>"
			}
			if redacted.Channels.Discord.Token != "" {
				redacted.Channels.Discord.Token = "<set>"
			}

			data, err := yaml.Marshal(&redacted)
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the worker API key in the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			if !config.KeyringAvailable() {
				return fmt.Errorf("OS keyring is not available; set ANTHROPIC_API_KEY in .env instead")
			}

			key, err := config.ReadPassword("API key: ")
			if err != nil {
				return err
			}
			if key == "" {
				return fmt.Errorf("empty key, nothing stored")
			}

			if err := config.StoreKeyring(config.KeyringAPIKey, key); err != nil {
				return fmt.Errorf("storing key: %w", err)
			}
			fmt.Println("API key stored in the OS keyring.")
			return nil
		},
	}
}
