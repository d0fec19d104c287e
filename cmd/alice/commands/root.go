// Package commands implements the Alice CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "alice",
		Short: "Alice - tiered AI assistant bot",
		Long: `Alice is a tiered AI assistant bot for Telegram and Discord.
Bronze users chat statelessly, Silver users get memory and scheduled
tasks, Gold users get a persistent worker sandbox.

Examples:
  alice serve
  alice serve --channel telegram
  alice config set-key
  alice tasks list 12345678`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newConfigCmd(),
		newTasksCmd(),
	)

	// Global flags.
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
