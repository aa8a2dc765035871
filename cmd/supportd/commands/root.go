// Package commands implements the supportd CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the CLI root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "supportd",
		Short: "Customer support chat backend",
		Long: `supportd is a customer-support chat backend. It relays user
messages to a hosted assistant, persists conversation history, and
escalates unresolved conversations to human support via email and a
tracker card.

Examples:
  supportd serve
  supportd serve --config ./config.yaml
  supportd sync
  supportd config set-key assistant`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(version),
		newSyncCmd(),
		newConfigCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
