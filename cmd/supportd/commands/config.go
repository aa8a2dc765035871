package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/christried/GilgesBA/pkg/support"
)

// credentialKeys maps the user-facing credential names to keyring keys.
var credentialKeys = map[string]string{
	"assistant":     support.KeyAssistantAPIKey,
	"tracker-key":   support.KeyTrackerAPIKey,
	"tracker-token": support.KeyTrackerToken,
	"mail":          support.KeyMailPassword,
}

// newConfigCmd creates the `supportd config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage supportd configuration",
		Long: `Manage the supportd configuration file and stored credentials.

Examples:
  supportd config init
  supportd config show
  supportd config set-key assistant
  supportd config delete-key assistant`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
		newConfigSetKeyCmd(),
		newConfigDeleteKeyCmd(),
	)

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml",
		RunE: func(_ *cobra.Command, _ []string) error {
			const path = "config.yaml"
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, not overwriting", path)
			}
			if err := support.SaveConfigToFile(support.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Printf("Configuration written to ./%s\n", path)
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}

			fmt.Printf("Name:           %s\n", cfg.Name)
			fmt.Printf("Listen address: %s\n", cfg.Server.Address)
			fmt.Printf("Storage:        %s\n", cfg.Storage.Driver)
			fmt.Printf("Model:          %s\n", cfg.Assistant.Model)
			fmt.Printf("Assistant ID:   %s\n", orUnset(cfg.Assistant.AssistantID))
			fmt.Printf("Assistant key:  %s\n", redact(cfg.Assistant.APIKey))
			fmt.Printf("Tracker key:    %s\n", redact(cfg.Tracker.APIKey))
			fmt.Printf("Tracker list:   %s\n", orUnset(cfg.Tracker.ListID))
			fmt.Printf("Mail host:      %s:%d\n", cfg.Mail.Host, cfg.Mail.Port)
			fmt.Printf("Mail from:      %s\n", orUnset(cfg.Mail.From))
			fmt.Printf("Sync schedule:  %s (enabled=%t)\n", cfg.Scheduler.SyncSchedule, cfg.Scheduler.Enabled)
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key <credential>",
		Short: "Store a credential in the OS keyring",
		Long: `Store a credential in the operating system keyring instead of a
plaintext config file. Valid credentials: assistant, tracker-key,
tracker-token, mail. The value is read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			key, ok := credentialKeys[args[0]]
			if !ok {
				return fmt.Errorf("unknown credential %q (valid: assistant, tracker-key, tracker-token, mail)", args[0])
			}

			if !support.KeyringAvailable() {
				return fmt.Errorf("OS keyring not available on this system")
			}

			fmt.Printf("Enter value for %s: ", args[0])
			reader := bufio.NewReader(os.Stdin)
			value, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading value: %w", err)
			}
			value = strings.TrimSpace(value)
			if value == "" {
				return fmt.Errorf("empty value, nothing stored")
			}

			if err := support.StoreKeyring(key, value); err != nil {
				return fmt.Errorf("storing credential: %w", err)
			}
			fmt.Printf("Credential %q stored in the OS keyring.\n", args[0])
			return nil
		},
	}
}

func newConfigDeleteKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-key <credential>",
		Short: "Remove a credential from the OS keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			key, ok := credentialKeys[args[0]]
			if !ok {
				return fmt.Errorf("unknown credential %q (valid: assistant, tracker-key, tracker-token, mail)", args[0])
			}
			if err := support.DeleteKeyring(key); err != nil {
				return fmt.Errorf("deleting credential: %w", err)
			}
			fmt.Printf("Credential %q removed from the OS keyring.\n", args[0])
			return nil
		},
	}
}

func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func redact(s string) string {
	if s == "" || support.IsEnvReference(s) {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
