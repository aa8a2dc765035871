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

	"github.com/christried/GilgesBA/pkg/support"
	"github.com/christried/GilgesBA/pkg/support/assistant"
	"github.com/christried/GilgesBA/pkg/support/escalate"
	"github.com/christried/GilgesBA/pkg/support/knowledge"
	"github.com/christried/GilgesBA/pkg/support/mailer"
	"github.com/christried/GilgesBA/pkg/support/scheduler"
	"github.com/christried/GilgesBA/pkg/support/server"
	"github.com/christried/GilgesBA/pkg/support/store"
	"github.com/christried/GilgesBA/pkg/support/store/db"
	"github.com/christried/GilgesBA/pkg/support/tracker"
)

// newServeCmd creates the `supportd serve` command that starts the daemon.
func newServeCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat backend daemon",
		Long: `Start supportd as a daemon: serve the chat API, relay messages to
the assistant, and run the scheduled tracker sync.

Examples:
  supportd serve
  supportd serve --config ./config.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, version)
		},
	}

	return cmd
}

func runServe(cmd *cobra.Command, version string) error {
	// ── Load config ──
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// ── Configure logger ──
	logger := newLogger(cmd, cfg)

	// ── Resolve secrets ──
	// Keyring → env → config, in that order.
	support.ResolveCredentials(cfg, logger)

	// ── Open storage ──
	driver, err := db.NewDriver(db.Options{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
		DSN:    cfg.Storage.DSN,
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	st := store.New(driver)
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Assistant ──
	client := assistant.NewClient(cfg.Assistant.BaseURL, cfg.Assistant.APIKey, logger)

	assistantID := cfg.Assistant.AssistantID
	if assistantID == "" {
		assistantID, err = knowledge.Provision(ctx, client, knowledge.Options{
			Name:         cfg.Name,
			Model:        cfg.Assistant.Model,
			Instructions: cfg.Assistant.Instructions,
			Dir:          cfg.Assistant.KnowledgeDir,
		}, logger)
		if err != nil {
			return fmt.Errorf("provisioning assistant: %w", err)
		}
		logger.Info("assistant provisioned", "assistant_id", assistantID)
	}

	bridge := assistant.NewBridge(client, st, assistantID, assistant.PollPolicy{
		Interval:    cfg.Assistant.Poll.Interval,
		MaxInterval: cfg.Assistant.Poll.MaxInterval,
		Timeout:     cfg.Assistant.Poll.Timeout,
	}, logger)

	// ── Escalation ──
	cards := tracker.NewClient(cfg.Tracker.BaseURL, cfg.Tracker.APIKey, cfg.Tracker.Token, cfg.Tracker.ListID, logger)
	mail := mailer.New(mailer.Options{
		Host:       cfg.Mail.Host,
		Port:       cfg.Mail.Port,
		Username:   cfg.Mail.Username,
		Password:   cfg.Mail.Password,
		From:       cfg.Mail.From,
		Recipients: cfg.Mail.Recipients,
		SSL:        cfg.Mail.SSL,
	}, logger)
	disp := escalate.NewDispatcher(st, cards, mail, logger)

	// ── Scheduler ──
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(cfg.Scheduler.SyncSchedule, disp, logger)
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
	}

	// ── API server ──
	srv := server.New(server.Options{
		Address:     cfg.Server.Address,
		Version:     version,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, bridge, disp, st, logger)
	srv.Start()

	// ── Wait for shutdown ──
	logger.Info("supportd running. Press Ctrl+C to stop.",
		"name", cfg.Name,
		"address", cfg.Server.Address,
		"storage", cfg.Storage.Driver,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	// Graceful shutdown with timeout.
	done := make(chan struct{})
	go func() {
		srv.Stop()
		if sched != nil {
			sched.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}

	return nil
}

// newLogger builds the process logger from config and the --verbose flag.
func newLogger(cmd *cobra.Command, cfg *support.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logLevel := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}

// resolveConfig loads config from the --config path or by auto-discovery,
// falling back to defaults when no file exists.
func resolveConfig(cmd *cobra.Command) (*support.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	// Try explicit path first.
	if configPath != "" {
		cfg, err := support.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	// Auto-discover config file.
	if found := support.FindConfigFile(); found != "" {
		cfg, err := support.LoadConfigFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		slog.Info("config loaded", "path", found)
		return cfg, nil
	}

	// No config file. Defaults plus environment variables are enough for
	// a first run, so start with those.
	slog.Info("no config file found, using defaults and environment")
	return support.LoadConfigFromEnv(), nil
}
