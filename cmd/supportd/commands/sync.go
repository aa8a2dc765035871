package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/christried/GilgesBA/pkg/support"
	"github.com/christried/GilgesBA/pkg/support/escalate"
	"github.com/christried/GilgesBA/pkg/support/mailer"
	"github.com/christried/GilgesBA/pkg/support/store"
	"github.com/christried/GilgesBA/pkg/support/store/db"
	"github.com/christried/GilgesBA/pkg/support/tracker"
)

// newSyncCmd creates the `supportd sync` command, a one-shot tracker sync.
func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Save all unsaved conversations to the tracker",
		Long: `Run one bulk sync pass: every stored conversation that has no
tracker card yet gets one. Conversations already saved are skipped.

Examples:
  supportd sync
  supportd sync --config ./config.yaml`,
		RunE: runSync,
	}

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, cfg)
	support.ResolveCredentials(cfg, logger)

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

	cards := tracker.NewClient(cfg.Tracker.BaseURL, cfg.Tracker.APIKey, cfg.Tracker.Token, cfg.Tracker.ListID, logger)
	if !cards.Configured() {
		return fmt.Errorf("tracker credentials missing, set TRELLO_API_KEY, TRELLO_TOKEN and TRELLO_LIST_ID")
	}

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

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	report, err := disp.SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	fmt.Printf("Sync finished: %d conversations, %d saved, %d failed, %d skipped\n",
		report.Total, report.Success, report.Failed, report.Skipped)
	for _, d := range report.Details {
		switch d.Status {
		case escalate.StatusSaved:
			fmt.Printf("  %s  saved  %s\n", d.ConversationID, d.CardURL)
		case escalate.StatusFailed:
			fmt.Printf("  %s  failed  %s\n", d.ConversationID, d.Reason)
		default:
			fmt.Printf("  %s  %s  %s\n", d.ConversationID, d.Status, d.Reason)
		}
	}

	return nil
}
