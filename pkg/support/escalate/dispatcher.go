// Package escalate transfers conversations to human handling: tracker
// cards, notification mails, and the idempotent record keeping that
// guarantees each conversation is forwarded at most once.
package escalate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/christried/GilgesBA/pkg/support/store"
	"github.com/christried/GilgesBA/pkg/support/tracker"
)

// ErrEmptyConversation reports a forward request for a conversation
// with no stored messages.
var ErrEmptyConversation = errors.New("conversation has no messages")

// Outcome statuses.
const (
	StatusSaved        = "saved"
	StatusAlreadySaved = "already_saved"
	StatusFailed       = "failed"
	StatusSkipped      = "skipped"
)

// Outcome is the result of forwarding one conversation.
type Outcome struct {
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	CardID         string `json:"card_id,omitempty"`
	CardURL        string `json:"card_url,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// Report aggregates a bulk sync pass.
type Report struct {
	Total   int       `json:"total"`
	Success int       `json:"success"`
	Failed  int       `json:"failed"`
	Skipped int       `json:"skipped"`
	Details []Outcome `json:"details"`
}

// CardCreator is the tracker surface the dispatcher needs.
type CardCreator interface {
	Configured() bool
	CreateCard(ctx context.Context, name, description string) (*tracker.Card, error)
}

// Notifier is the mail surface the dispatcher needs.
type Notifier interface {
	Configured() bool
	Send(ctx context.Context, subject, body string) error
}

// Dispatcher forwards conversations to the tracker and mail relay.
type Dispatcher struct {
	store   *store.Store
	tracker CardCreator
	mailer  Notifier
	logger  *slog.Logger

	// now is swapped in tests for deterministic card titles.
	now func() time.Time
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(st *store.Store, cards CardCreator, notifier Notifier, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		store:   st,
		tracker: cards,
		mailer:  notifier,
		logger:  logger.With("component", "escalate"),
		now:     time.Now,
	}
}

// Escalate forwards one conversation to the tracker, exactly once.
// A conversation already forwarded returns the prior card as
// already_saved; the tracker is not called again. On tracker failure
// nothing is recorded, so the caller may safely retry.
func (d *Dispatcher) Escalate(ctx context.Context, conversationID string) (*Outcome, error) {
	if existing, err := d.store.GetEscalation(ctx, conversationID); err != nil {
		return nil, fmt.Errorf("escalation lookup: %w", err)
	} else if existing != nil {
		return &Outcome{
			ConversationID: conversationID,
			Status:         StatusAlreadySaved,
			CardID:         existing.CardID,
			CardURL:        existing.CardURL,
		}, nil
	}

	messages, err := d.store.ListMessages(ctx, &store.FindMessage{
		ConversationID: &conversationID,
		Ascending:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if len(messages) == 0 {
		return nil, ErrEmptyConversation
	}

	card, err := d.tracker.CreateCard(ctx, CardTitle(conversationID, d.now()), Summary(messages))
	if err != nil {
		d.logger.Error("tracker forward failed", "conversation_id", conversationID, "error", err)
		return nil, err
	}

	created, err := d.store.CreateEscalationIfAbsent(ctx, &store.Escalation{
		ConversationID: conversationID,
		CardID:         card.ID,
		CardURL:        card.ShortURL,
	})
	if err != nil {
		return nil, fmt.Errorf("record escalation: %w", err)
	}
	if !created {
		// A concurrent escalation won the insert; report its card.
		existing, err := d.store.GetEscalation(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("escalation lookup: %w", err)
		}
		d.logger.Warn("duplicate card filed by concurrent escalation",
			"conversation_id", conversationID,
			"kept_card_id", existing.CardID,
			"extra_card_id", card.ID,
		)
		return &Outcome{
			ConversationID: conversationID,
			Status:         StatusAlreadySaved,
			CardID:         existing.CardID,
			CardURL:        existing.CardURL,
		}, nil
	}

	d.logger.Info("conversation forwarded to tracker",
		"conversation_id", conversationID,
		"card_id", card.ID,
	)
	return &Outcome{
		ConversationID: conversationID,
		Status:         StatusSaved,
		CardID:         card.ID,
		CardURL:        card.ShortURL,
	}, nil
}

// SyncAll forwards every unsaved conversation. Safe to re-run: saved
// conversations are skipped by the idempotency record.
func (d *Dispatcher) SyncAll(ctx context.Context) (*Report, error) {
	ids, err := d.store.ListConversationIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	report := &Report{
		Total:   len(ids),
		Details: make([]Outcome, 0, len(ids)),
	}

	for _, id := range ids {
		outcome, err := d.Escalate(ctx, id)
		switch {
		case errors.Is(err, ErrEmptyConversation):
			report.Skipped++
			report.Details = append(report.Details, Outcome{
				ConversationID: id,
				Status:         StatusSkipped,
				Reason:         "no messages found",
			})
		case err != nil:
			report.Failed++
			report.Details = append(report.Details, Outcome{
				ConversationID: id,
				Status:         StatusFailed,
				Reason:         err.Error(),
			})
		case outcome.Status == StatusAlreadySaved:
			report.Skipped++
			report.Details = append(report.Details, Outcome{
				ConversationID: id,
				Status:         StatusSkipped,
				CardID:         outcome.CardID,
				Reason:         "already saved",
			})
		default:
			report.Success++
			report.Details = append(report.Details, *outcome)
		}
	}

	d.logger.Info("bulk sync finished",
		"total", report.Total,
		"success", report.Success,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	return report, nil
}

// ManualEscalate handles an explicit "talk to a human" request. The
// tracker card is best-effort: its failure is logged but does not fail
// the request. The notification mail is the success criterion.
func (d *Dispatcher) ManualEscalate(ctx context.Context, conversationID, lastMessage, reporterEmail string) error {
	messages, err := d.store.ListMessages(ctx, &store.FindMessage{
		ConversationID: &conversationID,
		Ascending:      true,
	})
	if err != nil {
		d.logger.Error("loading history for manual escalation failed",
			"conversation_id", conversationID, "error", err)
		messages = nil
	}

	// The triggering message is part of the handover context even when
	// it never reached the assistant.
	messages = append(messages, &store.Message{
		ConversationID: conversationID,
		Role:           store.RoleUser,
		Content:        lastMessage,
		CreatedAt:      d.now(),
	})

	if d.tracker.Configured() {
		if _, err := d.tracker.CreateCard(ctx, CardTitle(conversationID, d.now()), Summary(messages)); err != nil {
			d.logger.Error("manual escalation card failed",
				"conversation_id", conversationID, "error", err)
		}
	} else {
		d.logger.Warn("tracker not configured, skipping card creation")
	}

	ticket := shortuuid.New()
	subject := fmt.Sprintf("Chat Escalation [%s]", ticket)
	body := fmt.Sprintf(
		"An escalation has been requested.\n\n"+
			"Ticket: %s\nEmail: %s\nConversation ID: %s\nLast Message: %s\n\n%s",
		ticket, reporterEmail, conversationID, lastMessage, Full(messages, d.now()),
	)

	if err := d.mailer.Send(ctx, subject, body); err != nil {
		d.logger.Error("escalation mail failed", "conversation_id", conversationID, "error", err)
		return err
	}
	return nil
}
