// Package assistant – bridge.go maps conversations to remote sessions
// and drives a run to completion or to an escalation signal.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/christried/GilgesBA/pkg/support/store"
)

// Sentinel errors surfaced to the API layer.
var (
	// ErrRunTimeout reports that the run did not reach a terminal state
	// within the configured poll budget.
	ErrRunTimeout = errors.New("assistant run timed out")

	// ErrRunFailed reports a terminal run state other than completed.
	ErrRunFailed = errors.New("assistant run failed")

	// ErrNoReply reports a completed run with no assistant message.
	ErrNoReply = errors.New("no response from assistant")
)

// PollPolicy bounds the run status polling loop.
type PollPolicy struct {
	// Interval is the first wait between status checks.
	Interval time.Duration

	// MaxInterval caps the backoff growth.
	MaxInterval time.Duration

	// Timeout is the total budget for one run.
	Timeout time.Duration
}

// backoffFactor grows the poll interval between checks.
const backoffFactor = 1.8

// DefaultPollPolicy is used when a zero policy is supplied.
var DefaultPollPolicy = PollPolicy{
	Interval:    500 * time.Millisecond,
	MaxInterval: 5 * time.Second,
	Timeout:     120 * time.Second,
}

// Reply is the outcome of one conversation turn.
type Reply struct {
	// ConversationID identifies the conversation, freshly generated on
	// first contact.
	ConversationID string

	// Text is the assistant reply. Empty when Escalated is set.
	Text string

	// Escalated reports that the assistant requested a human handover
	// instead of answering.
	Escalated bool
}

// Bridge resolves conversations to remote sessions, submits user turns
// and persists both sides of the exchange.
type Bridge struct {
	client      *Client
	store       *store.Store
	assistantID string
	poll        PollPolicy
	logger      *slog.Logger

	// locks serializes turns per conversation so a conversation never
	// has two in-flight runs or two competing session creations.
	locks   map[string]*sync.Mutex
	locksMu sync.Mutex
}

// NewBridge creates a Bridge over the given client and store.
func NewBridge(client *Client, st *store.Store, assistantID string, poll PollPolicy, logger *slog.Logger) *Bridge {
	if poll.Interval <= 0 {
		poll = DefaultPollPolicy
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Bridge{
		client:      client,
		store:       st,
		assistantID: assistantID,
		poll:        poll,
		logger:      logger.With("component", "bridge"),
		locks:       make(map[string]*sync.Mutex),
	}
}

// Send submits a user turn. An empty conversationID starts a new
// conversation with a fresh remote session. The user turn is persisted
// before any remote call, so the log keeps it even when the remote
// service fails afterwards.
func (b *Bridge) Send(ctx context.Context, conversationID, text string) (*Reply, error) {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	unlock := b.lockConversation(conversationID)
	defer unlock()

	threadID, err := b.resolveThread(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if _, err := b.store.CreateMessage(ctx, &store.Message{
		ConversationID: conversationID,
		Role:           store.RoleUser,
		Content:        text,
		ThreadID:       threadID,
	}); err != nil {
		return nil, fmt.Errorf("persist user turn: %w", err)
	}

	if err := b.client.AddMessage(ctx, threadID, store.RoleUser, text); err != nil {
		return nil, err
	}

	run, err := b.client.CreateRun(ctx, threadID, b.assistantID)
	if err != nil {
		return nil, err
	}

	run, err = b.awaitRun(ctx, threadID, run)
	if err != nil {
		return nil, err
	}

	switch run.Status {
	case RunStatusRequiresAction:
		if escalationRequested(run) {
			b.logger.Info("assistant requested human handover", "conversation_id", conversationID)
			// No tool output is submitted; the caller decides how to
			// route the handover.
			return &Reply{ConversationID: conversationID, Escalated: true}, nil
		}
		return nil, fmt.Errorf("%w: unexpected tool request", ErrRunFailed)

	case RunStatusCompleted:
		reply, err := b.latestAssistantText(ctx, threadID)
		if err != nil {
			return nil, err
		}
		if _, err := b.store.CreateMessage(ctx, &store.Message{
			ConversationID: conversationID,
			Role:           store.RoleAssistant,
			Content:        reply,
			ThreadID:       threadID,
		}); err != nil {
			return nil, fmt.Errorf("persist assistant turn: %w", err)
		}
		return &Reply{ConversationID: conversationID, Text: reply}, nil

	default:
		return nil, fmt.Errorf("%w: status %s", ErrRunFailed, run.Status)
	}
}

// resolveThread returns the remote session bound to the conversation,
// creating one when the conversation is new. A supplied conversation id
// without a binding means the store and the remote state disagree; the
// conversation continues under a fresh session, but the inconsistency
// is logged loudly rather than masked.
func (b *Bridge) resolveThread(ctx context.Context, conversationID string) (string, error) {
	threadID, err := b.store.ThreadForConversation(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("resolve session: %w", err)
	}
	if threadID != "" {
		return threadID, nil
	}

	messages, err := b.store.ListMessages(ctx, &store.FindMessage{ConversationID: &conversationID})
	if err != nil {
		return "", fmt.Errorf("resolve session: %w", err)
	}
	if len(messages) > 0 {
		b.logger.Warn("conversation has no session binding; creating a new remote session",
			"conversation_id", conversationID,
			"messages", len(messages),
		)
	}

	thread, err := b.client.CreateThread(ctx)
	if err != nil {
		return "", err
	}
	return thread.ID, nil
}

// awaitRun polls the run with exponential backoff until it leaves the
// queued/in-progress states, the poll budget is exhausted, or ctx is
// cancelled.
func (b *Bridge) awaitRun(ctx context.Context, threadID string, run *Run) (*Run, error) {
	deadline := time.Now().Add(b.poll.Timeout)
	interval := b.poll.Interval

	for run.Status == RunStatusQueued || run.Status == RunStatusInProgress {
		if time.Now().After(deadline) {
			b.logger.Warn("run poll budget exhausted",
				"run_id", run.ID,
				"timeout", b.poll.Timeout,
			)
			return nil, ErrRunTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		interval = time.Duration(float64(interval) * backoffFactor)
		if interval > b.poll.MaxInterval {
			interval = b.poll.MaxInterval
		}

		var err error
		run, err = b.client.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return nil, err
		}
	}

	return run, nil
}

// latestAssistantText returns the newest assistant-authored message.
func (b *Bridge) latestAssistantText(ctx context.Context, threadID string) (string, error) {
	messages, err := b.client.ListMessages(ctx, threadID)
	if err != nil {
		return "", err
	}
	// Messages arrive newest first.
	for _, m := range messages {
		if m.Role == store.RoleAssistant {
			return m.Text(), nil
		}
	}
	return "", ErrNoReply
}

// lockConversation takes the per-conversation mutex and returns its
// unlock function.
func (b *Bridge) lockConversation(conversationID string) func() {
	b.locksMu.Lock()
	mu, ok := b.locks[conversationID]
	if !ok {
		mu = &sync.Mutex{}
		b.locks[conversationID] = mu
	}
	b.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func escalationRequested(run *Run) bool {
	if run.RequiredAction == nil {
		return false
	}
	for _, call := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
		if call.Function.Name == EscalationToolName {
			return true
		}
	}
	return false
}
