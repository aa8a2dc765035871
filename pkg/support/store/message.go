package store

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn within a conversation.
type Message struct {
	ID             int64
	ConversationID string
	Role           string // "user" | "assistant"
	Content        string
	// ThreadID is the remote assistant session this turn belongs to.
	// Every message of a conversation carries the same thread id; the
	// session is created once, at first turn, and reused afterwards.
	ThreadID  string
	CreatedAt time.Time
}

// FindMessage filters for ListMessages.
type FindMessage struct {
	// ConversationID narrows to one conversation when set.
	ConversationID *string

	// Ascending orders oldest-first when true, newest-first otherwise.
	Ascending bool
}

// Escalation marks a conversation as already forwarded to the tracker.
// At most one row exists per conversation; forwarding is idempotent.
type Escalation struct {
	ConversationID string
	CardID         string
	CardURL        string
	SavedAt        time.Time
}
