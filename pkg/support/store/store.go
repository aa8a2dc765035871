// Package store persists conversation history and escalation tracking.
// The Store delegates to a Driver so the service can run on SQLite
// (default) or PostgreSQL without the callers caring which.
package store

import "context"

// Driver is the database-specific implementation behind the Store.
type Driver interface {
	CreateMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error)
	ListConversationIDs(ctx context.Context) ([]string, error)
	ThreadForConversation(ctx context.Context, conversationID string) (string, error)
	GetEscalation(ctx context.Context, conversationID string) (*Escalation, error)
	CreateEscalationIfAbsent(ctx context.Context, create *Escalation) (bool, error)
	Close() error
}

// Store is the persistence facade used by the bridge, dispatcher and API.
type Store struct {
	driver Driver
}

// New creates a Store over the given driver.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

// CreateMessage appends a message row. Rows are never mutated or deleted.
func (s *Store) CreateMessage(ctx context.Context, create *Message) (*Message, error) {
	return s.driver.CreateMessage(ctx, create)
}

// ListMessages returns messages matching the given filter.
func (s *Store) ListMessages(ctx context.Context, find *FindMessage) ([]*Message, error) {
	return s.driver.ListMessages(ctx, find)
}

// ListConversationIDs returns every distinct conversation id present.
func (s *Store) ListConversationIDs(ctx context.Context) ([]string, error) {
	return s.driver.ListConversationIDs(ctx)
}

// ThreadForConversation returns the remote session id bound to the
// conversation, or empty string when no binding exists.
func (s *Store) ThreadForConversation(ctx context.Context, conversationID string) (string, error) {
	return s.driver.ThreadForConversation(ctx, conversationID)
}

// GetEscalation returns the escalation record for a conversation,
// or nil when the conversation has not been forwarded.
func (s *Store) GetEscalation(ctx context.Context, conversationID string) (*Escalation, error) {
	return s.driver.GetEscalation(ctx, conversationID)
}

// CreateEscalationIfAbsent inserts the record unless one already exists
// for the conversation. The insert is a single atomic statement, so two
// concurrent escalations cannot both report having created the record.
// Returns false when an existing record won.
func (s *Store) CreateEscalationIfAbsent(ctx context.Context, create *Escalation) (bool, error) {
	return s.driver.CreateEscalationIfAbsent(ctx, create)
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.driver.Close()
}
