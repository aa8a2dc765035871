package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/christried/GilgesBA/pkg/support/store"
	"github.com/christried/GilgesBA/pkg/support/store/db/sqlite"
)

// fakeAssistants emulates the remote assistants API. The run walks
// through statusSequence: the first element is returned by run
// creation, each poll advances one step, and the last element repeats.
type fakeAssistants struct {
	mu             sync.Mutex
	threadsCreated int
	pollCount      int
	statusSequence []string
	escalate       bool
	replyText      string
}

func (f *fakeAssistants) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /threads", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.threadsCreated++
		f.mu.Unlock()
		writeJSON(w, map[string]any{"id": "thread_1"})
	})
	mux.HandleFunc("POST /threads/{thread}/messages", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"id": "msg_1"})
	})
	mux.HandleFunc("POST /threads/{thread}/runs", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, f.runJSON(f.statusSequence[0]))
	})
	mux.HandleFunc("GET /threads/{thread}/runs/{run}", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.pollCount++
		idx := f.pollCount
		if idx >= len(f.statusSequence) {
			idx = len(f.statusSequence) - 1
		}
		status := f.statusSequence[idx]
		f.mu.Unlock()
		writeJSON(w, f.runJSON(status))
	})
	mux.HandleFunc("GET /threads/{thread}/messages", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{
			"data": []map[string]any{
				{
					"id":   "msg_2",
					"role": "assistant",
					"content": []map[string]any{
						{"type": "text", "text": map[string]any{"value": f.replyText}},
					},
				},
				{
					"id":   "msg_1",
					"role": "user",
					"content": []map[string]any{
						{"type": "text", "text": map[string]any{"value": "hello"}},
					},
				},
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeAssistants) runJSON(status string) map[string]any {
	run := map[string]any{"id": "run_1", "status": status}
	if status == RunStatusRequiresAction && f.escalate {
		run["required_action"] = map[string]any{
			"submit_tool_outputs": map[string]any{
				"tool_calls": []map[string]any{
					{
						"id":   "call_1",
						"type": "function",
						"function": map[string]any{
							"name":      EscalationToolName,
							"arguments": "{}",
						},
					},
				},
			},
		}
	}
	return run
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "support.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	st := store.New(db)
	t.Cleanup(func() { st.Close() })
	return st
}

var testPoll = PollPolicy{
	Interval:    time.Millisecond,
	MaxInterval: 5 * time.Millisecond,
	Timeout:     time.Second,
}

func TestSendNewConversation(t *testing.T) {
	fake := &fakeAssistants{
		statusSequence: []string{RunStatusQueued, RunStatusInProgress, RunStatusCompleted},
		replyText:      "Hello, how can I help?",
	}
	srv := fake.server(t)
	st := newTestStore(t)
	bridge := NewBridge(NewClient(srv.URL, "test-key", nil), st, "asst_1", testPoll, nil)

	reply, err := bridge.Send(context.Background(), "", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if reply.ConversationID == "" {
		t.Fatal("expected a generated conversation id")
	}
	if reply.Escalated {
		t.Fatal("did not expect escalation")
	}
	if reply.Text != "Hello, how can I help?" {
		t.Fatalf("reply text = %q", reply.Text)
	}
	if fake.threadsCreated != 1 {
		t.Fatalf("threads created = %d, want 1", fake.threadsCreated)
	}

	// Both turns are in the log, bound to the remote session.
	messages, err := st.ListMessages(context.Background(), &store.FindMessage{
		ConversationID: &reply.ConversationID,
		Ascending:      true,
	})
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("stored messages = %d, want 2", len(messages))
	}
	if messages[0].Role != store.RoleUser || messages[0].Content != "hello" {
		t.Fatalf("unexpected first message: %+v", messages[0])
	}
	if messages[1].Role != store.RoleAssistant {
		t.Fatalf("unexpected second message: %+v", messages[1])
	}
	if messages[0].ThreadID != "thread_1" {
		t.Fatalf("user turn thread id = %q, want thread_1", messages[0].ThreadID)
	}
}

func TestSendReusesSession(t *testing.T) {
	fake := &fakeAssistants{
		statusSequence: []string{RunStatusCompleted},
		replyText:      "reply",
	}
	srv := fake.server(t)
	st := newTestStore(t)
	bridge := NewBridge(NewClient(srv.URL, "test-key", nil), st, "asst_1", testPoll, nil)
	ctx := context.Background()

	first, err := bridge.Send(ctx, "", "first turn")
	if err != nil {
		t.Fatalf("first send: %v", err)
	}
	if _, err := bridge.Send(ctx, first.ConversationID, "second turn"); err != nil {
		t.Fatalf("second send: %v", err)
	}

	if fake.threadsCreated != 1 {
		t.Fatalf("threads created = %d, want 1 across both turns", fake.threadsCreated)
	}
}

func TestSendEscalationSignal(t *testing.T) {
	fake := &fakeAssistants{
		statusSequence: []string{RunStatusQueued, RunStatusRequiresAction},
		escalate:       true,
	}
	srv := fake.server(t)
	st := newTestStore(t)
	bridge := NewBridge(NewClient(srv.URL, "test-key", nil), st, "asst_1", testPoll, nil)

	reply, err := bridge.Send(context.Background(), "", "I want a human")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !reply.Escalated {
		t.Fatal("expected escalation signal")
	}
	if reply.Text != "" {
		t.Fatalf("escalation reply must carry no text, got %q", reply.Text)
	}

	// The user turn is kept; no assistant turn is recorded.
	messages, err := st.ListMessages(context.Background(), &store.FindMessage{
		ConversationID: &reply.ConversationID,
	})
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("stored messages = %d, want 1", len(messages))
	}
	if messages[0].Role != store.RoleUser {
		t.Fatalf("unexpected stored role %q", messages[0].Role)
	}
}

func TestSendRunFailure(t *testing.T) {
	fake := &fakeAssistants{
		statusSequence: []string{RunStatusQueued, RunStatusFailed},
	}
	srv := fake.server(t)
	st := newTestStore(t)
	bridge := NewBridge(NewClient(srv.URL, "test-key", nil), st, "asst_1", testPoll, nil)

	_, err := bridge.Send(context.Background(), "", "hello")
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("expected ErrRunFailed, got %v", err)
	}
}

func TestSendRunTimeout(t *testing.T) {
	fake := &fakeAssistants{
		statusSequence: []string{RunStatusInProgress},
	}
	srv := fake.server(t)
	st := newTestStore(t)

	shortPoll := PollPolicy{
		Interval:    time.Millisecond,
		MaxInterval: 2 * time.Millisecond,
		Timeout:     20 * time.Millisecond,
	}
	bridge := NewBridge(NewClient(srv.URL, "test-key", nil), st, "asst_1", shortPoll, nil)

	_, err := bridge.Send(context.Background(), "", "hello")
	if !errors.Is(err, ErrRunTimeout) {
		t.Fatalf("expected ErrRunTimeout, got %v", err)
	}

	// The user turn survives the failed exchange.
	messages, err := st.ListMessages(context.Background(), &store.FindMessage{})
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("stored messages = %d, want the user turn only", len(messages))
	}
}

func TestSendCancelledContext(t *testing.T) {
	fake := &fakeAssistants{
		statusSequence: []string{RunStatusInProgress},
	}
	srv := fake.server(t)
	st := newTestStore(t)
	bridge := NewBridge(NewClient(srv.URL, "test-key", nil), st, "asst_1", testPoll, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := bridge.Send(ctx, "", "hello")
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
