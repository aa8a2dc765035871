package escalate

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/christried/GilgesBA/pkg/support/store"
)

func makeMessages(n int) []*store.Message {
	messages := make([]*store.Message, 0, n)
	for i := 0; i < n; i++ {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		messages = append(messages, &store.Message{
			ConversationID: "conv-1",
			Role:           role,
			Content:        fmt.Sprintf("message %d", i+1),
			CreatedAt:      time.Date(2025, 3, 1, 10, i, 0, 0, time.UTC),
		})
	}
	return messages
}

func TestSummaryShortConversation(t *testing.T) {
	summary := Summary(makeMessages(4))

	if !strings.Contains(summary, "Total messages: 4") {
		t.Errorf("summary missing total count:\n%s", summary)
	}
	for i := 1; i <= 4; i++ {
		if !strings.Contains(summary, fmt.Sprintf("message %d", i)) {
			t.Errorf("summary missing message %d:\n%s", i, summary)
		}
	}
	if strings.Contains(summary, continuationMarker) {
		t.Errorf("short conversation must not contain the continuation marker:\n%s", summary)
	}
}

func TestSummaryBoundaryIsSixMessages(t *testing.T) {
	summary := Summary(makeMessages(6))
	if strings.Contains(summary, continuationMarker) {
		t.Errorf("six messages should all appear without the marker:\n%s", summary)
	}
	for i := 1; i <= 6; i++ {
		if !strings.Contains(summary, fmt.Sprintf("message %d", i)) {
			t.Errorf("summary missing message %d", i)
		}
	}
}

func TestSummaryLongConversation(t *testing.T) {
	summary := Summary(makeMessages(10))

	if !strings.Contains(summary, continuationMarker) {
		t.Fatalf("long conversation must contain the continuation marker:\n%s", summary)
	}
	if !strings.Contains(summary, "Total messages: 10") {
		t.Errorf("summary missing total count:\n%s", summary)
	}

	// First three and last three only.
	for _, i := range []int{1, 2, 3, 8, 9, 10} {
		if !strings.Contains(summary, fmt.Sprintf("message %d\n", i)) {
			t.Errorf("summary missing message %d:\n%s", i, summary)
		}
	}
	for _, i := range []int{4, 5, 6, 7} {
		if strings.Contains(summary, fmt.Sprintf("message %d\n", i)) {
			t.Errorf("summary must omit middle message %d:\n%s", i, summary)
		}
	}

	// The marker sits between the head and tail slices.
	markerPos := strings.Index(summary, continuationMarker)
	if strings.Index(summary, "message 3") > markerPos {
		t.Error("head messages must appear before the marker")
	}
	if strings.Index(summary, "message 8") < markerPos {
		t.Error("tail messages must appear after the marker")
	}
}

func TestSummaryRoleLabels(t *testing.T) {
	messages := []*store.Message{
		{Role: store.RoleUser, Content: "I need help"},
		{Role: store.RoleAssistant, Content: "How can I help?"},
	}
	summary := Summary(messages)

	if !strings.Contains(summary, "**Customer:** I need help") {
		t.Errorf("user turns must be labelled Customer:\n%s", summary)
	}
	if !strings.Contains(summary, "**Support:** How can I help?") {
		t.Errorf("assistant turns must be labelled Support:\n%s", summary)
	}
}

func TestFullTranscript(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 30, 45, 0, time.UTC)
	messages := []*store.Message{
		{Role: store.RoleUser, Content: "question", CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{Role: store.RoleAssistant, Content: "answer", CreatedAt: time.Date(2025, 3, 1, 10, 1, 0, 0, time.UTC)},
	}

	full := Full(messages, now)

	if !strings.HasPrefix(full, "FULL CONVERSATION TRANSCRIPT\n") {
		t.Errorf("transcript missing header:\n%s", full)
	}
	if !strings.Contains(full, "Generated on: 2025-03-01 12:30:45") {
		t.Errorf("transcript missing generation timestamp:\n%s", full)
	}
	if !strings.Contains(full, "[2025-03-01 10:00:00] CUSTOMER: question") {
		t.Errorf("transcript missing customer line:\n%s", full)
	}
	if !strings.Contains(full, "[2025-03-01 10:01:00] SUPPORT: answer") {
		t.Errorf("transcript missing support line:\n%s", full)
	}
}

func TestCardTitle(t *testing.T) {
	now := time.Date(2025, 3, 1, 14, 5, 0, 0, time.UTC)

	title := CardTitle("abcdef12-3456-7890", now)
	if title != "Conversation abcdef12 - 2025-03-01 14:05" {
		t.Fatalf("unexpected card title: %q", title)
	}

	// Short ids are kept whole.
	title = CardTitle("short", now)
	if title != "Conversation short - 2025-03-01 14:05" {
		t.Fatalf("unexpected card title for short id: %q", title)
	}
}
