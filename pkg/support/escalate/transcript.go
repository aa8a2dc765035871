// Package escalate – transcript.go renders conversation history into
// the human-readable forms used on tracker cards and in notification
// mails.
package escalate

import (
	"fmt"
	"strings"
	"time"

	"github.com/christried/GilgesBA/pkg/support/store"
)

const (
	// summaryHead and summaryTail bound the card summary: when a
	// conversation is longer than summaryHead+summaryTail turns, only
	// the first and last slices appear, joined by continuationMarker.
	summaryHead = 3
	summaryTail = 3

	continuationMarker = "...(conversation continued)..."
)

// Summary renders the bounded transcript used as the card description:
// every turn when the conversation has six or fewer, otherwise the
// first three and last three with an explicit continuation marker.
func Summary(messages []*store.Message) string {
	var b strings.Builder
	b.WriteString("## Conversation Summary\n\n")
	fmt.Fprintf(&b, "Total messages: %d\n\n", len(messages))

	if len(messages) <= summaryHead+summaryTail {
		for _, m := range messages {
			writeSummaryLine(&b, m)
		}
		return b.String()
	}

	for _, m := range messages[:summaryHead] {
		writeSummaryLine(&b, m)
	}
	b.WriteString(continuationMarker + "\n\n")
	for _, m := range messages[len(messages)-summaryTail:] {
		writeSummaryLine(&b, m)
	}
	return b.String()
}

func writeSummaryLine(b *strings.Builder, m *store.Message) {
	switch m.Role {
	case store.RoleUser:
		fmt.Fprintf(b, "**Customer:** %s\n\n", m.Content)
	case store.RoleAssistant:
		fmt.Fprintf(b, "**Support:** %s\n\n", m.Content)
	default:
		fmt.Fprintf(b, "%s\n\n", m.Content)
	}
}

// Full renders the complete timestamped transcript used in the
// escalation mail body.
func Full(messages []*store.Message, now time.Time) string {
	var b strings.Builder
	b.WriteString("FULL CONVERSATION TRANSCRIPT\n")
	fmt.Fprintf(&b, "Generated on: %s\n\n", now.Format("2006-01-02 15:04:05"))

	for _, m := range messages {
		timeStr := ""
		if !m.CreatedAt.IsZero() {
			timeStr = m.CreatedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(&b, "[%s] ", timeStr)

		switch m.Role {
		case store.RoleUser:
			fmt.Fprintf(&b, "CUSTOMER: %s\n\n", m.Content)
		case store.RoleAssistant:
			fmt.Fprintf(&b, "SUPPORT: %s\n\n", m.Content)
		default:
			fmt.Fprintf(&b, "%s\n\n", m.Content)
		}
	}
	return b.String()
}

// CardTitle names a tracker card with a short conversation identifier
// and a human-readable timestamp.
func CardTitle(conversationID string, now time.Time) string {
	short := conversationID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("Conversation %s - %s", short, now.Format("2006-01-02 15:04"))
}
