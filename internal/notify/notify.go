// Package notify announces completed session analytics runs to chat
// platforms (Slack, Discord).
package notify

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/zulandar/stenograph/internal/accumulate"
	"github.com/zulandar/stenograph/internal/models"
)

// Notifier delivers a session-updated notice to one platform.
type Notifier interface {
	SessionUpdated(ctx context.Context, session *models.WorkSession, analytics *accumulate.Analytics) error
}

// Multi fans a notice out to several platforms. Delivery failures are
// logged per platform and never fail the pipeline.
type Multi struct {
	notifiers []Notifier
}

// NewMulti builds a composite notifier. Nil entries are skipped.
func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// SessionUpdated delivers to every configured platform.
func (m *Multi) SessionUpdated(ctx context.Context, session *models.WorkSession, analytics *accumulate.Analytics) error {
	for _, n := range m.notifiers {
		if err := n.SessionUpdated(ctx, session, analytics); err != nil {
			log.Printf("notify: %v", err)
		}
	}
	return nil
}

// FormatSessionNotice renders the chat text for a session update.
func FormatSessionNotice(session *models.WorkSession, analytics *accumulate.Analytics) string {
	var b strings.Builder

	title := analytics.Title
	if title == "" {
		title = fmt.Sprintf("Session %d updated", session.ID)
	}
	fmt.Fprintf(&b, "*%s*\n", title)

	if analytics.Type != "" {
		fmt.Fprintf(&b, "Type: %s\n", analytics.Type)
	}
	if session.Project != "" {
		fmt.Fprintf(&b, "Project: %s\n", session.Project)
	}
	fmt.Fprintf(&b, "Requests: %d, tokens in/out: %d/%d\n",
		analytics.TotalRequests, session.TotalInputTokens, session.TotalOutputTokens)

	if len(analytics.Topics) > 0 {
		fmt.Fprintf(&b, "Topics: %s\n", strings.Join(analytics.Topics, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
