// Package notify hands staff notifications to the notification service.
// Dispatch is fire-and-forget: failures are reported, never retried.
package notify

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PreviewLength is how many characters of a message body a notification
// shows.
const PreviewLength = 50

type Notification struct {
	RecipientID    uuid.UUID `json:"recipient_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      int64     `json:"message_id"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	Link           string    `json:"link"`
	CreatedAt      time.Time `json:"created_at"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, notes []Notification) error
}

// Preview truncates body to n characters, appending "..." when cut.
func Preview(body string, n int) string {
	if utf8.RuneCountInString(body) <= n {
		return body
	}
	runes := []rune(body)
	return string(runes[:n]) + "..."
}

// ConversationLink is the deep link staff clients open.
func ConversationLink(conversationID uuid.UUID) string {
	return "/conversations/" + conversationID.String()
}

// LogDispatcher writes notifications to the log. Used when no broker is
// configured.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, notes []Notification) error {
	for _, n := range notes {
		d.logger.Info("notification",
			zap.String("recipient_id", n.RecipientID.String()),
			zap.String("title", n.Title),
			zap.String("summary", n.Summary),
			zap.String("link", n.Link),
		)
	}
	return nil
}
