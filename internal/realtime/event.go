// Package realtime pushes conversation events to connected staff clients.
//
// A Hub holds the websocket clients of this process. Publishers either
// deliver straight into the hub (single instance) or go through Redis
// Pub/Sub so every instance's hub receives the event.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	MessageCreated      EventKind = "message.created"
	MessageUpdated      EventKind = "message.updated"
	MessageDeleted      EventKind = "message.deleted"
	MessageReaction     EventKind = "message.reaction"
	ConversationUpdated EventKind = "conversation.updated"
	ConversationRead    EventKind = "conversation.read"
)

// Event is one change to a conversation, scoped to the conversation id.
type Event struct {
	Kind           EventKind `json:"kind"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Payload        any       `json:"payload"`
	At             time.Time `json:"at"`
}

func NewEvent(kind EventKind, conversationID uuid.UUID, payload any) Event {
	return Event{Kind: kind, ConversationID: conversationID, Payload: payload, At: time.Now().UTC()}
}

// Encode renders the event as a websocket text frame.
func (e Event) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Kind, err)
	}
	return b, nil
}

// Publisher is implemented by Hub and RedisBroadcaster. Callers publish
// only after the change is durably stored.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
