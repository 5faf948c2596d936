package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	TypeText   MessageType = "text"
	TypeImage  MessageType = "image"
	TypeFile   MessageType = "file"
	TypeVideo  MessageType = "video"
	TypeAudio  MessageType = "audio"
	TypeSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeFile, TypeVideo, TypeAudio, TypeSystem:
		return true
	}
	return false
}

// ParseMessageType validates a type string. An empty string means text.
func ParseMessageType(s string) (MessageType, error) {
	if s == "" {
		return TypeText, nil
	}
	t := MessageType(s)
	if !t.Valid() {
		return "", NewValidationError("type", fmt.Sprintf("unknown message type %q", s))
	}
	return t, nil
}

// DeliveryStatus only moves forward: sent → delivered → read.
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
)

func (d DeliveryStatus) rank() int {
	switch d {
	case DeliverySent:
		return 1
	case DeliveryDelivered:
		return 2
	case DeliveryRead:
		return 3
	}
	return 0
}

// Advances reports whether moving from d to next goes forward.
func (d DeliveryStatus) Advances(next DeliveryStatus) bool {
	return next.rank() > d.rank()
}

// Attachment is metadata about a file kept in external storage. The bytes
// never pass through this service.
type Attachment struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// EditEvent is one entry of a message's append-only edit history.
type EditEvent struct {
	MessageID    int64     `json:"message_id"`
	PreviousBody string    `json:"previous_body"`
	EditedBy     uuid.UUID `json:"edited_by"`
	EditedAt     time.Time `json:"edited_at"`
}

// Message is one entry in a conversation.
//
// Messages are ordered by (CreatedAt, ID). ID is a database sequence, so it
// breaks ties between messages created within the same clock tick.
//
// Why a bigserial id rather than a UUID like conversations? Messages need
// a total order that clients can page through, and timestamps alone
// collide. A sequence is monotonic per insert, compact in URLs and cheap
// to index, while a random UUID would give no usable tie-break.
//
// OriginalBody is written once, on the first edit, and never again.
type Message struct {
	ID             int64            `json:"id"`
	ConversationID uuid.UUID        `json:"conversation_id"`
	Sender         OwnerRef         `json:"sender"`
	SenderUserID   *uuid.UUID       `json:"sender_user_id,omitempty"`
	RecipientID    *uuid.UUID       `json:"recipient_id,omitempty"`
	Body           string           `json:"body"`
	Type           MessageType      `json:"type"`
	Attachments    []Attachment     `json:"attachments"`
	Status         DeliveryStatus   `json:"status"`
	IsRead         bool             `json:"is_read"`
	DeliveredAt    *time.Time       `json:"delivered_at,omitempty"`
	ReadAt         *time.Time       `json:"read_at,omitempty"`
	ReplyToID      *int64           `json:"reply_to_id,omitempty"`
	IsInternal     bool             `json:"is_internal"`
	IsPinned       bool             `json:"is_pinned"`
	PinnedAt       *time.Time       `json:"pinned_at,omitempty"`
	PinnedBy       *uuid.UUID       `json:"pinned_by,omitempty"`
	IsEdited       bool             `json:"is_edited"`
	EditedAt       *time.Time       `json:"edited_at,omitempty"`
	OriginalBody   *string          `json:"original_message,omitempty"`
	Reactions      []ReactionBucket `json:"reactions"`
	Metadata       map[string]any   `json:"metadata,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// AuthoredBy reports whether userID is the authenticated author.
func (m *Message) AuthoredBy(userID uuid.UUID) bool {
	return m.SenderUserID != nil && *m.SenderUserID == userID
}

// CountsAsUnread reports whether appending m bumps the conversation's
// unread counter.
func (m *Message) CountsAsUnread() bool {
	return m.Type != TypeSystem && !m.IsInternal
}

// NewMessage is the input to an append.
type NewMessage struct {
	ConversationID uuid.UUID
	Sender         OwnerRef
	SenderUserID   *uuid.UUID
	RecipientID    *uuid.UUID
	Body           string
	Type           MessageType
	Attachments    []Attachment
	ReplyToID      *int64
	IsInternal     bool
	Metadata       map[string]any
}

// MessageQuery selects a page of a conversation's messages in ascending
// (created_at, id) order. AfterID names the last message the caller has;
// the page resumes strictly after that message's (created_at, id)
// position, never after the bare id, because ids are handed out before
// timestamps are final. 0 starts at the oldest.
type MessageQuery struct {
	ConversationID  uuid.UUID
	AfterID         int64
	Limit           int
	IncludeInternal bool
}

// EditAuthorizer decides, while the message row is locked, whether an edit
// may proceed. Returning an error aborts the edit without writing.
type EditAuthorizer func(current *Message) error
