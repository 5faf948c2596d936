package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusArchived ConversationStatus = "archived"
	StatusClosed   ConversationStatus = "closed"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusActive, StatusArchived, StatusClosed:
		return true
	}
	return false
}

// CanTransition reports whether a conversation in status s may move to next.
//
//	active ⇄ archived
//	active → closed (terminal)
//
// Moving to the current status is always allowed and is a no-op.
func (s ConversationStatus) CanTransition(next ConversationStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusActive:
		return next == StatusArchived || next == StatusClosed
	case StatusArchived:
		return next == StatusActive
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ParseStatus validates a status string from the wire.
func ParseStatus(s string) (ConversationStatus, error) {
	st := ConversationStatus(s)
	if !st.Valid() {
		return "", NewValidationError("status", fmt.Sprintf("unknown status %q", s))
	}
	return st, nil
}

// ParsePriority validates a priority string from the wire.
func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", NewValidationError("priority", fmt.Sprintf("unknown priority %q", s))
	}
	return p, nil
}

// Conversation is a thread of messages between an outside party (guest,
// client, lead) or a project and staff.
//
// UnreadCount never drops below zero; only MarkReadFor resets it.
// ParticipantIDs has set semantics, order is irrelevant.
type Conversation struct {
	ID             uuid.UUID          `json:"id"`
	Title          string             `json:"title"`
	Owner          OwnerRef           `json:"owner"`
	CreatedBy      *uuid.UUID         `json:"created_by,omitempty"`
	AssignedTo     *uuid.UUID         `json:"assigned_to,omitempty"`
	Status         ConversationStatus `json:"status"`
	Priority       Priority           `json:"priority"`
	ParticipantIDs []uuid.UUID        `json:"participant_ids"`
	Tags           []string           `json:"tags"`
	LastMessageAt  *time.Time         `json:"last_message_at,omitempty"`
	UnreadCount    int                `json:"unread_count"`
	IsInternal     bool               `json:"is_internal"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// HasParticipant reports whether userID is in the participant set.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// NewConversation holds the fields a caller chooses when opening a
// conversation. Status always starts as active.
type NewConversation struct {
	Title      string
	Owner      OwnerRef
	CreatedBy  *uuid.UUID
	Priority   Priority
	IsInternal bool
	Tags       []string
	Metadata   map[string]any
}

// ConversationFilter narrows a conversation listing. Zero values mean
// "don't filter".
type ConversationFilter struct {
	Status      ConversationStatus
	AssignedTo  *uuid.UUID
	Participant *uuid.UUID
	Limit       int
	Offset      int
}
