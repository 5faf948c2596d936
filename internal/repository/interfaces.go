package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/convo/internal/models"
)

// Conventions shared by every implementation:
//
//   - Single-row reads return nil, nil when the row does not exist.
//   - Mutations on a missing row return models.ErrNotFound.
//   - A mutation that could not take its row lock in time returns
//     models.ErrConflict.
//   - Listings return an empty slice, never nil, so JSON renders [].

// ConversationRepository owns conversation metadata and the unread/last-
// message denormalization.
type ConversationRepository interface {
	Create(ctx context.Context, in models.NewConversation) (*models.Conversation, error)

	// GetOrCreateForGuest returns the guest's live (non-closed) conversation,
	// creating one (active, normal priority, no creator) on first use or
	// after the previous one was closed. Safe under concurrent calls for the
	// same guest.
	//
	// Why an upsert that reports created? Two widget tabs sending at once
	// must end up in one thread, and only the caller that actually inserted
	// should emit the new-conversation event. Postgres answers both in one
	// statement: ON CONFLICT against the partial unique index, with
	// (xmax = 0) telling a fresh tuple from the updated existing one.
	GetOrCreateForGuest(ctx context.Context, guestSessionID uuid.UUID, title string) (conv *models.Conversation, created bool, err error)

	GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)

	// GetForGuest returns the guest's live conversation, or the most recent
	// closed one when none is live, so history survives a close.
	GetForGuest(ctx context.Context, guestSessionID uuid.UUID) (*models.Conversation, error)
	List(ctx context.Context, filter models.ConversationFilter) ([]models.Conversation, error)

	// MarkReadFor marks every message not authored by userID as read and
	// resets unread_count to zero, in one transaction.
	MarkReadFor(ctx context.Context, conversationID, userID uuid.UUID) (marked int64, err error)

	AddParticipant(ctx context.Context, conversationID, userID uuid.UUID) error
	RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) error

	// SetStatus applies a status transition. Illegal transitions return a
	// *models.ValidationError and change nothing.
	SetStatus(ctx context.Context, conversationID uuid.UUID, status models.ConversationStatus) (*models.Conversation, error)
	Assign(ctx context.Context, conversationID uuid.UUID, assignee *uuid.UUID) (*models.Conversation, error)
	SetPriority(ctx context.Context, conversationID uuid.UUID, priority models.Priority) (*models.Conversation, error)
	SetTags(ctx context.Context, conversationID uuid.UUID, tags []string) (*models.Conversation, error)
}

// MessageRepository owns messages, their edit history and pin state.
type MessageRepository interface {
	// Append inserts the message and, in the same transaction, stamps the
	// conversation's last_message_at and bumps unread_count when the
	// message counts as unread.
	Append(ctx context.Context, in models.NewMessage) (*models.Message, error)

	GetByID(ctx context.Context, id int64) (*models.Message, error)

	// List returns messages in ascending (created_at, id) order. The
	// AfterID cursor resumes after the cursor message's position in that
	// order, not after its bare id.
	List(ctx context.Context, q models.MessageQuery) ([]models.Message, error)
	ListPinned(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)

	// MarkDelivered and MarkRead only move status forward. Calling them on
	// a message that is already at or past the target status is a no-op.
	MarkDelivered(ctx context.Context, id int64) (*models.Message, error)
	MarkRead(ctx context.Context, id int64) (*models.Message, error)

	// Edit locks the row, runs authorize against the locked state and, if
	// it passes, records the edit. OriginalBody is set only on the first
	// edit.
	Edit(ctx context.Context, id int64, newBody string, editor uuid.UUID, authorize models.EditAuthorizer) (*models.Message, error)
	EditHistory(ctx context.Context, id int64) ([]models.EditEvent, error)

	Pin(ctx context.Context, id int64, userID uuid.UUID) (*models.Message, error)
	Unpin(ctx context.Context, id int64) (*models.Message, error)

	// Delete hard-deletes the message. Replies keep existing with their
	// reply_to_id cleared.
	Delete(ctx context.Context, id int64) error
}

// ReactionRepository is the reaction ledger. A user holds at most one
// reaction per message.
type ReactionRepository interface {
	// Add sets userID's reaction on the message to emoji, replacing any
	// other emoji that user had on it.
	Add(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) ([]models.ReactionBucket, error)

	// Remove drops userID's emoji reaction. No-op if absent.
	Remove(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) ([]models.ReactionBucket, error)

	Buckets(ctx context.Context, messageID int64) ([]models.ReactionBucket, error)
}

// GuestSessionRepository binds browser sessions to guest identities.
type GuestSessionRepository interface {
	// GetOrCreate is an idempotent upsert keyed by sessionID. IP and user
	// agent are only written on creation.
	GetOrCreate(ctx context.Context, sessionID, ipAddress, userAgent string) (guest *models.GuestSession, created bool, err error)

	GetByID(ctx context.Context, id uuid.UUID) (*models.GuestSession, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.GuestSession, error)
	TouchActivity(ctx context.Context, id uuid.UUID) error
	UpdateProfile(ctx context.Context, id uuid.UUID, profile models.GuestProfile) (*models.GuestSession, error)
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)
}

// UserRepository handles staff accounts.
type UserRepository interface {
	Create(ctx context.Context, email, displayName, role, passwordHash string) (*models.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// ListByRoles is the role membership lookup used to find staff to
	// notify.
	ListByRoles(ctx context.Context, roles []string) ([]models.User, error)
}

// Store bundles every repository behind one backend.
type Store struct {
	Conversations ConversationRepository
	Messages      MessageRepository
	Reactions     ReactionRepository
	Guests        GuestSessionRepository
	Users         UserRepository
}
