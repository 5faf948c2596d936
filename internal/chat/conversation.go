package chat

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/convo/internal/models"
	"github.com/lalith-99/convo/internal/realtime"
)

type readReceipt struct {
	UserID uuid.UUID `json:"user_id"`
	Marked int64     `json:"marked"`
}

// CreateConversation opens a staff-initiated conversation. The creator
// joins as the first participant.
func (s *Service) CreateConversation(ctx context.Context, in models.NewConversation) (*models.Conversation, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, models.NewValidationError("title", "required")
	}
	if utf8.RuneCountInString(in.Title) > maxTitleLen {
		return nil, models.NewValidationError("title", "too long")
	}
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}
	if !in.Priority.Valid() {
		return nil, models.NewValidationError("priority", "unknown priority "+string(in.Priority))
	}
	if !in.Owner.IsZero() && !in.Owner.Kind.Valid() {
		return nil, models.NewValidationError("owner_type", "unknown owner type "+string(in.Owner.Kind))
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}
	in.Tags = tags

	conv, err := s.store.Conversations.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	if in.CreatedBy != nil {
		if err := s.store.Conversations.AddParticipant(ctx, conv.ID, *in.CreatedBy); err != nil {
			return nil, err
		}
		if conv, err = s.conversation(ctx, conv.ID); err != nil {
			return nil, err
		}
	}
	s.publish(ctx, realtime.ConversationUpdated, conv.ID, conv)
	return conv, nil
}

func (s *Service) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	return s.conversation(ctx, id)
}

func (s *Service) ListConversations(ctx context.Context, filter models.ConversationFilter) ([]models.Conversation, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, models.NewValidationError("status", "unknown status "+string(filter.Status))
	}
	return s.store.Conversations.List(ctx, filter)
}

// MarkConversationRead marks everything userID did not write as read and
// zeroes the unread counter.
func (s *Service) MarkConversationRead(ctx context.Context, conversationID, userID uuid.UUID) (int64, error) {
	marked, err := s.store.Conversations.MarkReadFor(ctx, conversationID, userID)
	if err != nil {
		return 0, track("mark_read", err)
	}
	s.publish(ctx, realtime.ConversationRead, conversationID, readReceipt{UserID: userID, Marked: marked})
	return marked, nil
}

func (s *Service) SetStatus(ctx context.Context, conversationID uuid.UUID, status models.ConversationStatus) (*models.Conversation, error) {
	if !status.Valid() {
		return nil, models.NewValidationError("status", "unknown status "+string(status))
	}
	conv, err := s.store.Conversations.SetStatus(ctx, conversationID, status)
	return s.afterUpdate(ctx, "set_status", conv, err)
}

// Assign hands the conversation to assignee, or unassigns it when nil.
// The assignee joins the participants.
func (s *Service) Assign(ctx context.Context, conversationID uuid.UUID, assignee *uuid.UUID) (*models.Conversation, error) {
	conv, err := s.store.Conversations.Assign(ctx, conversationID, assignee)
	if err != nil {
		return nil, track("assign", err)
	}
	if assignee != nil && !conv.HasParticipant(*assignee) {
		if err := s.store.Conversations.AddParticipant(ctx, conversationID, *assignee); err != nil {
			return nil, err
		}
		conv.ParticipantIDs = append(conv.ParticipantIDs, *assignee)
	}
	s.publish(ctx, realtime.ConversationUpdated, conv.ID, conv)
	return conv, nil
}

func (s *Service) SetPriority(ctx context.Context, conversationID uuid.UUID, priority models.Priority) (*models.Conversation, error) {
	if !priority.Valid() {
		return nil, models.NewValidationError("priority", "unknown priority "+string(priority))
	}
	conv, err := s.store.Conversations.SetPriority(ctx, conversationID, priority)
	return s.afterUpdate(ctx, "set_priority", conv, err)
}

func (s *Service) SetTags(ctx context.Context, conversationID uuid.UUID, tags []string) (*models.Conversation, error) {
	normalized, err := normalizeTags(tags)
	if err != nil {
		return nil, err
	}
	conv, err := s.store.Conversations.SetTags(ctx, conversationID, normalized)
	return s.afterUpdate(ctx, "set_tags", conv, err)
}

func (s *Service) AddParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*models.Conversation, error) {
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewValidationError("user_id", "unknown user")
	}
	if err := s.store.Conversations.AddParticipant(ctx, conversationID, userID); err != nil {
		return nil, track("add_participant", err)
	}
	conv, err := s.conversation(ctx, conversationID)
	return s.afterUpdate(ctx, "add_participant", conv, err)
}

func (s *Service) RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*models.Conversation, error) {
	if err := s.store.Conversations.RemoveParticipant(ctx, conversationID, userID); err != nil {
		return nil, track("remove_participant", err)
	}
	conv, err := s.conversation(ctx, conversationID)
	return s.afterUpdate(ctx, "remove_participant", conv, err)
}

// afterUpdate publishes conversation.updated when the mutation succeeded.
func (s *Service) afterUpdate(ctx context.Context, op string, conv *models.Conversation, err error) (*models.Conversation, error) {
	if err != nil {
		return nil, track(op, err)
	}
	s.publish(ctx, realtime.ConversationUpdated, conv.ID, conv)
	return conv, nil
}
