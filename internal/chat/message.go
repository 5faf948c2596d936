package chat

import (
	"context"

	"github.com/google/uuid"
	"github.com/lalith-99/convo/internal/models"
	"github.com/lalith-99/convo/internal/observ"
	"github.com/lalith-99/convo/internal/realtime"
	"go.uber.org/zap"
)

type StaffMessage struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	RecipientID    *uuid.UUID
	Body           string
	Type           models.MessageType
	Attachments    []models.Attachment
	ReplyToID      *int64
	IsInternal     bool
	Metadata       map[string]any
}

// ReactionChange is the payload of a message.reaction event.
type ReactionChange struct {
	MessageID int64                   `json:"message_id"`
	Reactions []models.ReactionBucket `json:"reactions"`
}

type deletedMessage struct {
	MessageID int64 `json:"message_id"`
}

// SendStaffMessage appends a staff message and makes the sender a
// participant of the conversation.
func (s *Service) SendStaffMessage(ctx context.Context, in StaffMessage) (*models.Message, error) {
	if in.Type == "" {
		in.Type = models.TypeText
	}
	if err := s.validateBody(in.Body, in.Type, in.Attachments); err != nil {
		return nil, err
	}
	if _, err := s.conversation(ctx, in.ConversationID); err != nil {
		return nil, err
	}

	sender := in.SenderID
	msg, err := s.store.Messages.Append(ctx, models.NewMessage{
		ConversationID: in.ConversationID,
		Sender:         models.UserOwner(sender),
		SenderUserID:   &sender,
		RecipientID:    in.RecipientID,
		Body:           in.Body,
		Type:           in.Type,
		Attachments:    in.Attachments,
		ReplyToID:      in.ReplyToID,
		IsInternal:     in.IsInternal,
		Metadata:       in.Metadata,
	})
	if err != nil {
		return nil, err
	}
	observ.RecordMessage(string(msg.Type), observ.OriginStaff)

	if err := s.store.Conversations.AddParticipant(ctx, in.ConversationID, sender); err != nil {
		s.logger.Error("add sender as participant failed",
			zap.String("conversation_id", in.ConversationID.String()),
			zap.String("user_id", sender.String()),
			zap.Error(err),
		)
	}

	s.publish(ctx, realtime.MessageCreated, msg.ConversationID, msg)
	return msg, nil
}

func (s *Service) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	return s.message(ctx, id)
}

// ListMessages is the staff view: internal notes included.
func (s *Service) ListMessages(ctx context.Context, conversationID uuid.UUID, afterID int64, limit int) ([]models.Message, error) {
	if _, err := s.conversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.store.Messages.List(ctx, models.MessageQuery{
		ConversationID:  conversationID,
		AfterID:         afterID,
		Limit:           limit,
		IncludeInternal: true,
	})
}

func (s *Service) ListPinned(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	if _, err := s.conversation(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.store.Messages.ListPinned(ctx, conversationID)
}

// EditMessage replaces the body of editor's own message while the edit
// window is open. The checks run against the locked row.
func (s *Service) EditMessage(ctx context.Context, id int64, editor uuid.UUID, body string) (*models.Message, error) {
	if err := s.validateEditBody(body); err != nil {
		return nil, err
	}

	msg, err := s.store.Messages.Edit(ctx, id, body, editor, s.editAuthorizer(editor))
	if err != nil {
		return nil, track("edit", err)
	}
	s.publish(ctx, realtime.MessageUpdated, msg.ConversationID, msg)
	return msg, nil
}

func (s *Service) editAuthorizer(editor uuid.UUID) models.EditAuthorizer {
	return func(current *models.Message) error {
		if current.Type == models.TypeSystem {
			return models.NewAuthorizationError("system messages cannot be edited")
		}
		if !current.AuthoredBy(editor) {
			return models.NewAuthorizationError("only the author can edit a message")
		}
		if s.now().Sub(current.CreatedAt) > s.limits.EditWindow {
			return models.NewAuthorizationError("the edit window has closed")
		}
		return nil
	}
}

func (s *Service) EditHistory(ctx context.Context, id int64) ([]models.EditEvent, error) {
	if _, err := s.message(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Messages.EditHistory(ctx, id)
}

func (s *Service) React(ctx context.Context, id int64, userID uuid.UUID, emoji string) (*ReactionChange, error) {
	if err := validateEmoji(emoji); err != nil {
		return nil, err
	}
	msg, err := s.message(ctx, id)
	if err != nil {
		return nil, err
	}
	buckets, err := s.store.Reactions.Add(ctx, id, userID, emoji)
	if err != nil {
		return nil, track("react", err)
	}
	observ.RecordReaction("add")

	change := &ReactionChange{MessageID: id, Reactions: buckets}
	s.publish(ctx, realtime.MessageReaction, msg.ConversationID, change)
	return change, nil
}

func (s *Service) Unreact(ctx context.Context, id int64, userID uuid.UUID, emoji string) (*ReactionChange, error) {
	if err := validateEmoji(emoji); err != nil {
		return nil, err
	}
	msg, err := s.message(ctx, id)
	if err != nil {
		return nil, err
	}
	buckets, err := s.store.Reactions.Remove(ctx, id, userID, emoji)
	if err != nil {
		return nil, track("unreact", err)
	}
	observ.RecordReaction("remove")

	change := &ReactionChange{MessageID: id, Reactions: buckets}
	s.publish(ctx, realtime.MessageReaction, msg.ConversationID, change)
	return change, nil
}

func (s *Service) Pin(ctx context.Context, id int64, userID uuid.UUID) (*models.Message, error) {
	msg, err := s.store.Messages.Pin(ctx, id, userID)
	if err != nil {
		return nil, track("pin", err)
	}
	s.publish(ctx, realtime.MessageUpdated, msg.ConversationID, msg)
	return msg, nil
}

func (s *Service) Unpin(ctx context.Context, id int64) (*models.Message, error) {
	msg, err := s.store.Messages.Unpin(ctx, id)
	if err != nil {
		return nil, track("unpin", err)
	}
	s.publish(ctx, realtime.MessageUpdated, msg.ConversationID, msg)
	return msg, nil
}

// DeleteMessage hard-deletes a message. Only its author or an admin may.
func (s *Service) DeleteMessage(ctx context.Context, id int64, actor Actor) error {
	msg, err := s.message(ctx, id)
	if err != nil {
		return err
	}
	if !msg.AuthoredBy(actor.UserID) && !actor.IsAdmin() {
		return models.NewAuthorizationError("only the author or an admin can delete a message")
	}
	if err := s.store.Messages.Delete(ctx, id); err != nil {
		return track("delete", err)
	}
	s.publish(ctx, realtime.MessageDeleted, msg.ConversationID, deletedMessage{MessageID: id})
	return nil
}

func (s *Service) MarkDelivered(ctx context.Context, id int64) (*models.Message, error) {
	msg, err := s.store.Messages.MarkDelivered(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, realtime.MessageUpdated, msg.ConversationID, msg)
	return msg, nil
}

func (s *Service) MarkRead(ctx context.Context, id int64) (*models.Message, error) {
	msg, err := s.store.Messages.MarkRead(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, realtime.MessageUpdated, msg.ConversationID, msg)
	return msg, nil
}
