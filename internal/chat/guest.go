package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/convo/internal/models"
	"github.com/lalith-99/convo/internal/notify"
	"github.com/lalith-99/convo/internal/observ"
	"github.com/lalith-99/convo/internal/realtime"
	"go.uber.org/zap"
)

// ClientInfo is captured on a guest's first request only.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type GuestMessage struct {
	SessionID   string
	Client      ClientInfo
	Body        string
	Attachments []models.Attachment
	Metadata    map[string]any
}

type GuestMessageResult struct {
	Guest           *models.GuestSession `json:"guest"`
	Conversation    *models.Conversation `json:"conversation"`
	Message         *models.Message      `json:"message"`
	NewConversation bool                 `json:"new_conversation"`
}

type GuestView struct {
	Guest        *models.GuestSession `json:"guest"`
	DisplayName  string               `json:"display_name"`
	Active       bool                 `json:"active"`
	Conversation *models.Conversation `json:"conversation,omitempty"`
}

type GuestHistory struct {
	Conversation *models.Conversation `json:"conversation,omitempty"`
	Messages     []models.Message     `json:"messages"`
}

// ResolveGuest binds the session id to a guest identity and records the
// request as activity.
func (s *Service) ResolveGuest(ctx context.Context, sessionID string, info ClientInfo) (*models.GuestSession, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	guest, _, err := s.store.Guests.GetOrCreate(ctx, sessionID, info.IP, info.UserAgent)
	if err != nil {
		return nil, err
	}
	if err := s.store.Guests.TouchActivity(ctx, guest.ID); err != nil {
		return nil, err
	}
	guest.LastActivityAt = s.now().UTC()
	return guest, nil
}

// SendGuestMessage appends a guest's message to their conversation,
// opening it on first contact, then tells connected staff and notifies
// the candidate recipients.
func (s *Service) SendGuestMessage(ctx context.Context, in GuestMessage) (*GuestMessageResult, error) {
	msgType := models.TypeText
	if strings.TrimSpace(in.Body) == "" && len(in.Attachments) > 0 {
		msgType = models.TypeFile
	}
	if err := s.validateBody(in.Body, msgType, in.Attachments); err != nil {
		return nil, err
	}

	guest, err := s.ResolveGuest(ctx, in.SessionID, in.Client)
	if err != nil {
		return nil, err
	}
	conv, created, err := s.store.Conversations.GetOrCreateForGuest(ctx, guest.ID, "Chat with "+guest.DisplayName())
	if err != nil {
		return nil, err
	}

	msg, err := s.store.Messages.Append(ctx, models.NewMessage{
		ConversationID: conv.ID,
		Sender:         models.GuestOwner(guest.ID),
		Body:           in.Body,
		Type:           msgType,
		Attachments:    in.Attachments,
		Metadata:       in.Metadata,
	})
	if err != nil {
		return nil, err
	}
	observ.RecordMessage(string(msg.Type), observ.OriginGuest)

	// Re-read so the caller sees the bumped counters.
	if fresh, err := s.store.Conversations.GetByID(ctx, conv.ID); err == nil && fresh != nil {
		conv = fresh
	}

	s.publish(ctx, realtime.MessageCreated, conv.ID, msg)
	if created {
		s.publish(ctx, realtime.ConversationUpdated, conv.ID, conv)
	}
	s.notifyStaff(ctx, conv, guest, msg)

	return &GuestMessageResult{Guest: guest, Conversation: conv, Message: msg, NewConversation: created}, nil
}

// GuestHistory returns the guest's conversation without internal notes.
func (s *Service) GuestHistory(ctx context.Context, sessionID string, info ClientInfo, afterID int64, limit int) (*GuestHistory, error) {
	guest, err := s.ResolveGuest(ctx, sessionID, info)
	if err != nil {
		return nil, err
	}
	conv, err := s.store.Conversations.GetForGuest(ctx, guest.ID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return &GuestHistory{Messages: []models.Message{}}, nil
	}
	msgs, err := s.store.Messages.List(ctx, models.MessageQuery{
		ConversationID:  conv.ID,
		AfterID:         afterID,
		Limit:           limit,
		IncludeInternal: false,
	})
	if err != nil {
		return nil, err
	}
	return &GuestHistory{Conversation: conv, Messages: msgs}, nil
}

func (s *Service) GuestSession(ctx context.Context, sessionID string, info ClientInfo) (*GuestView, error) {
	guest, err := s.ResolveGuest(ctx, sessionID, info)
	if err != nil {
		return nil, err
	}
	conv, err := s.store.Conversations.GetForGuest(ctx, guest.ID)
	if err != nil {
		return nil, err
	}
	return &GuestView{
		Guest:        guest,
		DisplayName:  guest.DisplayName(),
		Active:       guest.IsActive(s.now()),
		Conversation: conv,
	}, nil
}

func (s *Service) UpdateGuestProfile(ctx context.Context, sessionID string, info ClientInfo, p models.GuestProfile) (*models.GuestSession, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)
	inquiry, err := models.ParseInquiryType(string(p.InquiryType))
	if err != nil {
		return nil, err
	}
	p.InquiryType = inquiry
	if err := validateProfile(p); err != nil {
		return nil, err
	}

	guest, err := s.ResolveGuest(ctx, sessionID, info)
	if err != nil {
		return nil, err
	}
	return s.store.Guests.UpdateProfile(ctx, guest.ID, p)
}

// notifyStaff fans a guest message out to the assignee, or to every staff
// member when nobody is assigned. Failures are logged only.
func (s *Service) notifyStaff(ctx context.Context, conv *models.Conversation, guest *models.GuestSession, msg *models.Message) {
	recipients, err := s.recipients(ctx, conv)
	if err != nil {
		s.logger.Warn("resolve notification recipients failed",
			zap.String("conversation_id", conv.ID.String()), zap.Error(err))
		return
	}
	if len(recipients) == 0 {
		return
	}

	summary := notify.Preview(msg.Body, notify.PreviewLength)
	if summary == "" && len(msg.Attachments) > 0 {
		summary = "Sent " + msg.Attachments[0].Name
	}
	now := s.now().UTC()
	notes := make([]notify.Notification, 0, len(recipients))
	for _, id := range recipients {
		notes = append(notes, notify.Notification{
			RecipientID:    id,
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			Title:          "New message from " + guest.DisplayName(),
			Summary:        summary,
			Link:           notify.ConversationLink(conv.ID),
			CreatedAt:      now,
		})
	}

	if err := s.notifier.Dispatch(ctx, notes); err != nil {
		observ.RecordNotifications("error", len(notes))
		s.logger.Warn("notification dispatch failed",
			zap.String("conversation_id", conv.ID.String()),
			zap.Int("recipients", len(notes)),
			zap.Error(err),
		)
		return
	}
	observ.RecordNotifications("queued", len(notes))
}

func (s *Service) recipients(ctx context.Context, conv *models.Conversation) ([]uuid.UUID, error) {
	if conv.AssignedTo != nil {
		return []uuid.UUID{*conv.AssignedTo}, nil
	}
	staff, err := s.store.Users.ListByRoles(ctx, models.StaffRoles)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(staff))
	for _, u := range staff {
		ids = append(ids, u.ID)
	}
	return ids, nil
}
