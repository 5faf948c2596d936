package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/lalith-99/convo/internal/models"
)

type MessageStore struct {
	st *state
}

func (s *MessageStore) Append(_ context.Context, in models.NewMessage) (*models.Message, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	c, ok := s.st.conversations[in.ConversationID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if c.Status == models.StatusClosed {
		return nil, models.NewValidationError("conversation_id", "conversation is closed")
	}
	if in.ReplyToID != nil {
		parent, ok := s.st.messages[*in.ReplyToID]
		if !ok || parent.ConversationID != in.ConversationID {
			return nil, models.NewValidationError("reply_to_id", "message is not part of this conversation")
		}
	}

	now := s.st.now()
	s.st.nextMessageID++
	m := &models.Message{
		ID:             s.st.nextMessageID,
		ConversationID: in.ConversationID,
		Sender:         in.Sender,
		SenderUserID:   in.SenderUserID,
		RecipientID:    in.RecipientID,
		Body:           in.Body,
		Type:           in.Type,
		Attachments:    append([]models.Attachment{}, in.Attachments...),
		Status:         models.DeliverySent,
		ReplyToID:      in.ReplyToID,
		IsInternal:     in.IsInternal,
		Metadata:       in.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.st.messages[m.ID] = m

	c.LastMessageAt = timePtr(now)
	if m.CountsAsUnread() {
		c.UnreadCount++
	}
	c.UpdatedAt = now
	return s.st.messageView(m), nil
}

func (s *MessageStore) GetByID(_ context.Context, id int64) (*models.Message, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	m, ok := s.st.messages[id]
	if !ok {
		return nil, nil
	}
	return s.st.messageView(m), nil
}

// messageAfter reports whether a sorts after b in (CreatedAt, ID) order.
func messageAfter(a, b *models.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// sortMessages orders by (CreatedAt, ID) ascending.
func sortMessages(ms []*models.Message) {
	sort.Slice(ms, func(i, j int) bool { return messageAfter(ms[j], ms[i]) })
}

func (s *MessageStore) List(_ context.Context, q models.MessageQuery) ([]models.Message, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	cursor, hasCursor := s.st.messages[q.AfterID]
	if hasCursor && cursor.ConversationID != q.ConversationID {
		hasCursor = false
	}

	matched := make([]*models.Message, 0)
	for _, m := range s.st.messages {
		if m.ConversationID != q.ConversationID {
			continue
		}
		switch {
		case q.AfterID == 0:
		case hasCursor:
			if !messageAfter(m, cursor) {
				continue
			}
		case m.ID <= q.AfterID:
			continue
		}
		if m.IsInternal && !q.IncludeInternal {
			continue
		}
		matched = append(matched, m)
	}
	sortMessages(matched)

	out := make([]models.Message, 0, min(limit, len(matched)))
	for _, m := range matched {
		if len(out) == limit {
			break
		}
		out = append(out, *s.st.messageView(m))
	}
	return out, nil
}

func (s *MessageStore) ListPinned(_ context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	pinned := make([]*models.Message, 0)
	for _, m := range s.st.messages {
		if m.ConversationID == conversationID && m.IsPinned {
			pinned = append(pinned, m)
		}
	}
	sort.Slice(pinned, func(i, j int) bool {
		if !pinned[i].PinnedAt.Equal(*pinned[j].PinnedAt) {
			return pinned[i].PinnedAt.After(*pinned[j].PinnedAt)
		}
		return pinned[i].ID > pinned[j].ID
	})

	out := make([]models.Message, 0, len(pinned))
	for _, m := range pinned {
		out = append(out, *s.st.messageView(m))
	}
	return out, nil
}

func (s *MessageStore) MarkDelivered(_ context.Context, id int64) (*models.Message, error) {
	return s.mutate(id, func(m *models.Message) error {
		if m.Status.Advances(models.DeliveryDelivered) {
			now := s.st.now()
			m.Status = models.DeliveryDelivered
			m.DeliveredAt = timePtr(now)
		}
		return nil
	})
}

func (s *MessageStore) MarkRead(_ context.Context, id int64) (*models.Message, error) {
	return s.mutate(id, func(m *models.Message) error {
		if m.Status.Advances(models.DeliveryRead) {
			now := s.st.now()
			m.Status = models.DeliveryRead
			m.IsRead = true
			m.ReadAt = timePtr(now)
			if m.DeliveredAt == nil {
				m.DeliveredAt = timePtr(now)
			}
		}
		return nil
	})
}

func (s *MessageStore) Edit(_ context.Context, id int64, newBody string, editor uuid.UUID, authorize models.EditAuthorizer) (*models.Message, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	m, ok := s.st.messages[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if authorize != nil {
		if err := authorize(s.st.messageView(m)); err != nil {
			return nil, err
		}
	}

	now := s.st.now()
	s.st.edits[id] = append(s.st.edits[id], models.EditEvent{
		MessageID:    id,
		PreviousBody: m.Body,
		EditedBy:     editor,
		EditedAt:     now,
	})
	if m.OriginalBody == nil {
		original := m.Body
		m.OriginalBody = &original
	}
	m.Body = newBody
	m.IsEdited = true
	m.EditedAt = timePtr(now)
	m.UpdatedAt = now
	return s.st.messageView(m), nil
}

func (s *MessageStore) EditHistory(_ context.Context, id int64) ([]models.EditEvent, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return append([]models.EditEvent{}, s.st.edits[id]...), nil
}

func (s *MessageStore) Pin(_ context.Context, id int64, userID uuid.UUID) (*models.Message, error) {
	return s.mutate(id, func(m *models.Message) error {
		if m.IsPinned {
			return nil
		}
		by := userID
		m.IsPinned = true
		m.PinnedAt = timePtr(s.st.now())
		m.PinnedBy = &by
		return nil
	})
}

func (s *MessageStore) Unpin(_ context.Context, id int64) (*models.Message, error) {
	return s.mutate(id, func(m *models.Message) error {
		m.IsPinned = false
		m.PinnedAt = nil
		m.PinnedBy = nil
		return nil
	})
}

func (s *MessageStore) Delete(_ context.Context, id int64) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	if _, ok := s.st.messages[id]; !ok {
		return models.ErrNotFound
	}
	delete(s.st.messages, id)
	delete(s.st.reactions, id)
	delete(s.st.edits, id)
	for _, m := range s.st.messages {
		if m.ReplyToID != nil && *m.ReplyToID == id {
			m.ReplyToID = nil
		}
	}
	return nil
}

func (s *MessageStore) mutate(id int64, fn func(m *models.Message) error) (*models.Message, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	m, ok := s.st.messages[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if err := fn(m); err != nil {
		return nil, err
	}
	m.UpdatedAt = s.st.now()
	return s.st.messageView(m), nil
}
