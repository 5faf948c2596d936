package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/lalith-99/convo/internal/models"
)

type ConversationStore struct {
	st *state
}

func (s *ConversationStore) Create(_ context.Context, in models.NewConversation) (*models.Conversation, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return copyConversation(s.st.insertConversation(in)), nil
}

func (st *state) insertConversation(in models.NewConversation) *models.Conversation {
	now := st.now()
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	c := &models.Conversation{
		ID:             uuid.New(),
		Title:          in.Title,
		Owner:          in.Owner,
		CreatedBy:      in.CreatedBy,
		Status:         models.StatusActive,
		Priority:       priority,
		ParticipantIDs: []uuid.UUID{},
		Tags:           append([]string{}, in.Tags...),
		IsInternal:     in.IsInternal,
		Metadata:       in.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	st.conversations[c.ID] = c
	return c
}

func (s *ConversationStore) GetOrCreateForGuest(_ context.Context, guestSessionID uuid.UUID, title string) (*models.Conversation, bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	// A closed conversation stays in guestConv so history can still show it,
	// but the next send opens a fresh one.
	if id, ok := s.st.guestConv[guestSessionID]; ok {
		if c := s.st.conversations[id]; c.Status != models.StatusClosed {
			return copyConversation(c), false, nil
		}
	}
	c := s.st.insertConversation(models.NewConversation{
		Title: title,
		Owner: models.GuestOwner(guestSessionID),
	})
	s.st.guestConv[guestSessionID] = c.ID
	return copyConversation(c), true, nil
}

func (s *ConversationStore) GetByID(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	c, ok := s.st.conversations[id]
	if !ok {
		return nil, nil
	}
	return copyConversation(c), nil
}

func (s *ConversationStore) GetForGuest(_ context.Context, guestSessionID uuid.UUID) (*models.Conversation, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	id, ok := s.st.guestConv[guestSessionID]
	if !ok {
		return nil, nil
	}
	return copyConversation(s.st.conversations[id]), nil
}

func (s *ConversationStore) List(_ context.Context, f models.ConversationFilter) ([]models.Conversation, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	matched := make([]*models.Conversation, 0)
	for _, c := range s.st.conversations {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.AssignedTo != nil && (c.AssignedTo == nil || *c.AssignedTo != *f.AssignedTo) {
			continue
		}
		if f.Participant != nil && !c.HasParticipant(*f.Participant) {
			continue
		}
		matched = append(matched, c)
	}

	// last_message_at DESC NULLS LAST, then created_at DESC.
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch {
		case a.LastMessageAt != nil && b.LastMessageAt != nil && !a.LastMessageAt.Equal(*b.LastMessageAt):
			return a.LastMessageAt.After(*b.LastMessageAt)
		case a.LastMessageAt != nil && b.LastMessageAt == nil:
			return true
		case a.LastMessageAt == nil && b.LastMessageAt != nil:
			return false
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := max(f.Offset, 0)
	out := make([]models.Conversation, 0, limit)
	for i := offset; i < len(matched) && len(out) < limit; i++ {
		out = append(out, *copyConversation(matched[i]))
	}
	return out, nil
}

func (s *ConversationStore) MarkReadFor(_ context.Context, conversationID, userID uuid.UUID) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	c, ok := s.st.conversations[conversationID]
	if !ok {
		return 0, models.ErrNotFound
	}
	now := s.st.now()
	var marked int64
	for _, m := range s.st.messages {
		if m.ConversationID != conversationID || m.Status == models.DeliveryRead || m.AuthoredBy(userID) {
			continue
		}
		m.Status = models.DeliveryRead
		m.IsRead = true
		m.ReadAt = timePtr(now)
		if m.DeliveredAt == nil {
			m.DeliveredAt = timePtr(now)
		}
		m.UpdatedAt = now
		marked++
	}
	c.UnreadCount = 0
	c.UpdatedAt = now
	return marked, nil
}

func (s *ConversationStore) AddParticipant(_ context.Context, conversationID, userID uuid.UUID) error {
	return s.mutate(conversationID, func(c *models.Conversation) error {
		if !c.HasParticipant(userID) {
			c.ParticipantIDs = append(c.ParticipantIDs, userID)
		}
		return nil
	})
}

func (s *ConversationStore) RemoveParticipant(_ context.Context, conversationID, userID uuid.UUID) error {
	return s.mutate(conversationID, func(c *models.Conversation) error {
		kept := c.ParticipantIDs[:0]
		for _, id := range c.ParticipantIDs {
			if id != userID {
				kept = append(kept, id)
			}
		}
		c.ParticipantIDs = kept
		return nil
	})
}

func (s *ConversationStore) SetStatus(_ context.Context, conversationID uuid.UUID, status models.ConversationStatus) (*models.Conversation, error) {
	return s.mutateReturning(conversationID, func(c *models.Conversation) error {
		if !c.Status.CanTransition(status) {
			return models.NewValidationError("status", fmt.Sprintf("cannot move from %s to %s", c.Status, status))
		}
		c.Status = status
		return nil
	})
}

func (s *ConversationStore) Assign(_ context.Context, conversationID uuid.UUID, assignee *uuid.UUID) (*models.Conversation, error) {
	return s.mutateReturning(conversationID, func(c *models.Conversation) error {
		if assignee != nil {
			if _, ok := s.st.users[*assignee]; !ok {
				return models.NewValidationError("", "referenced user does not exist")
			}
			id := *assignee
			c.AssignedTo = &id
			return nil
		}
		c.AssignedTo = nil
		return nil
	})
}

func (s *ConversationStore) SetPriority(_ context.Context, conversationID uuid.UUID, priority models.Priority) (*models.Conversation, error) {
	return s.mutateReturning(conversationID, func(c *models.Conversation) error {
		c.Priority = priority
		return nil
	})
}

func (s *ConversationStore) SetTags(_ context.Context, conversationID uuid.UUID, tags []string) (*models.Conversation, error) {
	return s.mutateReturning(conversationID, func(c *models.Conversation) error {
		c.Tags = append([]string{}, tags...)
		return nil
	})
}

func (s *ConversationStore) mutate(id uuid.UUID, fn func(c *models.Conversation) error) error {
	_, err := s.mutateReturning(id, fn)
	return err
}

func (s *ConversationStore) mutateReturning(id uuid.UUID, fn func(c *models.Conversation) error) (*models.Conversation, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	c, ok := s.st.conversations[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	// Work on a copy so a failed fn leaves the stored row untouched.
	draft := copyConversation(c)
	if err := fn(draft); err != nil {
		return nil, err
	}
	draft.UpdatedAt = s.st.now()
	s.st.conversations[id] = draft
	return copyConversation(draft), nil
}
