package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/convo/internal/models"
)

type GuestSessionStore struct {
	st *state
}

func (s *GuestSessionStore) GetOrCreate(_ context.Context, sessionID, ipAddress, userAgent string) (*models.GuestSession, bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	if id, ok := s.st.guestBySessID[sessionID]; ok {
		return copyGuest(s.st.guests[id]), false, nil
	}
	now := s.st.now()
	g := &models.GuestSession{
		ID:             uuid.New(),
		SessionID:      sessionID,
		InquiryType:    models.InquiryGeneral,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
		LastActivityAt: now,
		Metadata:       map[string]any{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.st.guests[g.ID] = g
	s.st.guestBySessID[sessionID] = g.ID
	return copyGuest(g), true, nil
}

func (s *GuestSessionStore) GetByID(_ context.Context, id uuid.UUID) (*models.GuestSession, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	g, ok := s.st.guests[id]
	if !ok {
		return nil, nil
	}
	return copyGuest(g), nil
}

func (s *GuestSessionStore) GetBySessionID(_ context.Context, sessionID string) (*models.GuestSession, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	id, ok := s.st.guestBySessID[sessionID]
	if !ok {
		return nil, nil
	}
	return copyGuest(s.st.guests[id]), nil
}

func (s *GuestSessionStore) TouchActivity(_ context.Context, id uuid.UUID) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	g, ok := s.st.guests[id]
	if !ok {
		return models.ErrNotFound
	}
	now := s.st.now()
	g.LastActivityAt = now
	g.UpdatedAt = now
	return nil
}

func (s *GuestSessionStore) UpdateProfile(_ context.Context, id uuid.UUID, p models.GuestProfile) (*models.GuestSession, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	g, ok := s.st.guests[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	g.Name = p.Name
	g.Email = p.Email
	g.Phone = p.Phone
	g.InquiryType = p.InquiryType
	g.UpdatedAt = s.st.now()
	return copyGuest(g), nil
}

func (s *GuestSessionStore) CountActiveSince(_ context.Context, since time.Time) (int64, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	var n int64
	for _, g := range s.st.guests {
		if !g.LastActivityAt.Before(since) {
			n++
		}
	}
	return n, nil
}
