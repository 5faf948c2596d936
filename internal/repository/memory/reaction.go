package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/lalith-99/convo/internal/models"
)

type ReactionStore struct {
	st *state
}

func (s *ReactionStore) Add(_ context.Context, messageID int64, userID uuid.UUID, emoji string) ([]models.ReactionBucket, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	if _, ok := s.st.messages[messageID]; !ok {
		return nil, models.ErrNotFound
	}
	set, ok := s.st.reactions[messageID]
	if !ok {
		set = make(models.ReactionSet)
		s.st.reactions[messageID] = set
	}
	set.Add(userID, emoji)
	return set.Buckets(), nil
}

func (s *ReactionStore) Remove(_ context.Context, messageID int64, userID uuid.UUID, emoji string) ([]models.ReactionBucket, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	if _, ok := s.st.messages[messageID]; !ok {
		return nil, models.ErrNotFound
	}
	set := s.st.reactions[messageID]
	if set == nil {
		return []models.ReactionBucket{}, nil
	}
	set.Remove(userID, emoji)
	if len(set) == 0 {
		delete(s.st.reactions, messageID)
	}
	return set.Buckets(), nil
}

func (s *ReactionStore) Buckets(_ context.Context, messageID int64) ([]models.ReactionBucket, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	if _, ok := s.st.messages[messageID]; !ok {
		return nil, models.ErrNotFound
	}
	return s.st.reactions[messageID].Buckets(), nil
}
