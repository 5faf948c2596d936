package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/google/uuid"
	"github.com/lalith-99/convo/internal/models"
)

type UserStore struct {
	st *state
}

func (s *UserStore) Create(_ context.Context, email, displayName, role, passwordHash string) (*models.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	for _, u := range s.st.users {
		if u.Email == email {
			return nil, fmt.Errorf("insert user: %w: email already registered", models.ErrConflict)
		}
	}
	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  displayName,
		Role:         role,
		PasswordHash: passwordHash,
		CreatedAt:    s.st.now(),
	}
	s.st.users[u.ID] = u
	out := *u
	return &out, nil
}

func (s *UserStore) GetByID(_ context.Context, userID uuid.UUID) (*models.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	u, ok := s.st.users[userID]
	if !ok {
		return nil, nil
	}
	out := *u
	return &out, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	for _, u := range s.st.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

func (s *UserStore) ListByRoles(_ context.Context, roles []string) ([]models.User, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	users := make([]models.User, 0)
	for _, u := range s.st.users {
		if slices.Contains(roles, u.Role) {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}
