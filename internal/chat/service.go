// Package chat holds the messaging use cases shared by the guest widget
// and the staff console. Handlers stay thin: they parse requests, call a
// Service method and map the returned domain error to a status code.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/convo/internal/models"
	"github.com/lalith-99/convo/internal/notify"
	"github.com/lalith-99/convo/internal/observ"
	"github.com/lalith-99/convo/internal/realtime"
	"github.com/lalith-99/convo/internal/repository"
	"go.uber.org/zap"
)

// Limits bound what a single message may carry.
type Limits struct {
	MaxBodyChars       int
	MaxAttachmentBytes int64
	EditWindow         time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		MaxBodyChars:       5000,
		MaxAttachmentBytes: 10 << 20,
		EditWindow:         15 * time.Minute,
	}
}

type Service struct {
	store    *repository.Store
	events   realtime.Publisher
	notifier notify.Dispatcher
	limits   Limits
	now      func() time.Time
	logger   *zap.Logger
}

type Option func(*Service)

func WithLimits(l Limits) Option {
	return func(s *Service) { s.limits = l }
}

// WithClock replaces time.Now, for edit window tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store *repository.Store, events realtime.Publisher, notifier notify.Dispatcher, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		events:   events,
		notifier: notifier,
		limits:   DefaultLimits(),
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events == nil {
		s.events = realtime.Nop{}
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogDispatcher(logger)
	}
	return s
}

// Actor is the authenticated staff member behind a request.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// publish runs after the durable write. A failed broadcast is logged and
// does not fail the request.
func (s *Service) publish(ctx context.Context, kind realtime.EventKind, conversationID uuid.UUID, payload any) {
	if err := s.events.Publish(ctx, realtime.NewEvent(kind, conversationID, payload)); err != nil {
		s.logger.Warn("realtime publish failed",
			zap.String("kind", string(kind)),
			zap.String("conversation_id", conversationID.String()),
			zap.Error(err),
		)
	}
}

// track counts lock timeouts per operation and passes err through.
func track(op string, err error) error {
	if errors.Is(err, models.ErrConflict) {
		observ.RecordConflict(op)
	}
	return err
}

func (s *Service) conversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv, err := s.store.Conversations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, models.ErrNotFound
	}
	return conv, nil
}

func (s *Service) message(ctx context.Context, id int64) (*models.Message, error) {
	msg, err := s.store.Messages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, models.ErrNotFound
	}
	return msg, nil
}
