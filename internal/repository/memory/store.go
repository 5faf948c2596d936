// Package memory is a goroutine-safe, process-local implementation of the
// repository interfaces. One mutex guards all tables, which gives every
// operation the same atomicity the Postgres stores get from transactions.
package memory

import (
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/convo/internal/models"
	"github.com/lalith-99/convo/internal/repository"
)

type state struct {
	mu  sync.Mutex
	now func() time.Time

	users         map[uuid.UUID]*models.User
	guests        map[uuid.UUID]*models.GuestSession
	guestBySessID map[string]uuid.UUID
	conversations map[uuid.UUID]*models.Conversation
	guestConv     map[uuid.UUID]uuid.UUID
	messages      map[int64]*models.Message
	nextMessageID int64
	reactions     map[int64]models.ReactionSet
	edits         map[int64][]models.EditEvent
}

// NewStore returns every repository backed by one shared in-memory state.
// A nil clock means time.Now.
func NewStore(clock func() time.Time) *repository.Store {
	if clock == nil {
		clock = time.Now
	}
	st := &state{
		now:           func() time.Time { return clock().UTC() },
		users:         make(map[uuid.UUID]*models.User),
		guests:        make(map[uuid.UUID]*models.GuestSession),
		guestBySessID: make(map[string]uuid.UUID),
		conversations: make(map[uuid.UUID]*models.Conversation),
		guestConv:     make(map[uuid.UUID]uuid.UUID),
		messages:      make(map[int64]*models.Message),
		reactions:     make(map[int64]models.ReactionSet),
		edits:         make(map[int64][]models.EditEvent),
	}
	return &repository.Store{
		Conversations: &ConversationStore{st: st},
		Messages:      &MessageStore{st: st},
		Reactions:     &ReactionStore{st: st},
		Guests:        &GuestSessionStore{st: st},
		Users:         &UserStore{st: st},
	}
}

var (
	_ repository.ConversationRepository = (*ConversationStore)(nil)
	_ repository.MessageRepository      = (*MessageStore)(nil)
	_ repository.ReactionRepository     = (*ReactionStore)(nil)
	_ repository.GuestSessionRepository = (*GuestSessionStore)(nil)
	_ repository.UserRepository         = (*UserStore)(nil)
)

// Copies keep callers from mutating stored rows through returned pointers.

func copyConversation(c *models.Conversation) *models.Conversation {
	out := *c
	out.ParticipantIDs = append([]uuid.UUID{}, c.ParticipantIDs...)
	out.Tags = append([]string{}, c.Tags...)
	out.Metadata = maps.Clone(c.Metadata)
	return &out
}

func copyGuest(g *models.GuestSession) *models.GuestSession {
	out := *g
	out.Metadata = maps.Clone(g.Metadata)
	return &out
}

func (st *state) messageView(m *models.Message) *models.Message {
	out := *m
	out.Attachments = append([]models.Attachment{}, m.Attachments...)
	out.Metadata = maps.Clone(m.Metadata)
	if set, ok := st.reactions[m.ID]; ok {
		out.Reactions = set.Buckets()
	} else {
		out.Reactions = []models.ReactionBucket{}
	}
	return &out
}

func timePtr(t time.Time) *time.Time { return &t }
