package postgres

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/convo/internal/repository"
)

// Compile-time interface checks.
var (
	_ repository.ConversationRepository = (*ConversationStore)(nil)
	_ repository.MessageRepository      = (*MessageStore)(nil)
	_ repository.ReactionRepository     = (*ReactionStore)(nil)
	_ repository.GuestSessionRepository = (*GuestSessionStore)(nil)
	_ repository.UserRepository         = (*UserStore)(nil)
)

// NewStore wires every Postgres repository onto one pool.
func NewStore(pool *pgxpool.Pool, lockTimeout time.Duration) *repository.Store {
	return &repository.Store{
		Conversations: NewConversationStore(pool),
		Messages:      NewMessageStore(pool, lockTimeout),
		Reactions:     NewReactionStore(pool),
		Guests:        NewGuestSessionStore(pool),
		Users:         NewUserStore(pool),
	}
}
