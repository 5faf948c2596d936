package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/convo/internal/models"
)

// ReactionStore keeps one row per (message, user). The primary key on that
// pair is the single-reaction rule: switching emoji is an upsert, never a
// scan over buckets.
type ReactionStore struct {
	pool *pgxpool.Pool
}

func NewReactionStore(pool *pgxpool.Pool) *ReactionStore {
	return &ReactionStore{pool: pool}
}

func (s *ReactionStore) Add(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) ([]models.ReactionBucket, error) {
	query := `
		INSERT INTO message_reactions (message_id, user_id, emoji)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET emoji = EXCLUDED.emoji, created_at = now()
		WHERE message_reactions.emoji <> EXCLUDED.emoji`

	if _, err := s.pool.Exec(ctx, query, messageID, userID, emoji); err != nil {
		if isForeignKeyViolation(err) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("add reaction: %w", mapPgError(err))
	}
	return s.Buckets(ctx, messageID)
}

func (s *ReactionStore) Remove(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) ([]models.ReactionBucket, error) {
	query := `
		DELETE FROM message_reactions
		WHERE message_id = $1 AND user_id = $2 AND emoji = $3`

	if _, err := s.pool.Exec(ctx, query, messageID, userID, emoji); err != nil {
		return nil, fmt.Errorf("remove reaction: %w", mapPgError(err))
	}
	return s.Buckets(ctx, messageID)
}

func (s *ReactionStore) Buckets(ctx context.Context, messageID int64) ([]models.ReactionBucket, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, messageID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check message: %w", err)
	}
	if !exists {
		return nil, models.ErrNotFound
	}

	grouped, err := loadReactions(ctx, s.pool, []int64{messageID})
	if err != nil {
		return nil, err
	}
	return models.BucketsFrom(grouped[messageID]), nil
}

// loadReactions groups reaction rows by message and emoji. Buckets are built
// by aggregation, so an emoji with no users simply has no row.
func loadReactions(ctx context.Context, q querier, messageIDs []int64) (map[int64]map[string][]uuid.UUID, error) {
	out := make(map[int64]map[string][]uuid.UUID, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}

	rows, err := q.Query(ctx, `
		SELECT message_id, emoji, array_agg(user_id ORDER BY user_id)
		FROM message_reactions
		WHERE message_id = ANY($1)
		GROUP BY message_id, emoji`, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("load reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			messageID int64
			emoji     string
			users     []uuid.UUID
		)
		if err := rows.Scan(&messageID, &emoji, &users); err != nil {
			return nil, fmt.Errorf("scan reactions: %w", err)
		}
		if out[messageID] == nil {
			out[messageID] = make(map[string][]uuid.UUID)
		}
		out[messageID][emoji] = users
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reactions: %w", err)
	}
	return out, nil
}

func attachReactions(ctx context.Context, q querier, messages []*models.Message) error {
	ids := make([]int64, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	grouped, err := loadReactions(ctx, q, ids)
	if err != nil {
		return err
	}
	for _, m := range messages {
		m.Reactions = models.BucketsFrom(grouped[m.ID])
	}
	return nil
}
