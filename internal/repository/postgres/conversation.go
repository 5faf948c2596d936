package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/convo/internal/models"
)

const conversationColumns = `id, title, owner_type, owner_id, created_by, assigned_to, status, priority,
	participant_ids, tags, last_message_at, unread_count, is_internal, metadata, created_at, updated_at`

type ConversationStore struct {
	pool *pgxpool.Pool
}

func NewConversationStore(pool *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{pool: pool}
}

func scanConversation(row pgx.Row, extra ...any) (*models.Conversation, error) {
	var (
		c         models.Conversation
		ownerType *string
		ownerID   *uuid.UUID
		status    string
		priority  string
	)
	dest := []any{
		&c.ID,
		&c.Title,
		&ownerType,
		&ownerID,
		&c.CreatedBy,
		&c.AssignedTo,
		&status,
		&priority,
		&c.ParticipantIDs,
		&c.Tags,
		&c.LastMessageAt,
		&c.UnreadCount,
		&c.IsInternal,
		&c.Metadata,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	c.Owner = ownerFrom(ownerType, ownerID)
	c.Status = models.ConversationStatus(status)
	c.Priority = models.Priority(priority)
	if c.ParticipantIDs == nil {
		c.ParticipantIDs = []uuid.UUID{}
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return &c, nil
}

func (s *ConversationStore) Create(ctx context.Context, in models.NewConversation) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (title, owner_type, owner_id, created_by, status, priority, is_internal, tags, metadata)
		VALUES ($1, $2, $3, $4, 'active', $5, $6, $7, $8)
		RETURNING ` + conversationColumns

	priority := in.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	ownerType, ownerID := ownerArgs(in.Owner)

	c, err := scanConversation(s.pool.QueryRow(ctx, query,
		in.Title, ownerType, ownerID, in.CreatedBy, string(priority), in.IsInternal, tags, nonNilMap(in.Metadata),
	))
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return c, nil
}

func (s *ConversationStore) GetOrCreateForGuest(ctx context.Context, guestSessionID uuid.UUID, title string) (*models.Conversation, bool, error) {
	// The partial unique index covers only a guest's non-closed conversation,
	// so a racing second insert lands in the DO UPDATE branch and returns the
	// live row, while a closed one no longer conflicts. xmax = 0 only holds
	// for a freshly inserted tuple.
	query := `
		INSERT INTO conversations (title, owner_type, owner_id, status, priority)
		VALUES ($1, 'guest_session', $2, 'active', 'normal')
		ON CONFLICT (owner_type, owner_id) WHERE owner_type = 'guest_session' AND status <> 'closed'
		DO UPDATE SET owner_id = EXCLUDED.owner_id
		RETURNING ` + conversationColumns + `, (xmax = 0) AS inserted`

	var inserted bool
	c, err := scanConversation(s.pool.QueryRow(ctx, query, title, guestSessionID), &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("upsert guest conversation: %w", err)
	}
	return c, inserted, nil
}

func (s *ConversationStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`

	c, err := scanConversation(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (s *ConversationStore) GetForGuest(ctx context.Context, guestSessionID uuid.UUID) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE owner_type = 'guest_session' AND owner_id = $1
		ORDER BY (status = 'closed') ASC, created_at DESC
		LIMIT 1`

	c, err := scanConversation(s.pool.QueryRow(ctx, query, guestSessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get guest conversation: %w", err)
	}
	return c, nil
}

func (s *ConversationStore) List(ctx context.Context, filter models.ConversationFilter) ([]models.Conversation, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		where = append(where, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	if filter.Participant != nil {
		args = append(args, *filter.Participant)
		where = append(where, fmt.Sprintf("$%d::uuid = ANY(participant_ids)", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit, max(filter.Offset, 0))

	query := `SELECT ` + conversationColumns + ` FROM conversations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY last_message_at DESC NULLS LAST, created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return conversations, nil
}

func (s *ConversationStore) MarkReadFor(ctx context.Context, conversationID, userID uuid.UUID) (int64, error) {
	var marked int64
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		// Reset the counter first: the row lock makes a concurrent Append
		// wait, so its message is neither marked here nor lost from the
		// counter.
		tag, err := tx.Exec(ctx, `
			UPDATE conversations
			SET unread_count = 0, updated_at = now()
			WHERE id = $1`, conversationID)
		if err != nil {
			return fmt.Errorf("reset unread count: %w", mapPgError(err))
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNotFound
		}

		tag, err = tx.Exec(ctx, `
			UPDATE messages
			SET status = 'read',
			    is_read = true,
			    read_at = now(),
			    delivered_at = COALESCE(delivered_at, now()),
			    updated_at = now()
			WHERE conversation_id = $1
			  AND status <> 'read'
			  AND sender_user_id IS DISTINCT FROM $2`, conversationID, userID)
		if err != nil {
			return fmt.Errorf("mark messages read: %w", mapPgError(err))
		}
		marked = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

func (s *ConversationStore) SetStatus(ctx context.Context, conversationID uuid.UUID, status models.ConversationStatus) (*models.Conversation, error) {
	var out *models.Conversation
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM conversations WHERE id = $1 FOR UPDATE`, conversationID).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFound
			}
			return fmt.Errorf("lock conversation: %w", mapPgError(err))
		}
		if !models.ConversationStatus(current).CanTransition(status) {
			return models.NewValidationError("status", fmt.Sprintf("cannot move from %s to %s", current, status))
		}

		out, err = scanConversation(tx.QueryRow(ctx, `
			UPDATE conversations SET status = $2, updated_at = now()
			WHERE id = $1
			RETURNING `+conversationColumns, conversationID, string(status)))
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ConversationStore) Assign(ctx context.Context, conversationID uuid.UUID, assignee *uuid.UUID) (*models.Conversation, error) {
	return s.updateReturning(ctx, "assign conversation",
		`UPDATE conversations SET assigned_to = $2, updated_at = now() WHERE id = $1 RETURNING `+conversationColumns,
		conversationID, assignee)
}

func (s *ConversationStore) SetPriority(ctx context.Context, conversationID uuid.UUID, priority models.Priority) (*models.Conversation, error) {
	return s.updateReturning(ctx, "set priority",
		`UPDATE conversations SET priority = $2, updated_at = now() WHERE id = $1 RETURNING `+conversationColumns,
		conversationID, string(priority))
}

func (s *ConversationStore) SetTags(ctx context.Context, conversationID uuid.UUID, tags []string) (*models.Conversation, error) {
	if tags == nil {
		tags = []string{}
	}
	return s.updateReturning(ctx, "set tags",
		`UPDATE conversations SET tags = $2, updated_at = now() WHERE id = $1 RETURNING `+conversationColumns,
		conversationID, tags)
}

func (s *ConversationStore) updateReturning(ctx context.Context, op, query string, args ...any) (*models.Conversation, error) {
	c, err := scanConversation(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		if isForeignKeyViolation(err) {
			return nil, models.NewValidationError("", "referenced user does not exist")
		}
		return nil, fmt.Errorf("%s: %w", op, mapPgError(err))
	}
	return c, nil
}
