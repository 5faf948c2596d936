package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/convo/internal/models"
)

const messageColumns = `id, conversation_id, sender_type, sender_id, sender_user_id, recipient_id, body, type,
	attachments, status, is_read, delivered_at, read_at, reply_to_id, is_internal, is_pinned, pinned_at,
	pinned_by, is_edited, edited_at, original_message, metadata, created_at, updated_at`

type MessageStore struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewMessageStore(pool *pgxpool.Pool, lockTimeout time.Duration) *MessageStore {
	return &MessageStore{pool: pool, lockTimeout: lockTimeout}
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		m          models.Message
		senderType *string
		senderID   *uuid.UUID
		msgType    string
		status     string
	)
	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&senderType,
		&senderID,
		&m.SenderUserID,
		&m.RecipientID,
		&m.Body,
		&msgType,
		&m.Attachments,
		&status,
		&m.IsRead,
		&m.DeliveredAt,
		&m.ReadAt,
		&m.ReplyToID,
		&m.IsInternal,
		&m.IsPinned,
		&m.PinnedAt,
		&m.PinnedBy,
		&m.IsEdited,
		&m.EditedAt,
		&m.OriginalBody,
		&m.Metadata,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Sender = ownerFrom(senderType, senderID)
	m.Type = models.MessageType(msgType)
	m.Status = models.DeliveryStatus(status)
	if m.Attachments == nil {
		m.Attachments = []models.Attachment{}
	}
	m.Reactions = []models.ReactionBucket{}
	return &m, nil
}

func (s *MessageStore) Append(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	var msg *models.Message
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if in.ReplyToID != nil {
			var parentConversation uuid.UUID
			err := tx.QueryRow(ctx, `SELECT conversation_id FROM messages WHERE id = $1`, *in.ReplyToID).Scan(&parentConversation)
			if errors.Is(err, pgx.ErrNoRows) || (err == nil && parentConversation != in.ConversationID) {
				return models.NewValidationError("reply_to_id", "message is not part of this conversation")
			}
			if err != nil {
				return fmt.Errorf("lookup reply target: %w", err)
			}
		}

		attachments := in.Attachments
		if attachments == nil {
			attachments = []models.Attachment{}
		}
		senderType, senderID := ownerArgs(in.Sender)

		var err error
		msg, err = scanMessage(tx.QueryRow(ctx, `
			INSERT INTO messages (conversation_id, sender_type, sender_id, sender_user_id, recipient_id,
			                      body, type, attachments, status, reply_to_id, is_internal, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'sent', $9, $10, $11)
			RETURNING `+messageColumns,
			in.ConversationID, senderType, senderID, in.SenderUserID, in.RecipientID,
			in.Body, string(in.Type), attachments, in.ReplyToID, in.IsInternal, nonNilMap(in.Metadata),
		))
		if err != nil {
			if isForeignKeyViolation(err) {
				return models.ErrNotFound
			}
			return fmt.Errorf("insert message: %w", mapPgError(err))
		}

		bump := 0
		if msg.CountsAsUnread() {
			bump = 1
		}
		var status string
		err = tx.QueryRow(ctx, `
			UPDATE conversations
			SET last_message_at = $2, unread_count = unread_count + $3, updated_at = now()
			WHERE id = $1
			RETURNING status`, in.ConversationID, msg.CreatedAt, bump).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFound
			}
			return fmt.Errorf("bump conversation: %w", mapPgError(err))
		}
		if models.ConversationStatus(status) == models.StatusClosed {
			return models.NewValidationError("conversation_id", "conversation is closed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *MessageStore) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	if err := attachReactions(ctx, s.pool, []*models.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *MessageStore) List(ctx context.Context, q models.MessageQuery) ([]models.Message, error) {
	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	// created_at is the transaction start, so a lower id can carry a later
	// timestamp. The keyset therefore compares (created_at, id) against the
	// cursor row, matching the ORDER BY. A cursor that has since been
	// deleted degrades to a plain id comparison.
	query := `
		WITH anchor AS (
			SELECT created_at, id FROM messages WHERE id = $2 AND conversation_id = $1
		)
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		  AND (
		        $2 = 0
		     OR (created_at, id) > (SELECT created_at, id FROM anchor)
		     OR (NOT EXISTS (SELECT 1 FROM anchor) AND id > $2)
		  )
		  AND ($3 OR NOT is_internal)
		ORDER BY created_at ASC, id ASC
		LIMIT $4`

	return s.queryMessages(ctx, "list messages", query, q.ConversationID, q.AfterID, q.IncludeInternal, limit)
}

func (s *MessageStore) ListPinned(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND is_pinned
		ORDER BY pinned_at DESC, id DESC`

	return s.queryMessages(ctx, "list pinned messages", query, conversationID)
}

func (s *MessageStore) queryMessages(ctx context.Context, op, query string, args ...any) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	ptrs := make([]*models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		ptrs = append(ptrs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if err := attachReactions(ctx, s.pool, ptrs); err != nil {
		return nil, err
	}
	messages := make([]models.Message, 0, len(ptrs))
	for _, m := range ptrs {
		messages = append(messages, *m)
	}
	return messages, nil
}

func (s *MessageStore) MarkDelivered(ctx context.Context, id int64) (*models.Message, error) {
	return s.advance(ctx, "mark delivered", id, `
		UPDATE messages
		SET status = 'delivered', delivered_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'sent'`)
}

func (s *MessageStore) MarkRead(ctx context.Context, id int64) (*models.Message, error) {
	return s.advance(ctx, "mark read", id, `
		UPDATE messages
		SET status = 'read', is_read = true, read_at = now(),
		    delivered_at = COALESCE(delivered_at, now()), updated_at = now()
		WHERE id = $1 AND status <> 'read'`)
}

// advance runs a guarded status update. Zero affected rows means either
// the message is already past the target status or it doesn't exist; the
// follow-up read tells them apart.
func (s *MessageStore) advance(ctx context.Context, op string, id int64, query string) (*models.Message, error) {
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapPgError(err))
	}
	msg, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, models.ErrNotFound
	}
	return msg, nil
}

func (s *MessageStore) Edit(ctx context.Context, id int64, newBody string, editor uuid.UUID, authorize models.EditAuthorizer) (*models.Message, error) {
	var msg *models.Message
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := setLockTimeout(ctx, tx, s.lockTimeout); err != nil {
			return err
		}

		current, err := scanMessage(tx.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrNotFound
			}
			return fmt.Errorf("lock message: %w", mapPgError(err))
		}
		if authorize != nil {
			if err := authorize(current); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO message_edits (message_id, previous_body, edited_by)
			VALUES ($1, $2, $3)`, id, current.Body, editor); err != nil {
			return fmt.Errorf("record edit: %w", mapPgError(err))
		}

		// COALESCE keeps the first snapshot on every later edit.
		msg, err = scanMessage(tx.QueryRow(ctx, `
			UPDATE messages
			SET original_message = COALESCE(original_message, body),
			    body = $2,
			    is_edited = true,
			    edited_at = now(),
			    updated_at = now()
			WHERE id = $1
			RETURNING `+messageColumns, id, newBody))
		if err != nil {
			return fmt.Errorf("update message body: %w", mapPgError(err))
		}
		return attachReactions(ctx, tx, []*models.Message{msg})
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *MessageStore) EditHistory(ctx context.Context, id int64) ([]models.EditEvent, error) {
	query := `
		SELECT message_id, previous_body, edited_by, edited_at
		FROM message_edits
		WHERE message_id = $1
		ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list edits: %w", err)
	}
	defer rows.Close()

	edits := make([]models.EditEvent, 0)
	for rows.Next() {
		var e models.EditEvent
		if err := rows.Scan(&e.MessageID, &e.PreviousBody, &e.EditedBy, &e.EditedAt); err != nil {
			return nil, fmt.Errorf("scan edit: %w", err)
		}
		edits = append(edits, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edits: %w", err)
	}
	return edits, nil
}

func (s *MessageStore) Pin(ctx context.Context, id int64, userID uuid.UUID) (*models.Message, error) {
	// Pinning an already pinned message keeps the original pinner and time.
	return s.updateReturning(ctx, "pin message", `
		UPDATE messages
		SET is_pinned = true,
		    pinned_at = CASE WHEN is_pinned THEN pinned_at ELSE now() END,
		    pinned_by = CASE WHEN is_pinned THEN pinned_by ELSE $2::uuid END,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+messageColumns, id, userID)
}

func (s *MessageStore) Unpin(ctx context.Context, id int64) (*models.Message, error) {
	return s.updateReturning(ctx, "unpin message", `
		UPDATE messages
		SET is_pinned = false, pinned_at = NULL, pinned_by = NULL, updated_at = now()
		WHERE id = $1
		RETURNING `+messageColumns, id)
}

func (s *MessageStore) updateReturning(ctx context.Context, op, query string, args ...any) (*models.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, mapPgError(err))
	}
	if err := attachReactions(ctx, s.pool, []*models.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *MessageStore) Delete(ctx context.Context, id int64) error {
	// reply_to_id is ON DELETE SET NULL; reactions and edits cascade.
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
