package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/convo/internal/models"
)

// Participants live in a uuid[] column. Both updates compute the new set
// from the stored value in one statement, so there is no read-modify-write
// window and both are idempotent.

func (s *ConversationStore) AddParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	query := `
		UPDATE conversations
		SET participant_ids = CASE
		        WHEN $2::uuid = ANY(participant_ids) THEN participant_ids
		        ELSE array_append(participant_ids, $2::uuid)
		    END,
		    updated_at = now()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, conversationID, userID)
	if err != nil {
		return fmt.Errorf("add participant: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *ConversationStore) RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	query := `
		UPDATE conversations
		SET participant_ids = array_remove(participant_ids, $2::uuid),
		    updated_at = now()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, conversationID, userID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
