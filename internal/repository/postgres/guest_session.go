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

const guestColumns = `id, session_id, name, email, phone, inquiry_type, ip_address, user_agent,
	last_activity_at, metadata, created_at, updated_at`

type GuestSessionStore struct {
	pool *pgxpool.Pool
}

func NewGuestSessionStore(pool *pgxpool.Pool) *GuestSessionStore {
	return &GuestSessionStore{pool: pool}
}

func scanGuest(row pgx.Row, extra ...any) (*models.GuestSession, error) {
	var (
		g       models.GuestSession
		inquiry string
	)
	dest := []any{
		&g.ID,
		&g.SessionID,
		&g.Name,
		&g.Email,
		&g.Phone,
		&inquiry,
		&g.IPAddress,
		&g.UserAgent,
		&g.LastActivityAt,
		&g.Metadata,
		&g.CreatedAt,
		&g.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	g.InquiryType = models.InquiryType(inquiry)
	return &g, nil
}

func (s *GuestSessionStore) GetOrCreate(ctx context.Context, sessionID, ipAddress, userAgent string) (*models.GuestSession, bool, error) {
	// The conflict branch rewrites session_id with itself so RETURNING
	// yields the existing row; ip_address and user_agent keep their first
	// values.
	query := `
		INSERT INTO guest_sessions (session_id, ip_address, user_agent, last_activity_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (session_id) DO UPDATE SET session_id = EXCLUDED.session_id
		RETURNING ` + guestColumns + `, (xmax = 0) AS inserted`

	var inserted bool
	g, err := scanGuest(s.pool.QueryRow(ctx, query, sessionID, ipAddress, userAgent), &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("upsert guest session: %w", err)
	}
	return g, inserted, nil
}

func (s *GuestSessionStore) GetByID(ctx context.Context, id uuid.UUID) (*models.GuestSession, error) {
	return s.getOne(ctx, "get guest session", `SELECT `+guestColumns+` FROM guest_sessions WHERE id = $1`, id)
}

func (s *GuestSessionStore) GetBySessionID(ctx context.Context, sessionID string) (*models.GuestSession, error) {
	return s.getOne(ctx, "get guest session by session id", `SELECT `+guestColumns+` FROM guest_sessions WHERE session_id = $1`, sessionID)
}

func (s *GuestSessionStore) getOne(ctx context.Context, op, query string, arg any) (*models.GuestSession, error) {
	g, err := scanGuest(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return g, nil
}

func (s *GuestSessionStore) TouchActivity(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE guest_sessions
		SET last_activity_at = now(), updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch guest session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *GuestSessionStore) UpdateProfile(ctx context.Context, id uuid.UUID, p models.GuestProfile) (*models.GuestSession, error) {
	query := `
		UPDATE guest_sessions
		SET name = $2, email = $3, phone = $4, inquiry_type = $5, updated_at = now()
		WHERE id = $1
		RETURNING ` + guestColumns

	g, err := scanGuest(s.pool.QueryRow(ctx, query, id, p.Name, p.Email, p.Phone, string(p.InquiryType)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("update guest profile: %w", err)
	}
	return g, nil
}

func (s *GuestSessionStore) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM guest_sessions WHERE last_activity_at >= $1`, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active guests: %w", err)
	}
	return n, nil
}
