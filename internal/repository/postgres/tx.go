package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/convo/internal/models"
)

// DefaultLockTimeout bounds how long a mutation waits for a row lock
// before giving up with models.ErrConflict.
const DefaultLockTimeout = 2 * time.Second

// SQLSTATE codes mapped to domain errors.
const (
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeForeignKeyViolation  = "23503"
	codeUniqueViolation      = "23505"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so scan helpers
// work inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// withTx runs fn in a transaction. Any error from fn rolls back.
func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", mapPgError(err))
	}
	return nil
}

// setLockTimeout limits row-lock waits for the rest of the transaction.
func setLockTimeout(ctx context.Context, tx pgx.Tx, d time.Duration) error {
	if d <= 0 {
		d = DefaultLockTimeout
	}
	// SET does not take bind parameters.
	stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())
	if _, err := tx.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}
	return nil
}

// mapPgError turns lock and serialization failures into models.ErrConflict
// and leaves everything else untouched.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %s", models.ErrConflict, pgErr.Message)
	}
	return err
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// ownerArgs splits an owner reference into nullable column values.
func ownerArgs(ref models.OwnerRef) (any, any) {
	if ref.IsZero() {
		return nil, nil
	}
	return string(ref.Kind), ref.ID
}

func ownerFrom(kind *string, id *uuid.UUID) models.OwnerRef {
	if kind == nil || id == nil {
		return models.OwnerRef{}
	}
	return models.OwnerRef{Kind: models.OwnerKind(*kind), ID: *id}
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
