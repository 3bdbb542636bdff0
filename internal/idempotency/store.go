// Package idempotency implements the unique-key idempotency store:
// TryInsert gives first-writer-wins semantics over a candidate
// resource id.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// uniqueViolation is the Postgres SQLSTATE for a unique_violation.
const uniqueViolation = "23505"

// Store is the idempotency contract used by the create-order handler.
type Store interface {
	// TryInsert records {key, candidate, now}. If key is new, candidate
	// is returned. If key already exists, the stored resource id is
	// returned instead and candidate is discarded.
	TryInsert(ctx context.Context, key, candidate string) (actual string, err error)
}

// PostgresStore is the Store backed by a unique index on key.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// TryInsert attempts an INSERT; on a unique-key conflict it re-reads
// the row that won the race and returns its resource_id.
func (s *PostgresStore) TryInsert(ctx context.Context, key, candidate string) (string, error) {
	const insert = `
		INSERT INTO idempotency (key, resource_id, created_at)
		VALUES ($1, $2, $3)
	`
	_, err := s.pool.Exec(ctx, insert, key, candidate, time.Now().UTC())
	if err == nil {
		return candidate, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		s.logger.Error("idempotency insert failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("insert idempotency key %s: %w", key, err)
	}

	const selectExisting = `SELECT resource_id FROM idempotency WHERE key = $1`
	var existing string
	if err := s.pool.QueryRow(ctx, selectExisting, key).Scan(&existing); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("idempotency key %s vanished after conflict", key)
		}
		return "", fmt.Errorf("read existing idempotency key %s: %w", key, err)
	}

	s.logger.Info("idempotency key already claimed",
		zap.String("key", key),
		zap.String("candidate", candidate),
		zap.String("actual", existing),
	)
	return existing, nil
}
