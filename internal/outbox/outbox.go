// Package outbox implements the transactional outbox pattern: events
// are written to a table in the same transaction as the aggregate
// change, then relayed to the bus by a separate poller. This is what
// resolves duplicate-publish-on-reconnect: a crash between commit and
// publish leaves the event row unprocessed, to be retried, rather than
// losing it or double-committing a side effect.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// MaxRetries bounds how many failed relay passes (each one up to
// publishRetryPolicy.MaxAttempts publish attempts, recorded by one
// MarkFailed) an event tolerates. PollUnprocessed skips events whose
// retry count has reached it, so the relay stops republishing them;
// below this count it keeps retrying on every poll.
const MaxRetries = 10

// Event is a single durable record of "publish this payload to this
// bus event name," queued in the same transaction as the aggregate
// write that produced it.
type Event struct {
	ID          uuid.UUID
	AggregateID string
	EventName   string
	Payload     json.RawMessage
	CreatedAt   time.Time
	ProcessedAt *time.Time
	RetryCount  int
	LastError   string
}

// Repository is the outbox persistence contract.
type Repository interface {
	// Enqueue inserts a new event row within tx. Must be called in the
	// same transaction as the aggregate mutation it accompanies.
	Enqueue(ctx context.Context, tx pgx.Tx, aggregateID, eventName string, payload any) error
	// PollUnprocessed returns up to limit unprocessed, under-retry-budget
	// events, oldest first.
	PollUnprocessed(ctx context.Context, limit int) ([]*Event, error)
	// MarkProcessed records a successful publish.
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	// MarkFailed increments retry_count and records the error.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
}

// PostgresRepository implements Repository against an outbox_events
// table.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository wraps an existing pool.
func NewPostgresRepository(pool *pgxpool.Pool, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{pool: pool, logger: logger}
}

// Enqueue implements Repository.
func (r *PostgresRepository) Enqueue(ctx context.Context, tx pgx.Tx, aggregateID, eventName string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload for %s: %w", eventName, err)
	}
	const insert = `
		INSERT INTO outbox_events (id, aggregate_id, event_name, payload, created_at, retry_count)
		VALUES ($1, $2, $3, $4, $5, 0)
	`
	_, err = tx.Exec(ctx, insert, uuid.New(), aggregateID, eventName, body, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("enqueue outbox event %s for %s: %w", eventName, aggregateID, err)
	}
	return nil
}

// PollUnprocessed implements Repository.
func (r *PostgresRepository) PollUnprocessed(ctx context.Context, limit int) ([]*Event, error) {
	const query = `
		SELECT id, aggregate_id, event_name, payload, created_at, processed_at, retry_count, last_error
		FROM outbox_events
		WHERE processed_at IS NULL AND retry_count < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, MaxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("poll unprocessed outbox events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var e Event
		var lastError *string
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventName, &e.Payload, &e.CreatedAt, &e.ProcessedAt, &e.RetryCount, &lastError); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		if lastError != nil {
			e.LastError = *lastError
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// MarkProcessed implements Repository.
func (r *PostgresRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	const update = `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, update, id)
	if err != nil {
		return fmt.Errorf("mark outbox event %s processed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("outbox event not found on mark-processed", zap.String("event_id", id.String()))
	}
	return nil
}

// MarkFailed implements Repository.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	const update = `UPDATE outbox_events SET retry_count = retry_count + 1, last_error = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, update, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark outbox event %s failed: %w", id, err)
	}
	return nil
}
