// Package orderstore persists the Order aggregate to Postgres with
// optimistic locking on row_version.
package orderstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/timour/order-saga/internal/domain"
	"github.com/timour/order-saga/internal/money"
	"github.com/timour/order-saga/internal/outbox"
	"go.uber.org/zap"
)

// Store is the persistence contract for the Order aggregate.
type Store interface {
	Create(ctx context.Context, o *domain.Order) error
	Save(ctx context.Context, o *domain.Order) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByStatus(ctx context.Context, status domain.Status) ([]*domain.Order, error)
}

// ErrNotFound is returned by Get when no order exists with the given
// id. Wrapped, not replaced, by implementation-specific context.
var ErrNotFound = errors.New("order not found")

// PostgresStore is the Store implementation backed by pgx.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Create inserts a brand-new order and its items in one transaction.
// RowVersion is expected to be 1, as set by domain.NewOrder.
func (s *PostgresStore) Create(ctx context.Context, o *domain.Order) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertOrderTx(ctx, tx, o); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create transaction: %w", err)
	}
	return nil
}

// CreateWithOutbox inserts order and enqueues eventName/payload into
// the outbox in the same transaction, so order.created can never be
// lost between commit and publish: the relay republishes from the row
// until a confirm succeeds. This is the preferred resolution to the
// event-duplication-on-reconnect open question.
func (s *PostgresStore) CreateWithOutbox(ctx context.Context, o *domain.Order, repo outbox.Repository, eventName string, payload any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertOrderTx(ctx, tx, o); err != nil {
		return err
	}
	if err := repo.Enqueue(ctx, tx, o.ID.String(), eventName, payload); err != nil {
		return fmt.Errorf("enqueue outbox event for order %s: %w", o.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create transaction: %w", err)
	}
	return nil
}

func insertOrderTx(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	const insertOrder = `
		INSERT INTO orders (id, customer_id, status, created_at, total_amount, total_currency, row_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.Exec(ctx, insertOrder,
		o.ID, o.CustomerID, int(o.Status), o.CreatedAt,
		o.TotalAmount.Amount().String(), o.TotalAmount.Currency(), o.RowVersion,
	)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}

	const insertItem = `
		INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, currency)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, item := range o.Items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		_, err = tx.Exec(ctx, insertItem,
			item.ID, o.ID, item.ProductID, item.Quantity,
			item.UnitPrice.Amount().String(), item.UnitPrice.Currency(),
		)
		if err != nil {
			return fmt.Errorf("insert item for order %s: %w", o.ID, err)
		}
	}
	return nil
}

// Save persists a mutated order with optimistic locking: the UPDATE is
// scoped to the version the caller read, and a zero row count becomes
// domain.ErrOptimisticConflict. On success RowVersion is bumped.
func (s *PostgresStore) Save(ctx context.Context, o *domain.Order) error {
	const update = `
		UPDATE orders
		SET status = $1, confirmed_at = $2, cancelled_at = $3, shipped_at = $4,
		    delivered_at = $5, cancel_reason = $6, row_version = row_version + 1
		WHERE id = $7 AND row_version = $8
	`
	tag, err := s.pool.Exec(ctx, update,
		int(o.Status), o.ConfirmedAt, o.CancelledAt, o.ShippedAt, o.DeliveredAt,
		o.CancelReason, o.ID, o.RowVersion,
	)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Warn("optimistic lock conflict", zap.String("order_id", o.ID.String()), zap.Int64("row_version", o.RowVersion))
		return domain.ErrOptimisticConflict
	}
	o.RowVersion++
	return nil
}

// SaveWithOutbox is Save plus an outbox enqueue of eventName/payload in
// the same transaction, for the cancel/ship/deliver transitions.
func (s *PostgresStore) SaveWithOutbox(ctx context.Context, o *domain.Order, repo outbox.Repository, eventName string, payload any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const update = `
		UPDATE orders
		SET status = $1, confirmed_at = $2, cancelled_at = $3, shipped_at = $4,
		    delivered_at = $5, cancel_reason = $6, row_version = row_version + 1
		WHERE id = $7 AND row_version = $8
	`
	tag, err := tx.Exec(ctx, update,
		int(o.Status), o.ConfirmedAt, o.CancelledAt, o.ShippedAt, o.DeliveredAt,
		o.CancelReason, o.ID, o.RowVersion,
	)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Warn("optimistic lock conflict", zap.String("order_id", o.ID.String()), zap.Int64("row_version", o.RowVersion))
		return domain.ErrOptimisticConflict
	}
	if err := repo.Enqueue(ctx, tx, o.ID.String(), eventName, payload); err != nil {
		return fmt.Errorf("enqueue outbox event for order %s: %w", o.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save transaction: %w", err)
	}
	o.RowVersion++
	return nil
}

// Get loads one order with its items.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	const selectOrder = `
		SELECT id, customer_id, status, created_at, confirmed_at, cancelled_at,
		       shipped_at, delivered_at, cancel_reason, total_amount, total_currency, row_version
		FROM orders WHERE id = $1
	`
	row := s.pool.QueryRow(ctx, selectOrder, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}

	items, err := s.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

// GetByStatus loads every order currently in status, most-recent first.
func (s *PostgresStore) GetByStatus(ctx context.Context, status domain.Status) ([]*domain.Order, error) {
	const query = `
		SELECT id, customer_id, status, created_at, confirmed_at, cancelled_at,
		       shipped_at, delivered_at, cancel_reason, total_amount, total_currency, row_version
		FROM orders WHERE status = $1 ORDER BY created_at DESC
	`
	rows, err := s.pool.Query(ctx, query, int(status))
	if err != nil {
		return nil, fmt.Errorf("query orders by status %s: %w", status, err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders by status %s: %w", status, err)
	}
	return out, nil
}

func (s *PostgresStore) loadItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	const query = `
		SELECT id, order_id, product_id, quantity, unit_price, currency
		FROM order_items WHERE order_id = $1
	`
	rows, err := s.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("load items for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		var priceStr string
		var currency string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &priceStr, &currency); err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		amount, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("parse unit_price %q: %w", priceStr, err)
		}
		it.UnitPrice = money.New(amount, currency)
		items = append(items, it)
	}
	return items, rows.Err()
}

// rowScanner abstracts pgx.Row and pgx.Rows so scanOrder works for
// both Get (single row) and GetByStatus (iterated rows).
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var status int
	var totalStr, currency string
	if err := row.Scan(
		&o.ID, &o.CustomerID, &status, &o.CreatedAt, &o.ConfirmedAt, &o.CancelledAt,
		&o.ShippedAt, &o.DeliveredAt, &o.CancelReason, &totalStr, &currency, &o.RowVersion,
	); err != nil {
		return nil, err
	}
	o.Status = domain.Status(status)
	amount, err := decimal.NewFromString(totalStr)
	if err != nil {
		return nil, fmt.Errorf("parse total_amount %q: %w", totalStr, err)
	}
	o.TotalAmount = money.New(amount, currency)
	return &o, nil
}
