package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/timour/order-saga/internal/bus"
	"github.com/timour/order-saga/internal/domain"
	"github.com/timour/order-saga/internal/orderstore"
)

// StatusUpdaterConsumer applies the three terminal saga events to the
// order aggregate. Every handler is idempotent: redelivery of an event
// whose effect is already reflected in the aggregate is a no-op, not
// an error.
type StatusUpdaterConsumer struct {
	store     orderstore.Store
	publisher bus.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewStatusUpdaterConsumer wires the order store and publisher (needed
// to emit stock.released on payment failure).
func NewStatusUpdaterConsumer(store orderstore.Store, publisher bus.Publisher, logger *slog.Logger) *StatusUpdaterConsumer {
	return &StatusUpdaterConsumer{store: store, publisher: publisher, logger: logger, now: time.Now}
}

// Start launches the three independent subscriptions.
func (c *StatusUpdaterConsumer) Start(ctx context.Context, b *bus.Bus) {
	go b.Consume(ctx, bus.PaymentProcessed, bus.PaymentProcessed, c.handlePaymentProcessed)
	go b.Consume(ctx, bus.PaymentFailed, "statusupdater."+bus.PaymentFailed, c.handlePaymentFailed)
	go b.Consume(ctx, bus.StockFailed, "statusupdater."+bus.StockFailed, c.handleStockFailed)
}

func (c *StatusUpdaterConsumer) handlePaymentProcessed(ctx context.Context, body []byte) error {
	var payload bus.PaymentProcessedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("unmarshal payment.processed: %w", err)
	}
	order, ok, err := c.load(ctx, payload.OrderID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if order.Status == domain.Confirmed {
		return nil
	}
	if err := order.Confirm(c.now()); err != nil {
		if domain.IsIllegalTransition(err) {
			c.logger.Warn("ignoring payment.processed for order in terminal state",
				slog.String("order_id", payload.OrderID), slog.String("status", order.Status.String()))
			return nil
		}
		return err
	}
	return c.save(ctx, order)
}

func (c *StatusUpdaterConsumer) handlePaymentFailed(ctx context.Context, body []byte) error {
	var payload bus.PaymentFailedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("unmarshal payment.failed: %w", err)
	}
	order, ok, err := c.load(ctx, payload.OrderID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if order.Status != domain.Cancelled {
		err := order.Cancel("payment_failed", c.now())
		if err != nil && !domain.IsIllegalTransition(err) && !domain.IsCancellationWindowExceeded(err) {
			return err
		}
		if order.Status == domain.Cancelled {
			if err := c.save(ctx, order); err != nil {
				return err
			}
		}
	}
	if err := c.publisher.Publish(ctx, bus.StockReleased, bus.StockReleasedPayload{
		OrderID: payload.OrderID,
		Reason:  "payment_failed",
	}); err != nil {
		return fmt.Errorf("publish stock.released for order %s: %w", payload.OrderID, err)
	}
	return nil
}

func (c *StatusUpdaterConsumer) handleStockFailed(ctx context.Context, body []byte) error {
	var payload bus.StockFailedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("unmarshal stock.failed: %w", err)
	}
	order, ok, err := c.load(ctx, payload.OrderID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if order.Status == domain.Confirmed || order.Status == domain.Cancelled {
		return nil
	}
	if err := order.Cancel("inventory_failed", c.now()); err != nil {
		if domain.IsIllegalTransition(err) {
			return nil
		}
		return err
	}
	return c.save(ctx, order)
}

// load resolves orderID, tolerating unknown orders (poison messages)
// by logging a warning and returning ok=false rather than an error
// that would route the message to the DLQ.
func (c *StatusUpdaterConsumer) load(ctx context.Context, orderID string) (*domain.Order, bool, error) {
	id, err := uuid.Parse(orderID)
	if err != nil {
		c.logger.Warn("discarding event with malformed order id", slog.String("order_id", orderID))
		return nil, false, nil
	}
	order, err := c.store.Get(ctx, id)
	if err != nil {
		c.logger.Warn("discarding event for unknown order", slog.String("order_id", orderID))
		return nil, false, nil
	}
	return order, true, nil
}

func (c *StatusUpdaterConsumer) save(ctx context.Context, order *domain.Order) error {
	if err := c.store.Save(ctx, order); err != nil {
		return fmt.Errorf("save order %s: %w", order.ID, err)
	}
	return nil
}
