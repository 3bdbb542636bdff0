// Package saga implements the four cooperating saga consumers:
// reservation, payment, status-updater, and refund.
package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/timour/order-saga/internal/bus"
	"github.com/timour/order-saga/internal/inventory"
	"github.com/timour/order-saga/internal/metrics"
)

// ReservationConsumer subscribes to order.created (reserve every line
// item) and stock.released (release everything held for an order).
type ReservationConsumer struct {
	engine    *inventory.Engine
	publisher bus.Publisher
	logger    *slog.Logger
	ttl       time.Duration
	metrics   *metrics.SagaMetrics
}

// NewReservationConsumer wires an inventory engine and publisher. ttl
// is the reservation hold duration, sourced from INVENTORY_TTL_SECONDS.
// m may be nil in tests.
func NewReservationConsumer(engine *inventory.Engine, publisher bus.Publisher, logger *slog.Logger, ttl time.Duration, m *metrics.SagaMetrics) *ReservationConsumer {
	if ttl <= 0 {
		ttl = 600 * time.Second
	}
	return &ReservationConsumer{engine: engine, publisher: publisher, logger: logger, ttl: ttl, metrics: m}
}

// Start launches both of the consumer's subscriptions on independent
// queues, as required by §4.E.
func (c *ReservationConsumer) Start(ctx context.Context, b *bus.Bus) {
	go b.Consume(ctx, bus.OrderCreated, bus.OrderCreated, c.handleOrderCreated)
	go b.Consume(ctx, bus.StockReleased, "reservation."+bus.StockReleased, c.handleStockReleased)
}

// handleOrderCreated implements the §4.E reservation algorithm: reserve
// every item in order, stopping at the first failure and releasing
// whatever was already reserved.
func (c *ReservationConsumer) handleOrderCreated(ctx context.Context, body []byte) error {
	var payload bus.OrderCreatedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("unmarshal order.created: %w", err)
	}

	reserved := make([]uuid.UUID, 0, len(payload.Items))
	var failure string
	for _, item := range payload.Items {
		id := uuid.New()
		ok := c.engine.TryReserve(id, item.ProductID, item.Quantity, "", payload.OrderID, c.ttl)
		if !ok {
			failure = fmt.Sprintf("insufficient stock for product %s", item.ProductID)
			break
		}
		reserved = append(reserved, id)
	}

	if failure == "" {
		err := c.publisher.Publish(ctx, bus.StockReserved, bus.StockReservedPayload{
			OrderID:    payload.OrderID,
			Total:      payload.Total,
			ReservedAt: time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return fmt.Errorf("publish stock.reserved for order %s: %w", payload.OrderID, err)
		}
		if c.metrics != nil {
			c.metrics.ReservationsResult.WithLabelValues("reserved").Inc()
		}
		return nil
	}

	for _, id := range reserved {
		c.engine.Release(id)
	}
	c.logger.Info("reservation failed, released partial holds",
		slog.String("order_id", payload.OrderID), slog.String("reason", failure))

	err := c.publisher.Publish(ctx, bus.StockFailed, bus.StockFailedPayload{
		OrderID: payload.OrderID,
		Reason:  failure,
	})
	if err != nil {
		return fmt.Errorf("publish stock.failed for order %s: %w", payload.OrderID, err)
	}
	if c.metrics != nil {
		c.metrics.ReservationsResult.WithLabelValues("failed").Inc()
	}
	return nil
}

// handleStockReleased releases every reservation held for the order,
// independent of why the release was requested.
func (c *ReservationConsumer) handleStockReleased(ctx context.Context, body []byte) error {
	var payload bus.StockReleasedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("unmarshal stock.released: %w", err)
	}
	c.engine.ReleaseByOrder(payload.OrderID)
	c.logger.Info("released reservations for order",
		slog.String("order_id", payload.OrderID), slog.String("reason", payload.Reason))
	return nil
}
