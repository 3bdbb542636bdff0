package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/timour/order-saga/internal/bus"
	"github.com/timour/order-saga/internal/metrics"
)

// refundOutcome is one simulated refund attempt's result.
type refundOutcome int

const (
	refundSuccess refundOutcome = iota
	refundTimeout
	refundDeclined
)

const refundMaxAttempts = 3

// RefundConsumer subscribes to order.cancelled and simulates reversing
// the charge, retrying transient failures with jittered exponential
// backoff.
type RefundConsumer struct {
	publisher bus.Publisher
	logger    *slog.Logger
	outcome   func() refundOutcome
	sleep     func(ctx context.Context, d time.Duration) error
	jitter    func() time.Duration
	metrics   *metrics.SagaMetrics
}

// NewRefundConsumer wires the publisher used to emit the terminal
// refund event plus the stock.released follow-up. m may be nil in tests.
func NewRefundConsumer(publisher bus.Publisher, logger *slog.Logger, m *metrics.SagaMetrics) *RefundConsumer {
	return &RefundConsumer{
		publisher: publisher,
		logger:    logger,
		outcome:   defaultRefundOutcome,
		sleep:     sleepCtx,
		jitter:    func() time.Duration { return time.Duration(rand.Intn(100)) * time.Millisecond },
		metrics:   m,
	}
}

func defaultRefundOutcome() refundOutcome {
	r := rand.Float64()
	switch {
	case r < 0.95:
		return refundSuccess
	case r < 0.98:
		return refundTimeout
	default:
		return refundDeclined
	}
}

// Start launches the consumer's single subscription.
func (c *RefundConsumer) Start(ctx context.Context, b *bus.Bus) {
	go b.Consume(ctx, bus.OrderCancelled, "refund."+bus.OrderCancelled, c.handleOrderCancelled)
}

func (c *RefundConsumer) handleOrderCancelled(ctx context.Context, body []byte) error {
	var payload bus.OrderCancelledPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("unmarshal order.cancelled: %w", err)
	}

	for attempt := 1; attempt <= refundMaxAttempts; attempt++ {
		switch c.outcome() {
		case refundSuccess:
			return c.publishProcessed(ctx, payload.OrderID)
		case refundDeclined:
			return c.publishFailed(ctx, payload.OrderID, "declined")
		case refundTimeout:
			if attempt == refundMaxAttempts {
				return c.publishFailed(ctx, payload.OrderID, "timeout")
			}
			backoff := time.Duration(200*(1<<(attempt-1))) * time.Millisecond
			c.logger.Info("refund attempt timed out, retrying",
				slog.String("order_id", payload.OrderID), slog.Int("attempt", attempt))
			if err := c.sleep(ctx, backoff+c.jitter()); err != nil {
				return err
			}
		}
	}
	return c.publishFailed(ctx, payload.OrderID, "timeout")
}

func (c *RefundConsumer) publishProcessed(ctx context.Context, orderID string) error {
	if err := c.publisher.Publish(ctx, bus.RefundProcessed, bus.RefundProcessedPayload{OrderID: orderID}); err != nil {
		return fmt.Errorf("publish refund.processed for order %s: %w", orderID, err)
	}
	if err := c.publisher.Publish(ctx, bus.StockReleased, bus.StockReleasedPayload{
		OrderID: orderID,
		Reason:  "order_cancelled",
	}); err != nil {
		return fmt.Errorf("publish stock.released for order %s: %w", orderID, err)
	}
	if c.metrics != nil {
		c.metrics.RefundsResult.WithLabelValues("processed").Inc()
	}
	return nil
}

func (c *RefundConsumer) publishFailed(ctx context.Context, orderID, reason string) error {
	if err := c.publisher.Publish(ctx, bus.RefundFailed, bus.RefundFailedPayload{OrderID: orderID, Reason: reason}); err != nil {
		return fmt.Errorf("publish refund.failed for order %s: %w", orderID, err)
	}
	if c.metrics != nil {
		c.metrics.RefundsResult.WithLabelValues("failed").Inc()
	}
	return nil
}
