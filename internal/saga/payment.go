package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/timour/order-saga/internal/bus"
	"github.com/timour/order-saga/internal/metrics"
	"github.com/timour/order-saga/internal/money"
	"github.com/timour/order-saga/internal/orderstore"
)

// FraudThreshold is the order total above which payment is rejected
// without attempting a charge.
var FraudThreshold = money.New(decimal.NewFromInt(10000), money.DefaultCurrency)

// paymentOutcome is one attempt's simulated result.
type paymentOutcome int

const (
	paymentSuccess paymentOutcome = iota
	paymentTimeout
	paymentFailure
)

// paymentAttemptBackoff is the fixed exponential schedule between
// timeout retries: 500ms, 1s, 2s, capped at 4s.
var paymentAttemptBackoff = []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}

const paymentMaxAttempts = 3

// PaymentConsumer subscribes to stock.reserved, runs the fraud check
// and the simulated-processor retry loop, and emits the terminal
// payment event.
type PaymentConsumer struct {
	store     orderstore.Store
	publisher bus.Publisher
	logger    *slog.Logger
	outcome   func() paymentOutcome
	sleep     func(ctx context.Context, d time.Duration) error
	metrics   *metrics.SagaMetrics
}

// NewPaymentConsumer wires the order store (to read total_amount) and
// publisher. The outcome distribution is 0.85 success / 0.10 timeout /
// 0.05 failure, matching the fair distribution the processor contract
// requires. m may be nil in tests.
func NewPaymentConsumer(store orderstore.Store, publisher bus.Publisher, logger *slog.Logger, m *metrics.SagaMetrics) *PaymentConsumer {
	return &PaymentConsumer{
		store:     store,
		publisher: publisher,
		logger:    logger,
		outcome:   defaultPaymentOutcome,
		sleep:     sleepCtx,
		metrics:   m,
	}
}

func defaultPaymentOutcome() paymentOutcome {
	r := rand.Float64()
	switch {
	case r < 0.85:
		return paymentSuccess
	case r < 0.95:
		return paymentTimeout
	default:
		return paymentFailure
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the consumer's single subscription.
func (c *PaymentConsumer) Start(ctx context.Context, b *bus.Bus) {
	go b.Consume(ctx, bus.StockReserved, bus.StockReserved, c.handleStockReserved)
}

func (c *PaymentConsumer) handleStockReserved(ctx context.Context, body []byte) error {
	var payload bus.StockReservedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("unmarshal stock.reserved: %w", err)
	}

	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		return fmt.Errorf("invalid order id %q: %w", payload.OrderID, err)
	}
	order, err := c.store.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", payload.OrderID, err)
	}

	if order.TotalAmount.GreaterThan(FraudThreshold) {
		return c.publishFailed(ctx, payload.OrderID, "fraud_verification_required")
	}

	for attempt := 1; attempt <= paymentMaxAttempts; attempt++ {
		switch c.outcome() {
		case paymentSuccess:
			return c.publishProcessed(ctx, payload.OrderID)
		case paymentFailure:
			return c.publishFailed(ctx, payload.OrderID, "payment_declined")
		case paymentTimeout:
			if attempt == paymentMaxAttempts {
				return c.publishFailed(ctx, payload.OrderID, "processor_error")
			}
			c.logger.Info("payment attempt timed out, retrying",
				slog.String("order_id", payload.OrderID), slog.Int("attempt", attempt))
			if err := c.sleep(ctx, paymentAttemptBackoff[attempt-1]); err != nil {
				return err
			}
		}
	}
	return c.publishFailed(ctx, payload.OrderID, "processor_error")
}

func (c *PaymentConsumer) publishProcessed(ctx context.Context, orderID string) error {
	if err := c.publisher.Publish(ctx, bus.PaymentProcessed, bus.PaymentProcessedPayload{OrderID: orderID}); err != nil {
		return fmt.Errorf("publish payment.processed for order %s: %w", orderID, err)
	}
	if c.metrics != nil {
		c.metrics.PaymentsResult.WithLabelValues("processed", "").Inc()
	}
	return nil
}

func (c *PaymentConsumer) publishFailed(ctx context.Context, orderID, reason string) error {
	if err := c.publisher.Publish(ctx, bus.PaymentFailed, bus.PaymentFailedPayload{OrderID: orderID, Reason: reason}); err != nil {
		return fmt.Errorf("publish payment.failed for order %s: %w", orderID, err)
	}
	if c.metrics != nil {
		c.metrics.PaymentsResult.WithLabelValues("failed", reason).Inc()
	}
	return nil
}
