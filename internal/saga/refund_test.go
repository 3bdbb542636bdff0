package saga

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/timour/order-saga/internal/bus"
)

func newRefundConsumerForTest(pub bus.Publisher, outcome func() refundOutcome) *RefundConsumer {
	c := NewRefundConsumer(pub, slog.Default(), nil)
	c.outcome = outcome
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	c.jitter = func() time.Duration { return 0 }
	return c
}

func TestRefundSucceedsAndReleasesStock(t *testing.T) {
	pub := bus.NewFakePublisher()
	orderID := uuid.New().String()
	c := newRefundConsumerForTest(pub, func() refundOutcome { return refundSuccess })

	err := c.handleOrderCancelled(context.Background(), mustJSON(t, bus.OrderCancelledPayload{OrderID: orderID}))
	require.NoError(t, err)
	require.Equal(t, 1, pub.Count(bus.RefundProcessed))

	var released bus.StockReleasedPayload
	require.True(t, pub.Last(bus.StockReleased, &released))
	require.Equal(t, "order_cancelled", released.Reason)
}

func TestRefundRetriesOnTimeoutThenSucceeds(t *testing.T) {
	pub := bus.NewFakePublisher()
	orderID := uuid.New().String()
	calls := 0
	c := newRefundConsumerForTest(pub, func() refundOutcome {
		calls++
		if calls < 2 {
			return refundTimeout
		}
		return refundSuccess
	})

	err := c.handleOrderCancelled(context.Background(), mustJSON(t, bus.OrderCancelledPayload{OrderID: orderID}))
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 1, pub.Count(bus.RefundProcessed))
}

func TestRefundExhaustsRetriesAndFails(t *testing.T) {
	pub := bus.NewFakePublisher()
	orderID := uuid.New().String()
	c := newRefundConsumerForTest(pub, func() refundOutcome { return refundTimeout })

	err := c.handleOrderCancelled(context.Background(), mustJSON(t, bus.OrderCancelledPayload{OrderID: orderID}))
	require.NoError(t, err)

	var got bus.RefundFailedPayload
	require.True(t, pub.Last(bus.RefundFailed, &got))
	require.Equal(t, "timeout", got.Reason)
	require.Equal(t, 0, pub.Count(bus.RefundProcessed))
}

func TestRefundDeclinedIsTerminal(t *testing.T) {
	pub := bus.NewFakePublisher()
	orderID := uuid.New().String()
	c := newRefundConsumerForTest(pub, func() refundOutcome { return refundDeclined })

	err := c.handleOrderCancelled(context.Background(), mustJSON(t, bus.OrderCancelledPayload{OrderID: orderID}))
	require.NoError(t, err)

	var got bus.RefundFailedPayload
	require.True(t, pub.Last(bus.RefundFailed, &got))
	require.Equal(t, "declined", got.Reason)
}
