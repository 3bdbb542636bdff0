package saga

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/timour/order-saga/internal/bus"
	"github.com/timour/order-saga/internal/domain"
	"github.com/timour/order-saga/internal/money"
	"github.com/timour/order-saga/internal/orderstore"
)

func newPendingOrder(t *testing.T, store *orderstore.MemStore) uuid.UUID {
	t.Helper()
	item := domain.OrderItem{ProductID: "p1", Quantity: 1, UnitPrice: money.New(decimal.NewFromInt(500), money.DefaultCurrency)}
	o, err := domain.NewOrder(uuid.New(), "cust-1", []domain.OrderItem{item}, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), o))
	return o.ID
}

func TestStatusUpdaterConfirmsOnPaymentProcessed(t *testing.T) {
	store := orderstore.NewMemStore()
	pub := bus.NewFakePublisher()
	orderID := newPendingOrder(t, store)
	c := NewStatusUpdaterConsumer(store, pub, slog.Default())

	err := c.handlePaymentProcessed(context.Background(), mustJSON(t, bus.PaymentProcessedPayload{OrderID: orderID.String()}))
	require.NoError(t, err)

	o, err := store.Get(context.Background(), orderID)
	require.NoError(t, err)
	require.Equal(t, domain.Confirmed, o.Status)
}

func TestStatusUpdaterPaymentProcessedIsIdempotent(t *testing.T) {
	store := orderstore.NewMemStore()
	pub := bus.NewFakePublisher()
	orderID := newPendingOrder(t, store)
	c := NewStatusUpdaterConsumer(store, pub, slog.Default())

	body := mustJSON(t, bus.PaymentProcessedPayload{OrderID: orderID.String()})
	require.NoError(t, c.handlePaymentProcessed(context.Background(), body))
	require.NoError(t, c.handlePaymentProcessed(context.Background(), body))

	o, err := store.Get(context.Background(), orderID)
	require.NoError(t, err)
	require.Equal(t, domain.Confirmed, o.Status)
}

func TestStatusUpdaterCancelsAndReleasesOnPaymentFailed(t *testing.T) {
	store := orderstore.NewMemStore()
	pub := bus.NewFakePublisher()
	orderID := newPendingOrder(t, store)
	c := NewStatusUpdaterConsumer(store, pub, slog.Default())

	err := c.handlePaymentFailed(context.Background(), mustJSON(t, bus.PaymentFailedPayload{OrderID: orderID.String(), Reason: "processor_error"}))
	require.NoError(t, err)

	o, err := store.Get(context.Background(), orderID)
	require.NoError(t, err)
	require.Equal(t, domain.Cancelled, o.Status)
	require.Equal(t, "payment_failed", o.CancelReason)

	var released bus.StockReleasedPayload
	require.True(t, pub.Last(bus.StockReleased, &released))
	require.Equal(t, "payment_failed", released.Reason)
}

func TestStatusUpdaterCancelsOnStockFailed(t *testing.T) {
	store := orderstore.NewMemStore()
	pub := bus.NewFakePublisher()
	orderID := newPendingOrder(t, store)
	c := NewStatusUpdaterConsumer(store, pub, slog.Default())

	err := c.handleStockFailed(context.Background(), mustJSON(t, bus.StockFailedPayload{OrderID: orderID.String(), Reason: "insufficient stock"}))
	require.NoError(t, err)

	o, err := store.Get(context.Background(), orderID)
	require.NoError(t, err)
	require.Equal(t, domain.Cancelled, o.Status)
	require.Equal(t, "inventory_failed", o.CancelReason)
}

func TestStatusUpdaterToleratesUnknownOrder(t *testing.T) {
	store := orderstore.NewMemStore()
	pub := bus.NewFakePublisher()
	c := NewStatusUpdaterConsumer(store, pub, slog.Default())

	err := c.handlePaymentProcessed(context.Background(), mustJSON(t, bus.PaymentProcessedPayload{OrderID: uuid.New().String()}))
	require.NoError(t, err)
}
