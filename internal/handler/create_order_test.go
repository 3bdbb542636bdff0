package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/timour/order-saga/internal/bus"
	"github.com/timour/order-saga/internal/idempotency"
	"github.com/timour/order-saga/internal/orderstore"
)

func newTestHandler() (*OrderHandler, *orderstore.MemStore, *bus.FakePublisher) {
	store := orderstore.NewMemStore()
	pub := bus.NewFakePublisher()
	idem := idempotency.NewMemStore()
	return NewOrderHandler(store, idem, pub, nil), store, pub
}

func validCommand() CreateOrderCommand {
	return CreateOrderCommand{
		CustomerID: "cust-1",
		Items: []CreateOrderItem{
			{ProductID: "p1", Quantity: 2, UnitPrice: "250.00"},
		},
	}
}

func TestCreateOrderPersistsAndPublishes(t *testing.T) {
	h, store, pub := newTestHandler()
	order, err := h.CreateOrder(context.Background(), validCommand())
	require.NoError(t, err)

	stored, err := store.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, order.ID, stored.ID)
	require.Equal(t, 1, pub.Count(bus.OrderCreated))
}

func TestCreateOrderRejectsInvalidCommand(t *testing.T) {
	h, _, _ := newTestHandler()
	cmd := validCommand()
	cmd.CustomerID = ""
	_, err := h.CreateOrder(context.Background(), cmd)
	require.Error(t, err)
}

func TestCreateOrderIdempotencyKeyReturnsExistingOrder(t *testing.T) {
	h, _, pub := newTestHandler()
	cmd := validCommand()
	cmd.IdempotencyKey = "key-1"

	first, err := h.CreateOrder(context.Background(), cmd)
	require.NoError(t, err)

	second, err := h.CreateOrder(context.Background(), cmd)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 1, pub.Count(bus.OrderCreated))
}
