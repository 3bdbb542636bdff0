package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakePublisherRecordsPayloads(t *testing.T) {
	f := NewFakePublisher()
	ctx := context.Background()

	require.NoError(t, f.Publish(ctx, OrderCreated, OrderCreatedPayload{OrderID: "order-1", Total: "120.00"}))
	require.NoError(t, f.Publish(ctx, OrderCreated, OrderCreatedPayload{OrderID: "order-2", Total: "60.00"}))

	assert.Equal(t, 2, f.Count(OrderCreated))

	var got OrderCreatedPayload
	require.True(t, f.Last(OrderCreated, &got))
	assert.Equal(t, "order-2", got.OrderID)
}

func TestFakePublisherFailNextPublish(t *testing.T) {
	f := NewFakePublisher()
	ctx := context.Background()
	f.FailNextPublish(OrderCreated)

	err := f.Publish(ctx, OrderCreated, OrderCreatedPayload{OrderID: "order-1"})
	assert.Error(t, err)
	assert.Equal(t, 0, f.Count(OrderCreated))

	require.NoError(t, f.Publish(ctx, OrderCreated, OrderCreatedPayload{OrderID: "order-1"}))
	assert.Equal(t, 1, f.Count(OrderCreated))
}
