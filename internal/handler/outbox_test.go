package handler

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/timour/order-saga/internal/bus"
	"github.com/timour/order-saga/internal/domain"
	"github.com/timour/order-saga/internal/idempotency"
	"github.com/timour/order-saga/internal/orderstore"
	"github.com/timour/order-saga/internal/outbox"
)

// fakeOutboxRepo is a minimal outbox.Repository double that records
// enqueued event names instead of touching Postgres, so the handler's
// outbox-vs-direct-publish branch can be exercised without a live DB.
type fakeOutboxRepo struct {
	mu       sync.Mutex
	enqueued []string
}

func (f *fakeOutboxRepo) Enqueue(_ context.Context, _ pgx.Tx, _, eventName string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, eventName)
	return nil
}

func (f *fakeOutboxRepo) PollUnprocessed(context.Context, int) ([]*outbox.Event, error) {
	return nil, nil
}
func (f *fakeOutboxRepo) MarkProcessed(context.Context, uuid.UUID) error { return nil }
func (f *fakeOutboxRepo) MarkFailed(context.Context, uuid.UUID, string) error { return nil }

func (f *fakeOutboxRepo) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.enqueued...)
}

// outboxCapableStore wraps MemStore with the CreateWithOutbox/
// SaveWithOutbox capability PostgresStore exposes, so the handler's
// type-assertion branch picks it up the same way it would pick up a
// real *orderstore.PostgresStore.
type outboxCapableStore struct {
	*orderstore.MemStore
}

func (s *outboxCapableStore) CreateWithOutbox(ctx context.Context, o *domain.Order, repo outbox.Repository, eventName string, payload any) error {
	if err := s.MemStore.Create(ctx, o); err != nil {
		return err
	}
	return repo.Enqueue(ctx, nil, o.ID.String(), eventName, payload)
}

func (s *outboxCapableStore) SaveWithOutbox(ctx context.Context, o *domain.Order, repo outbox.Repository, eventName string, payload any) error {
	if err := s.MemStore.Save(ctx, o); err != nil {
		return err
	}
	return repo.Enqueue(ctx, nil, o.ID.String(), eventName, payload)
}

func TestCreateOrderEnqueuesOutboxInsteadOfPublishingDirectly(t *testing.T) {
	store := &outboxCapableStore{MemStore: orderstore.NewMemStore()}
	pub := bus.NewFakePublisher()
	repo := &fakeOutboxRepo{}

	h := NewOrderHandler(store, idempotency.NewMemStore(), pub, nil)
	h.SetOutbox(repo)

	order, err := h.CreateOrder(context.Background(), validCommand())
	require.NoError(t, err)

	require.Equal(t, 0, pub.Count(bus.OrderCreated), "outbox path must not also publish directly")
	require.Equal(t, []string{bus.OrderCreated}, repo.names())

	stored, err := store.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, order.ID, stored.ID)
}

func TestCancelEnqueuesOutboxInsteadOfPublishingDirectly(t *testing.T) {
	store := &outboxCapableStore{MemStore: orderstore.NewMemStore()}
	pub := bus.NewFakePublisher()
	repo := &fakeOutboxRepo{}

	h := NewOrderHandler(store, idempotency.NewMemStore(), pub, nil)
	h.SetOutbox(repo)

	order, err := h.CreateOrder(context.Background(), validCommand())
	require.NoError(t, err)
	require.NoError(t, h.Cancel(context.Background(), order.ID, "changed_mind"))

	require.Equal(t, 0, pub.Count(bus.OrderCancelled), "outbox path must not also publish directly")
	require.Equal(t, []string{bus.OrderCreated, bus.OrderCancelled}, repo.names())

	stored, err := store.Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.Cancelled, stored.Status)
}

func TestCreateOrderFallsBackToDirectPublishWithoutOutbox(t *testing.T) {
	h, _, pub := newTestHandler()

	_, err := h.CreateOrder(context.Background(), validCommand())
	require.NoError(t, err)
	require.Equal(t, 1, pub.Count(bus.OrderCreated))
}
