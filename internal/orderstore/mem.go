package orderstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/timour/order-saga/internal/domain"
)

// MemStore is an in-process Store used by tests and by the saga
// consumers' own unit tests. It enforces the same row_version check
// as PostgresStore.
type MemStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{orders: make(map[uuid.UUID]*domain.Order)}
}

func clone(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp
}

// Create implements Store.
func (s *MemStore) Create(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; exists {
		return fmt.Errorf("order %s: already exists", o.ID)
	}
	s.orders[o.ID] = clone(o)
	return nil
}

// Save implements Store, checking RowVersion the way the SQL
// WHERE id = $1 AND row_version = $2 clause does.
func (s *MemStore) Save(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.orders[o.ID]
	if !ok {
		return fmt.Errorf("order %s: %w", o.ID, ErrNotFound)
	}
	if existing.RowVersion != o.RowVersion {
		return domain.ErrOptimisticConflict
	}
	updated := clone(o)
	updated.RowVersion++
	s.orders[o.ID] = updated
	o.RowVersion = updated.RowVersion
	return nil
}

// Get implements Store.
func (s *MemStore) Get(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return clone(o), nil
}

// GetByStatus implements Store.
func (s *MemStore) GetByStatus(_ context.Context, status domain.Status) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Order
	for _, o := range s.orders {
		if o.Status == status {
			out = append(out, clone(o))
		}
	}
	return out, nil
}
