// Package handler implements the inbound command surface: creating an
// order and driving it through its terminal transitions.
package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/timour/order-saga/internal/bus"
	"github.com/timour/order-saga/internal/domain"
	"github.com/timour/order-saga/internal/idempotency"
	"github.com/timour/order-saga/internal/metrics"
	"github.com/timour/order-saga/internal/money"
	"github.com/timour/order-saga/internal/orderstore"
	"github.com/timour/order-saga/internal/outbox"
)

// outboxCreator is satisfied by orderstore.PostgresStore. Persisting
// through it enqueues the saga event in the same transaction as the
// aggregate write instead of publishing directly afterward.
type outboxCreator interface {
	CreateWithOutbox(ctx context.Context, o *domain.Order, repo outbox.Repository, eventName string, payload any) error
}

// outboxSaver is the transition-path analogue of outboxCreator, used
// by Cancel/Ship/Deliver in transition.go.
type outboxSaver interface {
	SaveWithOutbox(ctx context.Context, o *domain.Order, repo outbox.Repository, eventName string, payload any) error
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateOrderItem is one requested line item.
type CreateOrderItem struct {
	ProductID string `validate:"required"`
	Quantity  int    `validate:"required,gt=0"`
	UnitPrice string `validate:"required"`
	Currency  string `validate:"omitempty,len=3"`
}

// CreateOrderCommand is the internal command the create-order handler
// validates before touching the aggregate.
type CreateOrderCommand struct {
	CustomerID     string `validate:"required"`
	Items          []CreateOrderItem `validate:"required,min=1,max=20,dive"`
	IdempotencyKey string
}

// OrderHandler builds and persists the Order aggregate and drives it
// through its terminal transitions, publishing the matching saga event
// after every durable state change.
type OrderHandler struct {
	store      orderstore.Store
	idempotent idempotency.Store
	publisher  bus.Publisher
	metrics    *metrics.SagaMetrics
	now        func() time.Time
	outboxRepo outbox.Repository
}

// NewOrderHandler wires the order store, idempotency store, and bus
// publisher. m may be nil in tests.
func NewOrderHandler(store orderstore.Store, idempotent idempotency.Store, publisher bus.Publisher, m *metrics.SagaMetrics) *OrderHandler {
	return &OrderHandler{store: store, idempotent: idempotent, publisher: publisher, metrics: m, now: time.Now}
}

// SetOutbox opts the handler into the transactional outbox: when repo
// is non-nil and the underlying store supports it, every persisted
// mutation enqueues its saga event in the same transaction instead of
// publishing directly afterward. A nil or never-called SetOutbox keeps
// the handler on the direct-publish path (used by MemStore runs).
func (h *OrderHandler) SetOutbox(repo outbox.Repository) {
	h.outboxRepo = repo
}

// CreateOrder validates cmd, builds the aggregate, and commits it in a
// single persistence call before publishing order.created exactly
// once. If IdempotencyKey is set and already claimed by a different
// order, the existing order is returned and nothing is published or
// persisted again.
func (h *OrderHandler) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error) {
	if err := validate.Struct(cmd); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	candidateID := uuid.New()
	orderID := candidateID
	if cmd.IdempotencyKey != "" {
		actual, err := h.idempotent.TryInsert(ctx, cmd.IdempotencyKey, candidateID.String())
		if err != nil {
			return nil, fmt.Errorf("check idempotency key %q: %w", cmd.IdempotencyKey, err)
		}
		if actual != candidateID.String() {
			existingID, err := uuid.Parse(actual)
			if err != nil {
				return nil, fmt.Errorf("parse idempotent order id %q: %w", actual, err)
			}
			return h.store.Get(ctx, existingID)
		}
	}

	items := make([]domain.OrderItem, 0, len(cmd.Items))
	for _, it := range cmd.Items {
		amount, err := decimal.NewFromString(it.UnitPrice)
		if err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("item %s: invalid unit_price %q", it.ProductID, it.UnitPrice))
		}
		items = append(items, domain.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: money.New(amount, it.Currency),
		})
	}

	order, err := domain.NewOrder(orderID, cmd.CustomerID, items, h.now())
	if err != nil {
		return nil, err
	}

	payload := bus.OrderCreatedPayload{
		OrderID:    order.ID.String(),
		CustomerID: order.CustomerID,
		Total:      order.TotalAmount.Amount().StringFixed(2),
		Items:      make([]bus.OrderItemPayload, 0, len(order.Items)),
	}
	for _, it := range order.Items {
		payload.Items = append(payload.Items, bus.OrderItemPayload{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	if oc, ok := h.store.(outboxCreator); ok && h.outboxRepo != nil {
		if err := oc.CreateWithOutbox(ctx, order, h.outboxRepo, bus.OrderCreated, payload); err != nil {
			return nil, fmt.Errorf("persist order %s: %w", order.ID, err)
		}
	} else {
		if err := h.store.Create(ctx, order); err != nil {
			return nil, fmt.Errorf("persist order %s: %w", order.ID, err)
		}
		if err := h.publisher.Publish(ctx, bus.OrderCreated, payload); err != nil {
			return nil, fmt.Errorf("publish order.created for order %s: %w", order.ID, err)
		}
	}
	if h.metrics != nil {
		h.metrics.OrdersCreated.Inc()
	}

	return order, nil
}
