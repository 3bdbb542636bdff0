// Package domain implements the Order aggregate: its status DAG,
// guarded transition methods, and line-item invariants.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/timour/order-saga/internal/money"
)

// Status is one of the five legal order states.
type Status int

const (
	Pending Status = iota
	Confirmed
	Cancelled
	Shipped
	Delivered
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Confirmed:
		return "Confirmed"
	case Cancelled:
		return "Cancelled"
	case Shipped:
		return "Shipped"
	case Delivered:
		return "Delivered"
	default:
		return "Unknown"
	}
}

// CancellationWindow is how long after creation an order may still be
// cancelled.
const CancellationWindow = 2 * time.Hour

// MinItems and MaxItems bound the length of an order's item list.
const (
	MinItems = 1
	MaxItems = 20
)

// minTotal and maxTotal bound total_amount.
var (
	minTotal = money.New(decimal.NewFromInt(100), money.DefaultCurrency)
	maxTotal = money.New(decimal.NewFromInt(50000), money.DefaultCurrency)
)

// OrderItem is a line item owned by exactly one Order.
type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID string
	Quantity  int
	UnitPrice money.Money
}

// LineTotal is unit_price * quantity, rounded half-away-from-zero.
func (i OrderItem) LineTotal() money.Money {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is the durable aggregate root for a single customer purchase.
type Order struct {
	ID           uuid.UUID
	CustomerID   string
	Status       Status
	CreatedAt    time.Time
	ConfirmedAt  *time.Time
	CancelledAt  *time.Time
	ShippedAt    *time.Time
	DeliveredAt  *time.Time
	CancelReason string
	TotalAmount  money.Money
	RowVersion   int64
	Items        []OrderItem
}

// NewOrder constructs and validates a new Pending order. createdAt is
// passed in rather than read from the clock so handlers can stamp it
// deterministically around persistence.
func NewOrder(id uuid.UUID, customerID string, items []OrderItem, createdAt time.Time) (*Order, error) {
	if len(items) < MinItems || len(items) > MaxItems {
		return nil, NewValidationError(fmt.Sprintf("order must have between %d and %d items, got %d", MinItems, MaxItems, len(items)))
	}
	for idx := range items {
		if items[idx].Quantity <= 0 {
			return nil, NewValidationError(fmt.Sprintf("item %d: quantity must be positive", idx))
		}
	}

	total := money.Zero()
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	if total.LessThan(minTotal) || total.GreaterThan(maxTotal) {
		return nil, NewValidationError(fmt.Sprintf("total_amount %s outside allowed range [%s, %s]", total, minTotal, maxTotal))
	}

	return &Order{
		ID:          id,
		CustomerID:  customerID,
		Status:      Pending,
		CreatedAt:   createdAt,
		TotalAmount: total,
		RowVersion:  1,
		Items:       items,
	}, nil
}

// Confirm transitions Pending -> Confirmed.
func (o *Order) Confirm(now time.Time) error {
	if o.Status != Pending {
		return illegalTransition(o.Status, Confirmed)
	}
	o.Status = Confirmed
	o.ConfirmedAt = &now
	return nil
}

// Cancel transitions Pending|Confirmed -> Cancelled, guarded by the
// 2h cancellation window measured from CreatedAt.
func (o *Order) Cancel(reason string, now time.Time) error {
	if o.Status != Pending && o.Status != Confirmed {
		return illegalTransition(o.Status, Cancelled)
	}
	if now.Sub(o.CreatedAt) > CancellationWindow {
		return ErrCancellationWindowExceeded
	}
	if len(reason) > 200 {
		reason = reason[:200]
	}
	o.Status = Cancelled
	o.CancelledAt = &now
	o.CancelReason = reason
	return nil
}

// MarkShipped transitions Confirmed -> Shipped.
func (o *Order) MarkShipped(now time.Time) error {
	if o.Status != Confirmed {
		return illegalTransition(o.Status, Shipped)
	}
	o.Status = Shipped
	o.ShippedAt = &now
	return nil
}

// MarkDelivered transitions Shipped -> Delivered.
func (o *Order) MarkDelivered(now time.Time) error {
	if o.Status != Shipped {
		return illegalTransition(o.Status, Delivered)
	}
	o.Status = Delivered
	o.DeliveredAt = &now
	return nil
}

// IsTerminal reports whether no further transitions are legal.
func (o *Order) IsTerminal() bool {
	return o.Status == Cancelled || o.Status == Delivered
}

func illegalTransition(from, to Status) error {
	return fmt.Errorf("%w: cannot move from %s to %s", ErrIllegalTransition, from, to)
}

// IsIllegalTransition reports whether err is (or wraps) ErrIllegalTransition.
func IsIllegalTransition(err error) bool {
	return errors.Is(err, ErrIllegalTransition)
}

// IsCancellationWindowExceeded reports whether err is (or wraps)
// ErrCancellationWindowExceeded.
func IsCancellationWindowExceeded(err error) bool {
	return errors.Is(err, ErrCancellationWindowExceeded)
}
