package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timour/order-saga/internal/bus"
	"github.com/timour/order-saga/internal/domain"
)

// Cancel loads the order, applies the guarded Cancel transition, and
// publishes order.cancelled once the new state is durably saved.
func (h *OrderHandler) Cancel(ctx context.Context, id uuid.UUID, reason string) error {
	order, err := h.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load order %s: %w", id, err)
	}
	now := h.now()
	if err := order.Cancel(reason, now); err != nil {
		return err
	}
	payload := bus.OrderCancelledPayload{
		OrderID: id.String(),
		At:      now.UTC().Format(time.RFC3339),
		Reason:  reason,
	}
	if err := h.saveAndPublish(ctx, order, bus.OrderCancelled, payload); err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.OrdersCancelled.WithLabelValues(reason).Inc()
	}
	return nil
}

// Ship loads the order, applies MarkShipped, and publishes
// order.shipped once saved.
func (h *OrderHandler) Ship(ctx context.Context, id uuid.UUID) error {
	order, err := h.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load order %s: %w", id, err)
	}
	now := h.now()
	if err := order.MarkShipped(now); err != nil {
		return err
	}
	return h.saveAndPublish(ctx, order, bus.OrderShipped, bus.OrderShippedPayload{
		OrderID: id.String(),
		At:      now.UTC().Format(time.RFC3339),
	})
}

// Deliver loads the order, applies MarkDelivered, and publishes
// order.delivered once saved.
func (h *OrderHandler) Deliver(ctx context.Context, id uuid.UUID) error {
	order, err := h.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load order %s: %w", id, err)
	}
	now := h.now()
	if err := order.MarkDelivered(now); err != nil {
		return err
	}
	return h.saveAndPublish(ctx, order, bus.OrderDelivered, bus.OrderDeliveredPayload{
		OrderID: id.String(),
		At:      now.UTC().Format(time.RFC3339),
	})
}

// saveAndPublish persists order's already-applied transition and emits
// eventName/payload. When the store supports the outbox and one is
// wired, the save and the enqueue happen atomically and the relay
// delivers the event; otherwise it publishes directly after the save,
// same as the create path's fallback.
func (h *OrderHandler) saveAndPublish(ctx context.Context, order *domain.Order, eventName string, payload any) error {
	if saver, ok := h.store.(outboxSaver); ok && h.outboxRepo != nil {
		if err := saver.SaveWithOutbox(ctx, order, h.outboxRepo, eventName, payload); err != nil {
			return fmt.Errorf("save order %s: %w", order.ID, err)
		}
		return nil
	}
	if err := h.store.Save(ctx, order); err != nil {
		return fmt.Errorf("save order %s: %w", order.ID, err)
	}
	return h.publisher.Publish(ctx, eventName, payload)
}
