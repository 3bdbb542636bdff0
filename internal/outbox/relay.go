package outbox

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/timour/order-saga/internal/bus"
	"github.com/timour/order-saga/internal/retry"
)

// PollInterval is how often the relay checks for unprocessed events.
const PollInterval = 200 * time.Millisecond

// BatchSize is how many events a single poll publishes.
const BatchSize = 100

// publishRetryPolicy bounds a single event's per-poll publish attempt;
// an event that still fails after this is left for the next poll,
// with RetryCount already incremented by MarkFailed.
var publishRetryPolicy = retry.Policy{MaxAttempts: 3, Initial: 100 * time.Millisecond, Max: time.Second}

// Relay polls Repository for unprocessed events and republishes them
// to the bus, marking each processed or failed as it goes.
type Relay struct {
	repo      Repository
	publisher bus.Publisher
	logger    *zap.Logger
}

// NewRelay wires the outbox repository and bus publisher.
func NewRelay(repo Repository, publisher bus.Publisher, logger *zap.Logger) *Relay {
	return &Relay{repo: repo, publisher: publisher, logger: logger}
}

// Start runs the poll loop until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.publishPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Relay) publishPending(ctx context.Context) {
	events, err := r.repo.PollUnprocessed(ctx, BatchSize)
	if err != nil {
		r.logger.Error("poll unprocessed outbox events", zap.Error(err))
		return
	}
	for _, event := range events {
		if err := r.publishOne(ctx, event); err != nil {
			r.logger.Warn("outbox publish failed, will retry on next poll",
				zap.String("event_id", event.ID.String()), zap.String("event_name", event.EventName), zap.Error(err))
			if markErr := r.repo.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
				r.logger.Error("mark outbox event failed", zap.Error(markErr))
			}
			continue
		}
		if err := r.repo.MarkProcessed(ctx, event.ID); err != nil {
			r.logger.Error("mark outbox event processed", zap.Error(err))
		}
	}
}

func (r *Relay) publishOne(ctx context.Context, event *Event) error {
	var payload json.RawMessage = event.Payload
	return retry.Do(ctx, publishRetryPolicy, nil, func(ctx context.Context) error {
		return r.publisher.Publish(ctx, event.EventName, payload)
	})
}
