package bus

import (
	"context"
	"encoding/json"
	"sync"
)

// Publisher is the subset of Bus the saga handlers depend on, so tests
// can substitute a fake instead of dialing RabbitMQ.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) error
}

// FakePublisher records every published payload in order, keyed by
// event name, for assertions in saga/handler tests.
type FakePublisher struct {
	mu        sync.Mutex
	published map[string][][]byte
	failNext  map[string]bool
}

// NewFakePublisher returns an empty FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{
		published: make(map[string][][]byte),
		failNext:  make(map[string]bool),
	}
}

// Publish implements Publisher.
func (f *FakePublisher) Publish(_ context.Context, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext[event] {
		f.failNext[event] = false
		return errPublishFailed
	}
	f.published[event] = append(f.published[event], body)
	return nil
}

// FailNextPublish makes the next Publish call for event return an
// error, simulating a BusPublishError.
func (f *FakePublisher) FailNextPublish(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext[event] = true
}

// Count returns how many times event was published.
func (f *FakePublisher) Count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published[event])
}

// Last unmarshals the most recent payload published for event into v.
func (f *FakePublisher) Last(event string, v any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.published[event]
	if len(msgs) == 0 {
		return false
	}
	_ = json.Unmarshal(msgs[len(msgs)-1], v)
	return true
}

type publishFailedError struct{}

func (publishFailedError) Error() string { return "bus: simulated publish failure" }

var errPublishFailed = publishFailedError{}
