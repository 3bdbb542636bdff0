package idempotency

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemStoreFirstWriterWins(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	got, err := s.TryInsert(ctx, "k1", "order-A")
	assert.NoError(t, err)
	assert.Equal(t, "order-A", got)

	got, err = s.TryInsert(ctx, "k1", "order-B")
	assert.NoError(t, err)
	assert.Equal(t, "order-A", got, "second caller must see the first candidate")
}

func TestMemStoreConcurrentInsertsConverge(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := s.TryInsert(ctx, "shared", "candidate")
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "candidate", r)
	}
}
