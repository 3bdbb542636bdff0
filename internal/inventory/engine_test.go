package inventory

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testEngine() *Engine {
	return New(zap.NewNop())
}

func TestTryReserveDecrementsStockOnSuccess(t *testing.T) {
	e := testEngine()
	e.SetStock("P1", 100)

	ok := e.TryReserve(uuid.New(), "P1", 2, "", "order-1", time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 98, e.GetStock("P1"))
}

func TestTryReserveLeavesStockUnchangedOnFailure(t *testing.T) {
	e := testEngine()
	e.SetStock("P1", 10)

	// 50% rule: max allowed is 5, requesting 6 must fail.
	ok := e.TryReserve(uuid.New(), "P1", 6, "", "order-1", time.Minute)
	assert.False(t, ok)
	assert.Equal(t, 10, e.GetStock("P1"))
}

func TestFiftyPercentRuleScenarioS3(t *testing.T) {
	e := testEngine()
	e.SetStock("P1", 10)

	ok := e.TryReserve(uuid.New(), "P1", 6, "", "order-O", 10*time.Minute)
	assert.False(t, ok)
	assert.Equal(t, 10, e.GetStock("P1"))

	ok = e.TryReserve(uuid.New(), "P1", 5, "", "order-O", 10*time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 5, e.GetStock("P1"))
}

func TestReleaseRestoresStockExactly(t *testing.T) {
	e := testEngine()
	e.SetStock("P1", 100)
	id := uuid.New()

	ok := e.TryReserve(id, "P1", 7, "", "order-1", time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 93, e.GetStock("P1"))

	e.Release(id)
	assert.Equal(t, 100, e.GetStock("P1"))
}

func TestReleaseIsNoopForUnknownReservation(t *testing.T) {
	e := testEngine()
	e.SetStock("P1", 100)
	e.Release(uuid.New())
	assert.Equal(t, 100, e.GetStock("P1"))
}

func TestIdempotentReservationKeyDedupesRedelivery(t *testing.T) {
	e := testEngine()
	e.SetStock("P1", 100)

	first := e.TryReserve(uuid.New(), "P1", 5, "", "order-1", time.Minute)
	assert.True(t, first)
	assert.Equal(t, 95, e.GetStock("P1"))

	// Redelivered message for the same order/product: no-op, same
	// product lock path, no additional decrement.
	second := e.TryReserve(uuid.New(), "P1", 5, "", "order-1", time.Minute)
	assert.True(t, second)
	assert.Equal(t, 95, e.GetStock("P1"))
}

func TestFlashSaleCustomerCapCumulative(t *testing.T) {
	e := testEngine()
	e.SetStock("P1", 1000)
	e.SetFlashSaleProducts([]string{"P1"})

	ok := e.TryReserve(uuid.New(), "P1", 2, "cust-A", "order-1", time.Minute)
	assert.True(t, ok)

	// Same customer, different order: cumulative ledger already at 2,
	// cap is 2, so any further reservation must fail.
	ok = e.TryReserve(uuid.New(), "P1", 1, "cust-A", "order-2", time.Minute)
	assert.False(t, ok)
}

func TestFlashSaleCapRestoredOnRelease(t *testing.T) {
	e := testEngine()
	e.SetStock("P1", 1000)
	e.SetFlashSaleProducts([]string{"P1"})

	id := uuid.New()
	ok := e.TryReserve(id, "P1", 2, "cust-A", "order-1", time.Minute)
	assert.True(t, ok)

	e.Release(id)

	ok = e.TryReserve(uuid.New(), "P1", 2, "cust-A", "order-2", time.Minute)
	assert.True(t, ok, "releasing a reservation must restore flash-sale headroom")
}

func TestReleaseByOrderReleasesAllItsReservations(t *testing.T) {
	e := testEngine()
	e.SetStock("P1", 100)
	e.SetStock("P2", 100)

	e.TryReserve(uuid.New(), "P1", 10, "", "order-X", time.Minute)
	e.TryReserve(uuid.New(), "P2", 20, "", "order-X", time.Minute)
	assert.Equal(t, 90, e.GetStock("P1"))
	assert.Equal(t, 80, e.GetStock("P2"))

	e.ReleaseByOrder("order-X")
	assert.Equal(t, 100, e.GetStock("P1"))
	assert.Equal(t, 100, e.GetStock("P2"))
}

func TestReleaseExpiredSweepsPastDeadline(t *testing.T) {
	e := testEngine()
	e.SetStock("P1", 100)

	e.TryReserve(uuid.New(), "P1", 10, "", "order-1", -time.Second)
	assert.Equal(t, 90, e.GetStock("P1"))

	n := e.ReleaseExpired()
	assert.Equal(t, 1, n)
	assert.Equal(t, 100, e.GetStock("P1"))
}

func TestStockNeverGoesNegativeUnderConcurrentReserveRelease(t *testing.T) {
	e := testEngine()
	e.SetStock("P1", 50)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := uuid.New()
			orderID := uuid.New().String()
			if e.TryReserve(id, "P1", 1, "", orderID, time.Minute) {
				if i%2 == 0 {
					e.Release(id)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.GreaterOrEqual(t, e.GetStock("P1"), 0)
}

func TestBulkSetAndCheckAvailability(t *testing.T) {
	e := testEngine()
	e.BulkSet(map[string]int{"P1": 5, "P2": 7})

	got := e.CheckAvailability([]string{"P1", "P2", "P3"})
	assert.Equal(t, map[string]int{"P1": 5, "P2": 7, "P3": 0}, got)
}
