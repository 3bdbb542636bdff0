// Package inventory implements the concurrent, in-memory reservation
// engine: per-product locking, TTL expiry, idempotent reservation
// keys, the 50%-of-available rule, and flash-sale per-customer caps.
package inventory

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/timour/order-saga/internal/metrics"
)

// LowStockThreshold is the post-commit stock level below which a
// LOW_STOCK signal is logged.
const LowStockThreshold = 10

// FlashSaleCustomerCap is the maximum cumulative reserved quantity a
// single customer may hold for a flash-sale product.
const FlashSaleCustomerCap = 2

// TTLSweepInterval is how often the background sweeper calls
// ReleaseExpired.
const TTLSweepInterval = 60 * time.Second

type reservation struct {
	id         uuid.UUID
	orderID    string
	productID  string
	qty        int
	customerID string
	expiresAt  time.Time
}

// productState holds everything a single product's mutex guards:
// available stock, its live reservations, the flash-sale ledger, and
// the idempotent-reservation-key set, all scoped to that product.
type productState struct {
	mu             sync.Mutex
	available      int
	reservations   map[uuid.UUID]*reservation
	ledger         map[string]int  // customer_id -> reserved qty (flash-sale only)
	idempotentKeys map[string]bool // order_id -> already reserved for this product
}

func newProductState() *productState {
	return &productState{
		reservations:   make(map[uuid.UUID]*reservation),
		ledger:         make(map[string]int),
		idempotentKeys: make(map[string]bool),
	}
}

// Engine is the process-wide reservation store. Zero value is not
// usable; construct with New.
type Engine struct {
	logger *zap.Logger

	products sync.Map // string -> *productState, lazily created, never deleted

	indexMu  sync.Mutex
	byOrder  map[string][]uuid.UUID  // order_id -> reservation ids
	location map[uuid.UUID]string    // reservation id -> product id
	expiry   map[uuid.UUID]time.Time // reservation id -> expires_at

	flashSale atomic.Pointer[map[string]struct{}]

	metrics *metrics.SagaMetrics
}

// SetMetrics attaches the saga business metrics counters; the LOW_STOCK
// signal increments metrics.LowStockSignals when set. Optional: a nil
// or never-called SetMetrics leaves the engine fully functional.
func (e *Engine) SetMetrics(m *metrics.SagaMetrics) {
	e.metrics = m
}

// New builds an empty Engine.
func New(logger *zap.Logger) *Engine {
	e := &Engine{
		logger:   logger,
		byOrder:  make(map[string][]uuid.UUID),
		location: make(map[uuid.UUID]string),
		expiry:   make(map[uuid.UUID]time.Time),
	}
	empty := make(map[string]struct{})
	e.flashSale.Store(&empty)
	return e
}

func (e *Engine) stateFor(product string) *productState {
	if v, ok := e.products.Load(product); ok {
		return v.(*productState)
	}
	v, _ := e.products.LoadOrStore(product, newProductState())
	return v.(*productState)
}

func (e *Engine) isFlashSale(product string) bool {
	set := *e.flashSale.Load()
	_, ok := set[product]
	return ok
}

// SetFlashSaleProducts atomically replaces the flash-sale set.
func (e *Engine) SetFlashSaleProducts(products []string) {
	set := make(map[string]struct{}, len(products))
	for _, p := range products {
		set[p] = struct{}{}
	}
	e.flashSale.Store(&set)
}

// TryReserve implements the reservation algorithm of the inventory
// engine under a single product's lock. reservationID is assigned by
// the caller (the saga consumer mints a fresh uuid per attempt).
func (e *Engine) TryReserve(reservationID uuid.UUID, product string, qty int, customerID, orderID string, ttl time.Duration) bool {
	st := e.stateFor(product)
	st.mu.Lock()

	if orderID != "" && st.idempotentKeys[orderID] {
		st.mu.Unlock()
		return true
	}
	if qty <= 0 {
		st.mu.Unlock()
		return false
	}

	available := st.available
	if orderID != "" {
		maxAllowed := int(math.Max(1, math.Floor(float64(available)*0.5)))
		if qty > maxAllowed {
			st.mu.Unlock()
			return false
		}
	}
	if e.isFlashSale(product) && customerID != "" {
		if st.ledger[customerID]+qty > FlashSaleCustomerCap {
			st.mu.Unlock()
			return false
		}
	}
	if available < qty {
		st.mu.Unlock()
		return false
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	st.available = available - qty
	st.reservations[reservationID] = &reservation{
		id:         reservationID,
		orderID:    orderID,
		productID:  product,
		qty:        qty,
		customerID: customerID,
		expiresAt:  expiresAt,
	}
	if e.isFlashSale(product) && customerID != "" {
		st.ledger[customerID] += qty
	}
	if orderID != "" {
		st.idempotentKeys[orderID] = true
	}
	remaining := st.available
	st.mu.Unlock()

	e.indexMu.Lock()
	e.location[reservationID] = product
	e.expiry[reservationID] = expiresAt
	if orderID != "" {
		e.byOrder[orderID] = append(e.byOrder[orderID], reservationID)
	}
	e.indexMu.Unlock()

	if remaining < LowStockThreshold {
		e.logger.Warn("LOW_STOCK", zap.String("product_id", product), zap.Int("available", remaining))
		if e.metrics != nil {
			e.metrics.LowStockSignals.Inc()
		}
	}
	return true
}

// Release returns stock, decrements the flash-sale ledger (clamped at
// 0), and clears the idempotent key for a single reservation. No-op if
// the reservation id is unknown.
func (e *Engine) Release(reservationID uuid.UUID) {
	e.indexMu.Lock()
	product, ok := e.location[reservationID]
	if !ok {
		e.indexMu.Unlock()
		return
	}
	delete(e.location, reservationID)
	delete(e.expiry, reservationID)
	e.indexMu.Unlock()

	e.releaseFromProduct(product, reservationID)
}

// ReleaseByOrder releases every reservation associated with orderID.
func (e *Engine) ReleaseByOrder(orderID string) {
	e.indexMu.Lock()
	ids := make([]uuid.UUID, len(e.byOrder[orderID]))
	copy(ids, e.byOrder[orderID])
	products := make([]string, len(ids))
	for i, id := range ids {
		products[i] = e.location[id]
	}
	delete(e.byOrder, orderID)
	for _, id := range ids {
		delete(e.location, id)
		delete(e.expiry, id)
	}
	e.indexMu.Unlock()

	for i, id := range ids {
		if products[i] == "" {
			continue
		}
		e.releaseFromProduct(products[i], id)
	}
}

// releaseFromProduct performs the restore for a single known (product,
// reservationID) pair.
func (e *Engine) releaseFromProduct(product string, reservationID uuid.UUID) {
	st := e.stateFor(product)
	st.mu.Lock()
	defer st.mu.Unlock()
	r, ok := st.reservations[reservationID]
	if !ok {
		return
	}
	restore(st, r)
}

// restore applies the symmetric release algorithm to an already-locked
// productState: return stock, decrement the ledger (never below zero),
// erase the idempotent key, and drop the reservation record.
func restore(st *productState, r *reservation) {
	st.available += r.qty
	if r.customerID != "" {
		if st.ledger[r.customerID] > 0 {
			st.ledger[r.customerID] -= r.qty
			if st.ledger[r.customerID] < 0 {
				st.ledger[r.customerID] = 0
			}
		}
	}
	if r.orderID != "" {
		delete(st.idempotentKeys, r.orderID)
	}
	delete(st.reservations, r.id)
}

// ReleaseExpired sweeps every tracked reservation and releases those
// whose expiry has passed. Returns the count released.
func (e *Engine) ReleaseExpired() int {
	now := time.Now()
	e.indexMu.Lock()
	var expired []uuid.UUID
	var products []string
	for id, exp := range e.expiry {
		if !exp.After(now) {
			expired = append(expired, id)
			products = append(products, e.location[id])
		}
	}
	for _, id := range expired {
		delete(e.expiry, id)
		delete(e.location, id)
	}
	e.indexMu.Unlock()

	for i, id := range expired {
		if products[i] == "" {
			continue
		}
		e.releaseFromProduct(products[i], id)
	}
	return len(expired)
}

// CheckAvailability returns the current available stock for each of
// the requested products.
func (e *Engine) CheckAvailability(products []string) map[string]int {
	out := make(map[string]int, len(products))
	for _, p := range products {
		out[p] = e.GetStock(p)
	}
	return out
}

// GetStock returns the current available stock for a product (admin).
func (e *Engine) GetStock(product string) int {
	st := e.stateFor(product)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.available
}

// SetStock overwrites a product's available stock (admin).
func (e *Engine) SetStock(product string, qty int) {
	st := e.stateFor(product)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.available = qty
}

// BulkSet overwrites stock for every product in the map (admin).
func (e *Engine) BulkSet(stock map[string]int) {
	for product, qty := range stock {
		e.SetStock(product, qty)
	}
}

// StartSweeper launches the background TTL sweep actor. It stops when
// ctx is cancelled.
func (e *Engine) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(TTLSweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n := e.ReleaseExpired()
				if n > 0 {
					e.logger.Info("released expired reservations", zap.Int("count", n))
				}
			}
		}
	}()
}
