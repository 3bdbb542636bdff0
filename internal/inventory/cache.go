package inventory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StockCache is a cache-aside layer in front of the engine's GetStock
// admin read (CheckAvailability is not cached); TryReserve/Release
// never consult it, since the in-memory engine is the single source of
// truth.
type StockCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStockCache dials Redis and verifies connectivity.
func NewStockCache(addr string, ttl time.Duration) (*StockCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 0})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &StockCache{client: client, ttl: ttl}, nil
}

// Close releases the Redis connection.
func (c *StockCache) Close() error {
	return c.client.Close()
}

func stockKey(product string) string {
	return fmt.Sprintf("stock:%s", product)
}

// Get returns the cached stock for product, or (0, false) on a miss.
func (c *StockCache) Get(ctx context.Context, product string) (int, bool) {
	v, err := c.client.Get(ctx, stockKey(product)).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Set stores the current stock for product with the cache's TTL.
func (c *StockCache) Set(ctx context.Context, product string, available int) {
	c.client.Set(ctx, stockKey(product), strconv.Itoa(available), c.ttl)
}

// Invalidate removes product from the cache; called by CachedEngine
// after SetStock, BulkSet and a successful TryReserve made through it.
// Releases, and any mutation made directly on the Engine, do not
// invalidate, so a cached reading can be stale until its TTL expires.
func (c *StockCache) Invalidate(ctx context.Context, product string) {
	c.client.Del(ctx, stockKey(product))
}

// CachedEngine wraps an Engine with a read-through cache for GetStock,
// invalidating after the mutations it wraps (SetStock, BulkSet,
// TryReserve); every other Engine method, including the release paths
// and CheckAvailability, goes straight to the embedded Engine without
// touching the cache. Its admin-facing methods
// mirror Engine's context-less signatures so it is a drop-in
// replacement wherever internal/httpapi holds an inventory admin
// surface; the cache calls themselves use a short background context,
// matching the boundary's no-request-context-propagation stance for
// admin endpoints.
type CachedEngine struct {
	*Engine
	cache *StockCache
}

// NewCachedEngine pairs an Engine with a StockCache.
func NewCachedEngine(e *Engine, cache *StockCache) *CachedEngine {
	return &CachedEngine{Engine: e, cache: cache}
}

func cacheCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Second)
}

// GetStock reads through the cache before falling back to the engine.
func (c *CachedEngine) GetStock(product string) int {
	ctx, cancel := cacheCtx()
	defer cancel()
	if v, ok := c.cache.Get(ctx, product); ok {
		return v
	}
	v := c.Engine.GetStock(product)
	c.cache.Set(ctx, product, v)
	return v
}

// SetStock writes through the engine then invalidates the cache entry.
func (c *CachedEngine) SetStock(product string, qty int) {
	c.Engine.SetStock(product, qty)
	ctx, cancel := cacheCtx()
	defer cancel()
	c.cache.Invalidate(ctx, product)
}

// BulkSet writes through the engine for every product, invalidating
// each cache entry in turn.
func (c *CachedEngine) BulkSet(stock map[string]int) {
	c.Engine.BulkSet(stock)
	ctx, cancel := cacheCtx()
	defer cancel()
	for product := range stock {
		c.cache.Invalidate(ctx, product)
	}
}

// TryReserve delegates to the engine and invalidates the cache entry
// on success, since available stock changed.
func (c *CachedEngine) TryReserve(reservationID uuid.UUID, product string, qty int, customerID, orderID string, ttl time.Duration) bool {
	ok := c.Engine.TryReserve(reservationID, product, qty, customerID, orderID, ttl)
	if ok {
		ctx, cancel := cacheCtx()
		defer cancel()
		c.cache.Invalidate(ctx, product)
	}
	return ok
}
