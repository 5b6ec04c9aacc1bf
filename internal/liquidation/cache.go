package liquidation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfolio/risk-engine/internal/model"
)

// DefaultTTL is how long a heatmap stays fresh. Consumers re-polling within
// the window observe the same cached levels; the current-price field is
// refreshed per call by the estimator.
const DefaultTTL = 60 * time.Second

// Cache stores heatmaps keyed by symbol only — never (symbol, price) — so
// concurrent callers within the TTL share one set of levels.
type Cache interface {
	Get(ctx context.Context, symbol string) (*model.LiquidationHeatmapData, bool)
	Put(ctx context.Context, symbol string, hm *model.LiquidationHeatmapData)
}

// MemoryCache is the default single-instance TTL cache. The clock is
// injectable for expiry tests.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	hm       model.LiquidationHeatmapData
	storedAt time.Time
}

// NewMemoryCache creates an in-memory cache; ttl <= 0 means DefaultTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// NewMemoryCacheWithClock creates a cache with an injected clock.
func NewMemoryCacheWithClock(ttl time.Duration, now func() time.Time) *MemoryCache {
	c := NewMemoryCache(ttl)
	c.now = now
	return c
}

// Get returns a copy of the cached heatmap if it is still within TTL.
func (c *MemoryCache) Get(_ context.Context, symbol string) (*model.LiquidationHeatmapData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[symbol]
	if !ok || c.now().Sub(e.storedAt) > c.ttl {
		return nil, false
	}
	hm := e.hm
	hm.Levels = append([]model.LiquidationLevel(nil), e.hm.Levels...)
	return &hm, true
}

// Put stores a copy of the heatmap under symbol.
func (c *MemoryCache) Put(_ context.Context, symbol string, hm *model.LiquidationHeatmapData) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := *hm
	stored.Levels = append([]model.LiquidationLevel(nil), hm.Levels...)
	c.entries[symbol] = memoryEntry{hm: stored, storedAt: c.now()}
}

// RedisCache shares heatmaps across instances through Redis with the same
// TTL semantics, expiry handled server-side. Cache errors degrade to
// misses; the estimator simply recomputes.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache creates a Redis-backed heatmap cache; ttl <= 0 means
// DefaultTTL.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, symbol string) (*model.LiquidationHeatmapData, bool) {
	data, err := c.rdb.Get(ctx, heatmapKey(symbol)).Bytes()
	if err != nil {
		return nil, false
	}
	var hm model.LiquidationHeatmapData
	if json.Unmarshal(data, &hm) != nil {
		return nil, false
	}
	return &hm, true
}

func (c *RedisCache) Put(ctx context.Context, symbol string, hm *model.LiquidationHeatmapData) {
	if data, err := json.Marshal(hm); err == nil {
		c.rdb.Set(ctx, heatmapKey(symbol), data, c.ttl)
	}
}

func heatmapKey(symbol string) string { return fmt.Sprintf("heatmap:%s", symbol) }
