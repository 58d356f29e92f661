package report

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// Cache memoizes report reads. A miss is (nil, nil) and cache outages
// degrade to misses.
type Cache interface {
	Get(ctx context.Context, id string) (*Report, error)
	Set(ctx context.Context, report *Report, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

const cacheKeyPrefix = "report:"

// RedisCache is a redis-backed Cache storing reports as JSON behind a
// circuit breaker.
type RedisCache struct {
	rdb     *redis.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewRedisCache creates a new redis-backed report cache.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "report-cache",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &RedisCache{rdb: rdb, breaker: breaker}
}

// Get retrieves a cached report. Returns (nil, nil) on miss or outage.
func (c *RedisCache) Get(ctx context.Context, id string) (*Report, error) {
	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.rdb.Get(ctx, cacheKeyPrefix+id).Bytes()
	})
	if err != nil {
		return nil, nil
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		_ = c.Delete(ctx, id)
		return nil, nil
	}
	return &report, nil
}

// Set stores a report with the given TTL.
func (c *RedisCache) Set(ctx context.Context, report *Report, ttl time.Duration) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	_, err = c.breaker.Execute(func() ([]byte, error) {
		return nil, c.rdb.Set(ctx, cacheKeyPrefix+report.ID, data, ttl).Err()
	})
	return err
}

// Delete removes a cached report.
func (c *RedisCache) Delete(ctx context.Context, id string) error {
	_, err := c.breaker.Execute(func() ([]byte, error) {
		return nil, c.rdb.Del(ctx, cacheKeyPrefix+id).Err()
	})
	return err
}

// MemoryCache is an in-memory Cache for tests and local development.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	report    *Report
	expiresAt time.Time
}

// NewMemoryCache creates a new in-memory report cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Get retrieves a cached report, honoring the entry TTL.
func (c *MemoryCache) Get(_ context.Context, id string) (*Report, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	return copyReport(entry.report), nil
}

// Set stores a report with the given TTL.
func (c *MemoryCache) Set(_ context.Context, report *Report, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[report.ID] = memoryEntry{report: copyReport(report), expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete removes a cached report.
func (c *MemoryCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
	return nil
}

// Ensure implementations satisfy Cache.
var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = (*MemoryCache)(nil)
)
