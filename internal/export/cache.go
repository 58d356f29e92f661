package export

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// Cache memoizes terminal-state job lookups. A miss is (nil, nil); callers
// fall through to the store. Implementations must treat their own outages
// as misses so the cache can never take down a read path.
type Cache interface {
	Get(ctx context.Context, id string) (*Job, error)
	Set(ctx context.Context, job *Job, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

const cacheKeyPrefix = "export:job:"

// RedisCache is a redis-backed Cache storing jobs as JSON. All operations
// run through a circuit breaker: when redis is down the breaker opens and
// reads degrade to cache misses instead of piling up timeouts.
type RedisCache struct {
	rdb     *redis.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewRedisCache creates a new redis-backed job cache.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "export-cache",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &RedisCache{rdb: rdb, breaker: breaker}
}

// Get retrieves a cached job. Returns (nil, nil) on miss or when the
// breaker is open.
func (c *RedisCache) Get(ctx context.Context, id string) (*Job, error) {
	data, err := c.breaker.Execute(func() ([]byte, error) {
		return c.rdb.Get(ctx, cacheKeyPrefix+id).Bytes()
	})
	if err != nil {
		if errors.Is(err, redis.Nil) ||
			errors.Is(err, gobreaker.ErrOpenState) ||
			errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, nil
		}
		return nil, nil // degrade redis errors to a miss
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		// A corrupt entry is unreadable; drop it and miss.
		_ = c.Delete(ctx, id)
		return nil, nil
	}
	return &job, nil
}

// Set stores a job with the given TTL.
func (c *RedisCache) Set(ctx context.Context, job *Job, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = c.breaker.Execute(func() ([]byte, error) {
		return nil, c.rdb.Set(ctx, cacheKeyPrefix+job.ID, data, ttl).Err()
	})
	return err
}

// Delete removes a cached job.
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
	job       *Job
	expiresAt time.Time
}

// NewMemoryCache creates a new in-memory job cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Get retrieves a cached job, honoring the entry TTL.
func (c *MemoryCache) Get(_ context.Context, id string) (*Job, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	return copyJob(entry.job), nil
}

// Set stores a job with the given TTL.
func (c *MemoryCache) Set(_ context.Context, job *Job, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[job.ID] = memoryEntry{job: copyJob(job), expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete removes a cached job.
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
