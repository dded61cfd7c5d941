package storage

import (
	"context"
	"sync"
	"time"
)

const (
	sweepThreshold = 10000
	sweepInterval  = time.Minute
)

// MemoryCache is the single-process stand-in for RedisAdapter's idempotency keys.
type MemoryCache struct {
	mu        sync.Mutex
	keys      map[string]time.Time // key -> expiry
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		keys: make(map[string]time.Time),
		ttl:  idempotencyKeyTTL,
		now:  time.Now,
	}
}

func (c *MemoryCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if expiry, ok := c.keys[key]; ok && now.Before(expiry) {
		return false, nil
	}
	c.keys[key] = now.Add(c.ttl)
	c.evictExpired(now)
	return true, nil
}

func (c *MemoryCache) ReleaseIdempotency(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

// evictExpired drops stale keys once the map grows large, at most once per
// sweepInterval.
func (c *MemoryCache) evictExpired(now time.Time) {
	if len(c.keys) < sweepThreshold || now.Sub(c.lastSweep) < sweepInterval {
		return
	}
	c.lastSweep = now
	for k, expiry := range c.keys {
		if !now.Before(expiry) {
			delete(c.keys, k)
		}
	}
}
