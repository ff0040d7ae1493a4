package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/store-inventory/internal/port"
)

// MemoryCache is the single-process stand-in for RedisAdapter.
type MemoryCache struct {
	mu   sync.Mutex
	keys map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

var _ port.CacheRepository = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		keys: make(map[string]time.Time),
		ttl:  idempotencyKeyTTL,
		now:  time.Now,
	}
}

func (c *MemoryCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if expires, ok := c.keys[key]; ok && now.Before(expires) {
		return false, nil
	}
	c.keys[key] = now.Add(c.ttl)
	return true, nil
}

func (c *MemoryCache) ReleaseIdempotency(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.keys, key)
	return nil
}
