package tokens

import (
	"context"
	"sync"
	"time"
)

type (
	// MemoryCache is an in-process Cache with a fixed TTL per entry
	MemoryCache struct {
		entries map[string]entry
		clock   Clock
		ttl     time.Duration
		mu      sync.Mutex
	}

	entry struct {
		expiresAt time.Time
		flowName  string
	}
)

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an in-process cache using the wall clock
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return NewMemoryCacheWithClock(ttl, time.Now)
}

// NewMemoryCacheWithClock creates an in-process cache with the provided
// clock
func NewMemoryCacheWithClock(ttl time.Duration, clock Clock) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries: map[string]entry{},
		clock:   clock,
		ttl:     ttl,
	}
}

// Remember maps token to flowName, replacing any previous mapping. Empty
// arguments are ignored. Expired entries are swept on every write
func (c *MemoryCache) Remember(
	_ context.Context, token, flowName string,
) error {
	if token == "" || flowName == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	c.sweep(now)
	c.entries[token] = entry{
		flowName:  flowName,
		expiresAt: now.Add(c.ttl),
	}
	return nil
}

// Resolve returns the flow name remembered for token. An expired entry is
// removed and reported as absent
func (c *MemoryCache) Resolve(
	_ context.Context, token string,
) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[token]
	if !ok {
		return "", false, nil
	}
	if !c.clock().Before(e.expiresAt) {
		delete(c.entries, token)
		return "", false, nil
	}
	return e.flowName, true, nil
}

// Len returns the number of entries held, including any not yet swept
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) sweep(now time.Time) {
	for token, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, token)
		}
	}
}
