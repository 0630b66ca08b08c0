package github

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// cacheEntry holds a cached API result with its expiry.
type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// Cache memoizes GitHub API reads for a short TTL. Concurrent misses for
// the same key are coalesced into one upstream call, so a burst of viewers
// landing on a popular share produces a single GitHub request per resource.
type Cache struct {
	ttl     time.Duration
	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCache creates a cache with the given entry TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Do returns the cached value for key, or calls fn once to populate it.
// Errors are not cached; a failed fetch is retried on the next call.
func (c *Cache) Do(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: another caller may have populated the
		// entry while this one waited.
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && time.Now().Before(entry.expiresAt) {
			return entry.value, nil
		}

		value, err := fn(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = cacheEntry{value: value, expiresAt: time.Now().Add(c.ttl)}
		c.mu.Unlock()
		return value, nil
	})
	return v, err
}

// Invalidate drops a single cache entry.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Sweep removes expired entries. Called periodically so long-lived
// processes don't accumulate dead keys.
func (c *Cache) Sweep() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}
