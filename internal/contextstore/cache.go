package contextstore

import (
	"sync"
	"time"

	"casegov/internal/record"
)

// cacheEntry is immutable once stored; replaced wholesale on refresh so
// readers never observe a half-updated value.
type cacheEntry struct {
	key       string
	value     record.Record
	fetchedAt time.Time
	ttl       time.Duration
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.Sub(e.fetchedAt) >= e.ttl
}

// memoryCache is the in-process tier. Only the context store mutates it.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*cacheEntry)}
}

// get returns the cached record if present and fresh. Expired entries are
// reported as misses; they are evicted lazily on the next set or invalidate.
func (c *memoryCache) get(key string, now time.Time) (record.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || entry.expired(now) {
		return nil, false
	}
	return entry.value, true
}

func (c *memoryCache) set(key string, value record.Record, now time.Time, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{key: key, value: value, fetchedAt: now, ttl: ttl}
}

func (c *memoryCache) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func cacheKey(entityType record.EntityType, id string) string {
	return string(entityType) + ":" + id
}
