package engine

import (
	"sync"
	"time"
)

// Cache is an explicit keyed blob cache with per-entry TTL, injected into
// the session rather than reached for as process-wide state. The engine
// uses it to keep the last good assigned-incident list available offline.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Clear(key string)
}

// memoryCache is the in-process Cache implementation. Expiry is checked
// lazily on Get; there is no background sweeper to leak past teardown.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	nowFunc func() time.Time
}

type cacheEntry struct {
	value     any
	expiresAt time.Time // zero means no expiry
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() Cache {
	return &memoryCache{
		entries: make(map[string]cacheEntry),
		nowFunc: time.Now,
	}
}

func (c *memoryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if !e.expiresAt.IsZero() && c.nowFunc().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}

	return e.value, true
}

func (c *memoryCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := cacheEntry{value: value}
	if ttl > 0 {
		e.expiresAt = c.nowFunc().Add(ttl)
	}

	c.entries[key] = e
}

func (c *memoryCache) Clear(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}
