// core/cache.go
package core

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ttlEntry wraps a cached value with the wall-clock time it was stored.
type ttlEntry[V any] struct {
	value    V
	storedAt time.Time
}

// TTLCache is a bounded, size-capped LRU cache with a per-cache
// time-to-live, backed by golang-lru/v2. Eviction is delegated to the
// library. Callers never receive a reference into cache-owned storage;
// Get and GetStale both return copies of V.
//
// A TTLCache is safe for concurrent use.
type TTLCache[K comparable, V any] struct {
	mu  sync.Mutex
	lru *lru.Cache[K, ttlEntry[V]]
	ttl time.Duration
}

// NewTTLCache builds a cache capped at size entries, each considered fresh
// for ttl. A ttl of zero means entries never expire on their own (eviction
// is then purely size-driven).
func NewTTLCache[K comparable, V any](size int, ttl time.Duration) (*TTLCache[K, V], error) {
	if size <= 0 {
		size = 1
	}
	inner, err := lru.New[K, ttlEntry[V]](size)
	if err != nil {
		return nil, err
	}
	return &TTLCache[K, V]{lru: inner, ttl: ttl}, nil
}

// Get returns the cached value for key and whether it is both present and
// still fresh. A stale-but-present entry is reported as a miss by Get; use
// GetStale to retrieve it anyway.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ent, ok := c.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if c.ttl > 0 && time.Since(ent.storedAt) > c.ttl {
		var zero V
		return zero, false
	}
	return ent.value, true
}

// GetStale returns the cached value for key regardless of freshness, along
// with whether it is present and whether it is fresh. Used for the
// stale-on-failure degradation path: on an upstream failure, a caller can
// fall back to a stale value instead of propagating the error.
func (c *TTLCache[K, V]) GetStale(key K) (value V, present bool, fresh bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ent, ok := c.lru.Get(key)
	if !ok {
		var zero V
		return zero, false, false
	}
	fresh = c.ttl == 0 || time.Since(ent.storedAt) <= c.ttl
	return ent.value, true, fresh
}

// Add stores value under key, evicting the least recently used entry if the
// cache is at capacity. The stored timestamp is reset to now, even if the
// key was already present.
func (c *TTLCache[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, ttlEntry[V]{value: value, storedAt: time.Now()})
}

// Len reports the number of entries currently held, fresh or stale.
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge empties the cache.
func (c *TTLCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
