// Package cache provides an explicitly owned, clock-driven TTL cache.
//
// A cache is constructed once per process and passed to the components that
// need it; there is no package-level instance.
package cache

import (
	"sync"
	"time"

	"github.com/Veraticus/shopcompare/internal/clock"
)

// DefaultTTL applies when a cache is built with a zero TTL.
const DefaultTTL = 5 * time.Minute

// cacheEntry holds a cached value and its expiry.
type cacheEntry[V any] struct {
	expiry time.Time
	value  V
}

// TTLCache provides thread-safe caching with per-entry expiry.
type TTLCache[V any] struct {
	clock    clock.Clock
	entries  map[string]cacheEntry[V]
	janitor  clock.Timer
	ttl      time.Duration
	interval time.Duration
	mu       sync.RWMutex
	closed   bool
}

// New creates a cache with the given TTL. Expired entries are swept every
// TTL; Close stops the sweeping.
func New[V any](ttl time.Duration, clk clock.Clock) *TTLCache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.NewReal()
	}

	c := &TTLCache[V]{
		clock:    clk,
		entries:  make(map[string]cacheEntry[V]),
		ttl:      ttl,
		interval: ttl,
	}

	c.mu.Lock()
	c.janitor = clk.AfterFunc(c.interval, c.sweepAndReschedule)
	c.mu.Unlock()

	return c
}

// TTL returns the configured time-to-live.
func (c *TTLCache[V]) TTL() time.Duration {
	return c.ttl
}

// Get retrieves a value if it exists and hasn't expired.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	entry, exists := c.entries[key]
	if !exists {
		return zero, false
	}

	if !c.clock.Now().Before(entry.expiry) {
		return zero, false
	}

	return entry.value, true
}

// Set stores a value for one TTL.
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry[V]{
		value:  value,
		expiry: c.clock.Now().Add(c.ttl),
	}
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Errors are not cached.
func (c *TTLCache[V]) GetOrLoad(key string, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Invalidate removes a single key.
func (c *TTLCache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries from the cache.
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry[V])
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes expired entries and returns how many were dropped.
func (c *TTLCache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for key, entry := range c.entries {
		if !now.Before(entry.expiry) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *TTLCache[V]) sweepAndReschedule() {
	c.Sweep()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.janitor = c.clock.AfterFunc(c.interval, c.sweepAndReschedule)
}

// Close stops the periodic sweep.
func (c *TTLCache[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.janitor != nil {
		c.janitor.Stop()
	}
}
