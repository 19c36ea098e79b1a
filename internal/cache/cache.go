// Package cache provides an in-memory TTL cache with eviction callbacks.
package cache

import (
	"sync"
	"time"
)

// Entry represents a cached value
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// IsExpired returns true if the entry has expired
func (e *Entry[V]) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// EvictFunc is called whenever an entry leaves the cache: on expiry,
// invalidation, or replacement by Set. It runs outside the cache lock.
type EvictFunc[V any] func(key string, value V)

// Option configures a MemoryCache.
type Option[V any] func(*MemoryCache[V])

// WithCleanupInterval sets how often expired entries are swept.
func WithCleanupInterval[V any](d time.Duration) Option[V] {
	return func(c *MemoryCache[V]) {
		if d > 0 {
			c.cleanupInterval = d
		}
	}
}

// WithOnEvict registers the eviction callback.
func WithOnEvict[V any](fn EvictFunc[V]) Option[V] {
	return func(c *MemoryCache[V]) { c.onEvict = fn }
}

// MemoryCache is an in-memory cache implementation with TTL support
type MemoryCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*Entry[V]
	onEvict EvictFunc[V]

	// For background cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once // Ensures Stop() is idempotent
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache[V any](opts ...Option[V]) *MemoryCache[V] {
	c := &MemoryCache[V]{
		entries:         make(map[string]*Entry[V]),
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.cleanupLoop()
	return c
}

// Get retrieves a value from the cache
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !exists {
		return zero, false
	}

	if entry.IsExpired() {
		// Entry has completely expired, remove it
		c.expire(key, entry)
		return zero, false
	}

	return entry.Value, true
}

// Set stores a value in the cache with the given TTL.
// A non-positive TTL keeps the entry until it is invalidated.
func (c *MemoryCache[V]) Set(key string, value V, ttl time.Duration) {
	entry := &Entry[V]{Value: value}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl)
	} else {
		entry.ExpiresAt = time.Unix(1<<62, 0)
	}

	c.mu.Lock()
	old, replaced := c.entries[key]
	c.entries[key] = entry
	c.mu.Unlock()

	if replaced {
		c.evict(key, old.Value)
	}
}

// Invalidate removes an entry from the cache
func (c *MemoryCache[V]) Invalidate(key string) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()

	if ok {
		c.evict(key, entry.Value)
	}
}

// InvalidateAll removes all entries from the cache
func (c *MemoryCache[V]) InvalidateAll() {
	c.mu.Lock()
	old := c.entries
	c.entries = make(map[string]*Entry[V])
	c.mu.Unlock()

	for key, entry := range old {
		c.evict(key, entry.Value)
	}
}

// expire removes key only if it still maps to entry, so a concurrent Set wins.
func (c *MemoryCache[V]) expire(key string, entry *Entry[V]) {
	c.mu.Lock()
	current, ok := c.entries[key]
	if ok && current == entry {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if ok && current == entry {
		c.evict(key, entry.Value)
	}
}

func (c *MemoryCache[V]) evict(key string, value V) {
	if c.onEvict != nil {
		c.onEvict(key, value)
	}
}

// cleanupLoop periodically removes expired entries
func (c *MemoryCache[V]) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

// cleanup removes all expired entries
func (c *MemoryCache[V]) cleanup() {
	now := time.Now()
	expired := make(map[string]V)

	c.mu.Lock()
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			expired[key] = entry.Value
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	for key, value := range expired {
		c.evict(key, value)
	}
}

// Stop stops the background cleanup goroutine
// Safe to call multiple times
func (c *MemoryCache[V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
}

// Oldest returns the key that expires first. With a single TTL that is the
// entry set least recently.
func (c *MemoryCache[V]) Oldest() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var (
		key   string
		first time.Time
		found bool
	)
	for k, e := range c.entries {
		if !found || e.ExpiresAt.Before(first) {
			key, first, found = k, e.ExpiresAt, true
		}
	}
	return key, found
}

// Keys returns the keys currently stored, expired or not.
func (c *MemoryCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of entries in the cache (for testing)
func (c *MemoryCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
