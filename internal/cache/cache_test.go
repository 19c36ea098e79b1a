package cache

import (
	"sync"
	"testing"
	"time"
)

func TestMemoryCacheBasic(t *testing.T) {
	c := NewMemoryCache[string]()
	defer c.Stop()

	// Initially empty
	_, found := c.Get("test")
	if found {
		t.Error("expected cache miss for non-existent key")
	}

	c.Set("test", "snapshot", time.Minute)

	result, found := c.Get("test")
	if !found {
		t.Error("expected cache hit")
	}
	if result != "snapshot" {
		t.Errorf("unexpected value: %v", result)
	}
}

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemoryCache[int]()
	defer c.Stop()

	c.Set("short", 1, 50*time.Millisecond)

	// Immediately available
	if _, found := c.Get("short"); !found {
		t.Error("expected cache hit immediately after set")
	}

	// Wait for expiration
	time.Sleep(100 * time.Millisecond)

	if _, found := c.Get("short"); found {
		t.Error("expected cache miss after TTL expired")
	}
}

func TestMemoryCacheNoTTL(t *testing.T) {
	c := NewMemoryCache[int]()
	defer c.Stop()

	c.Set("forever", 1, 0)
	if _, found := c.Get("forever"); !found {
		t.Error("expected entry without TTL to be kept")
	}
}

func TestMemoryCacheInvalidate(t *testing.T) {
	c := NewMemoryCache[int]()
	defer c.Stop()

	c.Set("test1", 1, time.Minute)
	c.Set("test2", 2, time.Minute)

	c.Invalidate("test1")

	if _, found := c.Get("test1"); found {
		t.Error("expected test1 to be invalidated")
	}
	if _, found := c.Get("test2"); !found {
		t.Error("expected test2 to still exist")
	}
}

func TestMemoryCacheInvalidateAll(t *testing.T) {
	c := NewMemoryCache[int]()
	defer c.Stop()

	c.Set("test1", 1, time.Minute)
	c.Set("test2", 2, time.Minute)
	c.Set("test3", 3, time.Minute)

	if c.Len() != 3 {
		t.Errorf("expected 3 entries, got %d", c.Len())
	}

	c.InvalidateAll()

	if c.Len() != 0 {
		t.Errorf("expected 0 entries after InvalidateAll, got %d", c.Len())
	}
}

type evictLog struct {
	mu   sync.Mutex
	keys []string
}

func (l *evictLog) add(key string, _ int) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
}

func (l *evictLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

func TestMemoryCacheOnEvict(t *testing.T) {
	log := &evictLog{}
	c := NewMemoryCache(WithOnEvict[int](log.add))
	defer c.Stop()

	c.Set("a", 1, time.Minute)
	c.Set("a", 2, time.Minute) // replacement evicts the old value
	if log.len() != 1 {
		t.Fatalf("expected 1 eviction after replace, got %d", log.len())
	}

	c.Set("b", 3, time.Minute)
	c.Invalidate("b")
	c.Invalidate("missing")
	if log.len() != 2 {
		t.Fatalf("expected 2 evictions after invalidate, got %d", log.len())
	}

	c.InvalidateAll()
	if log.len() != 3 {
		t.Fatalf("expected 3 evictions after InvalidateAll, got %d", log.len())
	}
}

func TestMemoryCacheCleanupEvicts(t *testing.T) {
	log := &evictLog{}
	c := NewMemoryCache(
		WithOnEvict[int](log.add),
		WithCleanupInterval[int](10*time.Millisecond),
	)
	defer c.Stop()

	c.Set("short", 1, 20*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for log.len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if log.len() != 1 {
		t.Errorf("expected background cleanup to evict, got %d evictions", log.len())
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d", c.Len())
	}
}

func TestEntryIsExpired(t *testing.T) {
	now := time.Now()

	entry := &Entry[int]{ExpiresAt: now.Add(time.Minute)}
	if entry.IsExpired() {
		t.Error("expected entry to not be expired")
	}

	entry.ExpiresAt = now.Add(-time.Minute)
	if !entry.IsExpired() {
		t.Error("expected entry to be expired")
	}
}

func TestMemoryCacheKeys(t *testing.T) {
	c := NewMemoryCache[int]()
	defer c.Stop()

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	if len(c.Keys()) != 2 {
		t.Errorf("expected 2 keys, got %v", c.Keys())
	}
}

func TestMemoryCacheStopIdempotent(t *testing.T) {
	c := NewMemoryCache[int]()

	// Calling Stop() multiple times should not panic
	c.Stop()
	c.Stop()
	c.Stop()
}

func TestMemoryCacheOldest(t *testing.T) {
	c := NewMemoryCache[int]()
	defer c.Stop()

	if _, ok := c.Oldest(); ok {
		t.Error("expected no oldest key in an empty cache")
	}

	c.Set("late", 1, time.Hour)
	c.Set("soon", 2, time.Minute)
	c.Set("forever", 3, 0)

	if key, ok := c.Oldest(); !ok || key != "soon" {
		t.Errorf("Oldest() = %q, %v; want soon", key, ok)
	}
}
