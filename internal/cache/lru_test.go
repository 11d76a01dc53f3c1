package cache

import (
	"testing"
	"time"
)

type countingObserver struct {
	hits, misses int
}

func (o *countingObserver) CacheHit(string)  { o.hits++ }
func (o *countingObserver) CacheMiss(string) { o.misses++ }

func TestLRUCache_GetSet(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Fatal("Get() on empty cache should miss")
	}
	c.Set("a", 1)
	c.Set("b", 2)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v; want 1, true", v, ok)
	}

	// "b" is now least recently used and gets evicted.
	c.Set("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Error("Get(b) should miss after eviction")
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}

	c.Set("a", 10)
	if v, _ := c.Get("a"); v != 10 {
		t.Errorf("Get(a) after overwrite = %v, want 10", v)
	}

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("Get(a) should miss after Delete")
	}
}

func TestLRUCache_TTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Second)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("k2", "v2")
	now = now.Add(2 * time.Second)

	if _, ok := c.Get("k"); ok {
		t.Error("Get() should miss after TTL")
	}
	if removed := c.CleanExpired(); removed != 1 {
		t.Errorf("CleanExpired() = %d, want 1", removed)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestLRUCache_Observer(t *testing.T) {
	obs := &countingObserver{}
	c := NewLRUCache[int](4, time.Minute).Observe("project", obs)

	c.Get("x")
	c.Set("x", 1)
	c.Get("x")
	c.Get("x")

	if obs.hits != 2 || obs.misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 2/1", obs.hits, obs.misses)
	}
}
