package cache

import (
	"testing"
	"time"

	"replenishment/internal/core"
)

// TestLRUCacheEviction tests size-based eviction
func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[string](3, time.Hour)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Set("key3", "value3")
	c.Set("key4", "value4") // evicts key1

	if _, found := c.Get("key1"); found {
		t.Error("key1 should have been evicted")
	}
	for _, key := range []string{"key2", "key3", "key4"} {
		if _, found := c.Get(key); !found {
			t.Errorf("%s should still exist", key)
		}
	}
}

func TestLRUCacheRecentlyUsedSurvives(t *testing.T) {
	c := NewLRUCache[string](2, time.Hour)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3") // evicts b, a was read more recently

	if _, found := c.Get("a"); !found {
		t.Error("a should survive")
	}
	if _, found := c.Get("b"); found {
		t.Error("b should have been evicted")
	}
}

// TestLRUCacheTTLExpiration tests time-based expiration
func TestLRUCacheTTLExpiration(t *testing.T) {
	c := NewLRUCache[string](100, 50*time.Millisecond)

	c.Set("key1", "value1")
	if _, found := c.Get("key1"); !found {
		t.Error("key1 should exist immediately")
	}

	time.Sleep(60 * time.Millisecond)

	if _, found := c.Get("key1"); found {
		t.Error("key1 should have expired")
	}
}

// TestLRUCacheCleanExpired tests the cleanup mechanism
func TestLRUCacheCleanExpired(t *testing.T) {
	c := NewLRUCache[string](100, 50*time.Millisecond)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Set("key3", "value3")

	time.Sleep(60 * time.Millisecond)

	if removed := c.CleanExpired(); removed != 3 {
		t.Errorf("Expected 3 items cleaned, got %d", removed)
	}
}

func TestLRUCacheDeletePrefix(t *testing.T) {
	c := NewLRUCache[core.ScaleSummary](10, time.Hour)

	c.Set("summary:2024-2026", core.ScaleSummary{Period: "2024-2026"})
	c.Set("summary:2021-2023", core.ScaleSummary{Period: "2021-2023"})
	c.Set("periods", core.ScaleSummary{})

	if n := c.DeletePrefix("summary:"); n != 2 {
		t.Errorf("DeletePrefix removed %d, want 2", n)
	}
	if c.Size() != 1 {
		t.Errorf("Size = %d, want 1", c.Size())
	}

	c.Purge()
	if c.Size() != 0 {
		t.Errorf("Size after purge = %d", c.Size())
	}
}

func TestLRUCacheStats(t *testing.T) {
	c := NewLRUCache[int](10, time.Hour)
	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("b")

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 || s.Entries != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestManager_CleanAll(t *testing.T) {
	m := NewManager()
	defer m.Stop()

	a := NewLRUCache[string](10, time.Nanosecond)
	b := NewLRUCache[int](10, time.Nanosecond)
	m.Register(a)
	m.Register(b)

	a.Set("x", "y")
	b.Set("x", 1)
	time.Sleep(time.Millisecond)

	if n := m.CleanAll(); n != 2 {
		t.Errorf("CleanAll removed %d, want 2", n)
	}
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := NewManager()
	m.Stop()
	m.Stop()
}

func TestManager_StartAndStop(t *testing.T) {
	m := NewManager()
	c := NewLRUCache[string](10, time.Nanosecond)
	m.Register(c)
	c.Set("x", "y")

	m.StartCleanup(5 * time.Millisecond)
	m.StartCleanup(5 * time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for c.Size() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()

	if c.Size() != 0 {
		t.Error("expired entry should have been swept")
	}
}

// BenchmarkLRUCache benchmarks a read heavy workload
func BenchmarkLRUCache(b *testing.B) {
	c := NewLRUCache[core.ScaleSummary](1000, time.Hour)
	summary := core.ScaleSummary{Period: "2024-2026", Countries: 190}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i%10 == 0 {
			c.Set("summary:2024-2026", summary)
		} else {
			c.Get("summary:2024-2026")
		}
	}
}
