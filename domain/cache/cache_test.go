package cache

import (
	"testing"
	"time"
)

func TestGetSetRoundTrip(t *testing.T) {
	c := New[string](10)
	c.Set("k", "v", time.Minute)
	v, ok := c.Get("k")
	if !ok || v != "v" {
		t.Fatalf("got %q, %v", v, ok)
	}
}

func TestExpiredEntryNeverReturned(t *testing.T) {
	c := New[string](10)
	now := time.Now()
	c.SetClock(func() time.Time { return now })
	c.Set("k", "v", time.Second)

	c.SetClock(func() time.Time { return now.Add(2 * time.Second) })
	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry must not be returned")
	}
	if c.Len() != 0 {
		t.Fatal("expired entry must be deleted on read")
	}
}

func TestCacheBound(t *testing.T) {
	c := New[int](1000)
	for i := 0; i < 1001; i++ {
		c.Set(string(rune(i)), i, time.Hour)
	}
	if c.Len() > 1000 {
		t.Fatalf("cache size %d exceeds bound", c.Len())
	}
}

func TestEvictsOldestWhenOverCapacityAndNotExpired(t *testing.T) {
	c := New[int](2)
	c.Set("a", 1, time.Hour)
	c.Set("b", 2, time.Hour)
	c.Set("c", 3, time.Hour)

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("b should remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should remain")
	}
}

func TestInvalidatePrefix(t *testing.T) {
	c := New[string](10)
	c.Set("team1:slug:GET:/a", "x", time.Hour)
	c.Set("team1:slug:GET:/b", "y", time.Hour)
	c.Set("team2:slug:GET:/a", "z", time.Hour)

	c.InvalidatePrefix("team1:slug:")

	if _, ok := c.Get("team1:slug:GET:/a"); ok {
		t.Error("should have been invalidated")
	}
	if _, ok := c.Get("team2:slug:GET:/a"); !ok {
		t.Error("different scope must not be affected")
	}
}

func TestTenantIsolationDistinctKeys(t *testing.T) {
	c := New[string](10)
	c.Set("scopeA:slug:GET:/p:bodyhash", "a", time.Hour)
	c.Set("scopeB:slug:GET:/p:bodyhash", "b", time.Hour)
	va, _ := c.Get("scopeA:slug:GET:/p:bodyhash")
	vb, _ := c.Get("scopeB:slug:GET:/p:bodyhash")
	if va == vb {
		t.Fatal("distinct scopes must not collide")
	}
}
