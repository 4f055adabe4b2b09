package cache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *clock) {
	clk := &clock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](size, ttl)
	c.now = clk.now
	return c, clk
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a")
	}
	c.Set("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Errorf("a = %q, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("size = %d, want 2", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	c, clk := newTestCache(10, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")

	clk.t = clk.t.Add(30 * time.Second)
	c.Set("b", "2-refreshed")

	clk.t = clk.t.Add(45 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("a should be expired")
	}
	if v, ok := c.Get("b"); !ok || v != "2-refreshed" {
		t.Errorf("b = %q, %v", v, ok)
	}

	c.Set("x", "x")
	clk.t = clk.t.Add(2 * time.Minute)
	if n := c.CleanExpired(); n != 2 {
		t.Errorf("cleaned %d, want 2", n)
	}
	if c.Size() != 0 {
		t.Errorf("size = %d, want 0", c.Size())
	}
}

func TestDeletePrefix(t *testing.T) {
	c, _ := newTestCache(10, time.Minute)
	c.Set("alice|summary", "s")
	c.Set("alice|trend", "t")
	c.Set("alicia|summary", "s")

	if n := c.DeletePrefix("alice|"); n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	if _, ok := c.Get("alicia|summary"); !ok {
		t.Error("other user's entry should survive")
	}
	c.Delete("alicia|summary")
	if c.Size() != 0 {
		t.Errorf("size = %d, want 0", c.Size())
	}
}

func TestManagerStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewLRUCache[int](4, time.Nanosecond)
	c.Set("a", 1)

	m := NewManager()
	m.Register(c)
	m.StartCleanup(context.Background(), time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for c.Size() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	m.Stop()
	m.Stop()

	if c.Size() != 0 {
		t.Errorf("expired entry not cleaned, size = %d", c.Size())
	}
}
