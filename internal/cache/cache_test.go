package cache_test

import (
	"testing"
	"time"

	"sealchat/internal/cache"
)

func TestTTLExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	c := cache.New[string, int](time.Minute, cache.WithClock[string, int](clock))
	c.Set("a", 1)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get = %d,%v; want 1,true", v, ok)
	}

	// At exactly the ttl the entry is still live.
	now = now.Add(time.Minute)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("entry expired at exactly ttl")
	}

	now = now.Add(time.Nanosecond)
	if _, ok := c.Get("a"); ok {
		t.Fatal("entry survived past ttl")
	}
}

func TestTTLDeleteAndPurge(t *testing.T) {
	c := cache.New[string, string](0)
	c.Set("k", "v")
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("deleted entry still present")
	}

	c.Set("x", "1")
	c.Set("y", "2")
	c.Purge()
	if _, ok := c.Get("x"); ok {
		t.Fatal("purged entry still present")
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	now := time.Unix(0, 0)
	c := cache.New[int, int](0, cache.WithClock[int, int](func() time.Time { return now }))
	c.Set(1, 10)
	now = now.Add(1000 * time.Hour)
	if _, ok := c.Get(1); !ok {
		t.Fatal("zero-ttl entry expired")
	}
}
