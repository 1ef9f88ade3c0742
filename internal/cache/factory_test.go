package cache

import "testing"

func TestNewFallsBackToMemoryCacheWhenURLEmpty(t *testing.T) {
	c := New("")
	if _, ok := c.(*MemoryCache); !ok {
		t.Fatalf("expected a memory cache fallback, got %T", c)
	}
}

func TestNewFallsBackToMemoryCacheOnInvalidURL(t *testing.T) {
	c := New("not-a-redis-url")
	if _, ok := c.(*MemoryCache); !ok {
		t.Fatalf("expected a memory cache fallback for an unparsable url, got %T", c)
	}
}
