package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mini.Close)

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCache(client), mini
}

func TestCache_GetSet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var got string
	if err := c.Get(ctx, "missing", &got); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
	if err := c.Set(ctx, "k", "paid", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Get(ctx, "k", &got); err != nil || got != "paid" {
		t.Fatalf("Get = %q, %v", got, err)
	}
}

func TestCache_IncrByFloat(t *testing.T) {
	c, mini := newTestCache(t)
	ctx := context.Background()

	if v, err := c.GetFloat(ctx, "usage"); err != nil || v != 0 {
		t.Fatalf("GetFloat on missing key = %v, %v", v, err)
	}
	if _, err := c.IncrByFloat(ctx, "usage", 0.5, time.Hour); err != nil {
		t.Fatalf("IncrByFloat: %v", err)
	}
	v, err := c.IncrByFloat(ctx, "usage", 1.25, time.Hour)
	if err != nil {
		t.Fatalf("IncrByFloat: %v", err)
	}
	if v != 1.75 {
		t.Fatalf("counter = %v, want 1.75", v)
	}
	if got, _ := c.GetFloat(ctx, "usage"); got != 1.75 {
		t.Fatalf("GetFloat = %v", got)
	}
	if ttl := mini.TTL("usage"); ttl != time.Hour {
		t.Fatalf("ttl = %s", ttl)
	}
}

func TestCache_IncrWindow(t *testing.T) {
	c, mini := newTestCache(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := c.IncrWindow(ctx, "rl", time.Second)
		if err != nil || n != i {
			t.Fatalf("hit %d: n=%d err=%v", i, n, err)
		}
	}
	mini.FastForward(2 * time.Second)
	if n, _ := c.IncrWindow(ctx, "rl", time.Second); n != 1 {
		t.Fatalf("window did not reset, n=%d", n)
	}
}

func TestCache_Unreachable(t *testing.T) {
	c, mini := newTestCache(t)
	mini.Close()

	if _, err := c.GetFloat(context.Background(), "usage"); err == nil {
		t.Fatal("expected error from closed server")
	}
}
