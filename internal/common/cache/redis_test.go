package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("NewRedisCacheWithClient: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCacheBasicOps(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "v" {
		t.Fatalf("Get = %q, want %q", got, "v")
	}

	// Missing keys come back empty without an error.
	got, err = c.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get missing: %v", err)
	}
	if got != "" {
		t.Fatalf("Get missing = %q, want empty", got)
	}

	n, err := c.Exists(ctx, "k", "missing")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if n != 1 {
		t.Fatalf("Exists = %d, want 1", n)
	}

	if err := c.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if mr.Exists("k") {
		t.Fatal("key still present after Del")
	}
}

func TestRedisCacheIncrAndExpire(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := c.Incr(ctx, "counter")
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if n != i {
			t.Fatalf("Incr = %d, want %d", n, i)
		}
	}
	n, err := c.IncrBy(ctx, "counter", 7)
	if err != nil {
		t.Fatalf("IncrBy: %v", err)
	}
	if n != 10 {
		t.Fatalf("IncrBy = %d, want 10", n)
	}

	if err := c.Expire(ctx, "counter", time.Minute); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	ttl, err := c.TTL(ctx, "counter")
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 {
		t.Fatalf("TTL = %v, want positive", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if mr.Exists("counter") {
		t.Fatal("counter survived its TTL")
	}
}

func TestRedisCacheLock(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	ok, err := c.TryLock(ctx, "lock:sub:1", time.Minute)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if !ok {
		t.Fatal("first TryLock should succeed")
	}

	ok, err = c.TryLock(ctx, "lock:sub:1", time.Minute)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if ok {
		t.Fatal("second TryLock should fail while held")
	}

	if err := c.Unlock(ctx, "lock:sub:1"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	ok, err = c.TryLock(ctx, "lock:sub:1", time.Minute)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if !ok {
		t.Fatal("TryLock after Unlock should succeed")
	}
}

type cachedThing struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestGetWithCached(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) (*cachedThing, error) {
		calls++
		return &cachedThing{ID: 42, Name: "two sum"}, nil
	}
	isEmpty := func(v *cachedThing) bool { return v == nil }
	marshal := func(v *cachedThing) string {
		b, _ := json.Marshal(v)
		return string(b)
	}
	unmarshal := func(s string) (*cachedThing, error) {
		var v cachedThing
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, err
		}
		return &v, nil
	}

	for i := 0; i < 3; i++ {
		got, err := GetWithCached(ctx, c, "thing:42", time.Hour, time.Minute, isEmpty, marshal, unmarshal, fetch)
		if err != nil {
			t.Fatalf("GetWithCached: %v", err)
		}
		if got == nil || got.ID != 42 || got.Name != "two sum" {
			t.Fatalf("GetWithCached = %+v", got)
		}
	}
	if calls != 1 {
		t.Fatalf("fetch called %d times, want 1", calls)
	}
}

func TestGetWithCachedNullCaching(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) (*cachedThing, error) {
		calls++
		return nil, nil
	}
	isEmpty := func(v *cachedThing) bool { return v == nil }
	marshal := func(v *cachedThing) string { return "" }
	unmarshal := func(s string) (*cachedThing, error) { return nil, errors.New("unused") }

	for i := 0; i < 3; i++ {
		got, err := GetWithCached(ctx, c, "thing:404", time.Hour, time.Minute, isEmpty, marshal, unmarshal, fetch)
		if err != nil {
			t.Fatalf("GetWithCached: %v", err)
		}
		if got != nil {
			t.Fatalf("GetWithCached = %+v, want nil", got)
		}
	}
	if calls != 1 {
		t.Fatalf("fetch called %d times, want 1 (null value should be cached)", calls)
	}
}

func TestUpdateCachedInvalidates(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "thing:42", "stale", time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	err := UpdateCached(ctx, c, "thing:42", func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("UpdateCached: %v", err)
	}
	if mr.Exists("thing:42") {
		t.Fatal("cache entry should be invalidated after update")
	}

	// A failed update must leave the cache alone.
	if err := c.Set(ctx, "thing:43", "kept", time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	wantErr := errors.New("db down")
	err = UpdateCached(ctx, c, "thing:43", func(ctx context.Context) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("UpdateCached err = %v, want %v", err, wantErr)
	}
	if !mr.Exists("thing:43") {
		t.Fatal("cache entry should survive a failed update")
	}
}

func TestJitterTTL(t *testing.T) {
	base := 100 * time.Second
	for i := 0; i < 50; i++ {
		got := JitterTTL(base)
		if got > base || got < base-base/10 {
			t.Fatalf("JitterTTL = %v, want within [%v, %v]", got, base-base/10, base)
		}
	}
	if got := JitterTTL(0); got != 0 {
		t.Fatalf("JitterTTL(0) = %v, want 0", got)
	}
}
