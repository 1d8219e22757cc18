package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMemoryStore_SetAndGet(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	if err := store.SetWithExpiry(ctx, "k", time.Minute, []byte("v1")); err != nil {
		t.Fatalf("SetWithExpiry failed: %v", err)
	}
	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("Get() = %s, want v1", got)
	}

	// A later write supersedes the earlier one.
	if err := store.SetWithExpiry(ctx, "k", time.Minute, []byte("v2")); err != nil {
		t.Fatalf("SetWithExpiry failed: %v", err)
	}
	got, _ = store.Get(ctx, "k")
	if string(got) != "v2" {
		t.Errorf("Get() after overwrite = %s, want v2", got)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore(10)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	if err := store.SetWithExpiry(ctx, "k", 60*time.Second, []byte("v")); err != nil {
		t.Fatalf("SetWithExpiry failed: %v", err)
	}
	if ttl := store.TTL("k"); ttl != 60*time.Second {
		t.Errorf("TTL() = %v, want 60s", ttl)
	}

	now = now.Add(59 * time.Second)
	if _, err := store.Get(ctx, "k"); err != nil {
		t.Errorf("Get() before expiry error = %v", err)
	}

	now = now.Add(time.Second)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() at expiry error = %v, want ErrCacheMiss", err)
	}
	if store.Len() != 0 {
		t.Errorf("expired entry not evicted, Len() = %d", store.Len())
	}
}

func TestMemoryStore_Eviction(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.SetWithExpiry(ctx, fmt.Sprintf("k%d", i), time.Minute, []byte("v")); err != nil {
			t.Fatalf("SetWithExpiry failed: %v", err)
		}
	}

	if _, err := store.Get(ctx, "k0"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("oldest entry should have been evicted, got %v", err)
	}
	if _, err := store.Get(ctx, "k2"); err != nil {
		t.Errorf("newest entry missing: %v", err)
	}
}

func TestMemoryStore_CopiesValue(t *testing.T) {
	store := NewMemoryStore(0)
	value := []byte("abc")
	if err := store.SetWithExpiry(context.Background(), "k", time.Minute, value); err != nil {
		t.Fatalf("SetWithExpiry failed: %v", err)
	}
	value[0] = 'x'

	got, _ := store.Get(context.Background(), "k")
	if string(got) != "abc" {
		t.Errorf("stored value mutated through caller slice: %s", got)
	}
}

func TestMemoryStore_InvalidTTL(t *testing.T) {
	store := NewMemoryStore(1)
	if err := store.SetWithExpiry(context.Background(), "k", 0, []byte("v")); !errors.Is(err, ErrInvalidTTL) {
		t.Errorf("SetWithExpiry(0) error = %v, want ErrInvalidTTL", err)
	}
}
