package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/storebotdev/storebot-go/internal/cache"
	"github.com/storebotdev/storebot-go/internal/cache/memory"
)

func TestSetGet(t *testing.T) {
	ctx := context.Background()
	c := memory.New(time.Minute, 0)
	defer c.Close()

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("expected v, got %q", got)
	}

	// Returned slice is a copy
	got[0] = 'x'
	again, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != "v" {
		t.Error("stored value aliased with returned slice")
	}
}

func TestGetMissing(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()

	_, err := c.Get(context.Background(), "missing")
	if !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	c := memory.New(time.Minute, 0)
	defer c.Close()

	if err := c.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	if !errors.Is(err, cache.ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}

	ok, err := c.Exists(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected Exists false for expired key")
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	c := memory.New(time.Minute, 0)
	defer c.Close()

	c.Set(ctx, "k", []byte("v"), 0)
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCounter(t *testing.T) {
	ctx := context.Background()
	c := memory.New(time.Minute, 0)
	defer c.Close()

	v, resetAt, err := c.Increment(ctx, "cnt", 1, time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if v != 1 {
		t.Errorf("expected 1, got %d", v)
	}
	if resetAt.Before(time.Now()) {
		t.Error("expected reset time in the future")
	}

	v, _, err = c.Increment(ctx, "cnt", 2, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if v != 3 {
		t.Errorf("expected 3, got %d", v)
	}

	n, err := c.GetCount(ctx, "cnt")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected count 3, got %d", n)
	}

	if err := c.Reset(ctx, "cnt"); err != nil {
		t.Fatal(err)
	}
	n, err = c.GetCount(ctx, "cnt")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected count 0 after reset, got %d", n)
	}
}

func TestCounterWindowExpiry(t *testing.T) {
	ctx := context.Background()
	c := memory.New(time.Minute, 0)
	defer c.Close()

	c.Increment(ctx, "cnt", 5, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	// Expired window restarts from the delta
	v, _, err := c.Increment(ctx, "cnt", 1, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Errorf("expected fresh window to start at 1, got %d", v)
	}
}

func TestRegistry(t *testing.T) {
	c, err := cache.New("memory", map[string]any{
		"memory": map[string]any{"default_ttl_seconds": 60},
	})
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Errorf("registry-built cache roundtrip failed: %q %v", got, err)
	}
}

func TestRegistryUnknownDriver(t *testing.T) {
	if _, err := cache.New("bogus", nil); err == nil {
		t.Fatal("expected error for unknown cache driver")
	}
}
