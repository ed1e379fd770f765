package ristretto_test

import (
	"context"
	"testing"
	"time"

	"github.com/brainstem-ai/brainstem/internal/adapter/ristretto"
)

func newCache(t *testing.T) *ristretto.Cache {
	t.Helper()
	c, err := ristretto.New(1 << 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestCacheSetGet(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "apikey:abc", []byte("planner"), time.Minute); err != nil {
		t.Fatal(err)
	}
	val, found, err := c.Get(ctx, "apikey:abc")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected hit immediately after Set")
	}
	if string(val) != "planner" {
		t.Errorf("value = %q, want %q", val, "planner")
	}
}

func TestCacheMissAndDelete(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	if _, found, _ := c.Get(ctx, "absent"); found {
		t.Fatal("expected miss for absent key")
	}

	_ = c.Set(ctx, "doomed", []byte("v"), time.Minute)
	if err := c.Delete(ctx, "doomed"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c.Get(ctx, "doomed"); found {
		t.Error("expected miss after Delete")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "short-lived", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c.Get(ctx, "short-lived"); !found {
		t.Fatal("expected hit before TTL")
	}

	time.Sleep(150 * time.Millisecond)
	if _, found, _ := c.Get(ctx, "short-lived"); found {
		t.Error("expected miss after TTL expiry")
	}
}
