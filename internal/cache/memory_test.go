package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderRoundTrip(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider()

	if _, err := provider.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}

	if err := provider.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, err := provider.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "v" {
		t.Fatalf("unexpected value %q", value)
	}

	if err := provider.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := provider.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestMemoryProviderExpiry(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider()

	if err := provider.Set(ctx, "k", []byte("v"), time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := provider.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}
}

func TestNoopProvider(t *testing.T) {
	ctx := context.Background()
	var provider Provider = NoopProvider{}

	if err := provider.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := provider.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("noop provider must always miss, got %v", err)
	}
}
