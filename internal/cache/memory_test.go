package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemorySetGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.Get(ctx, "absent"); !errors.Is(err, ErrMiss) {
		t.Errorf("absent key: got %v, want ErrMiss", err)
	}

	if err := m.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := m.Get(ctx, "k")
	if err != nil || v != "v" {
		t.Errorf("get = %q, %v", v, err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Set(ctx, "k", "v", 10*time.Millisecond)
	if _, err := m.Get(ctx, "k"); err != nil {
		t.Fatalf("fresh entry: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("expired entry: got %v, want ErrMiss", err)
	}
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Set(ctx, "k", "v", 0)
	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("deleted key: got %v, want ErrMiss", err)
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Set(ctx, "shared", "v", time.Minute)
				m.Get(ctx, "shared")
				m.Delete(ctx, "shared")
			}
		}()
	}
	wg.Wait()
}
