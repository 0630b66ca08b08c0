package github

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCache_HitAndExpiry(t *testing.T) {
	cache := NewCache(50 * time.Millisecond)
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) (interface{}, error) {
		calls++
		return "value", nil
	}

	for i := 0; i < 3; i++ {
		v, err := cache.Do(ctx, "key", fetch)
		if err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		if v != "value" {
			t.Fatalf("value = %v, want value", v)
		}
	}
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1 (subsequent reads cached)", calls)
	}

	time.Sleep(60 * time.Millisecond)

	if _, err := cache.Do(ctx, "key", fetch); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("fetch calls = %d, want 2 after TTL expiry", calls)
	}
}

func TestCache_CoalescesConcurrentMisses(t *testing.T) {
	cache := NewCache(time.Minute)
	ctx := context.Background()

	var calls int32
	fetch := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond) // hold the flight open
		return "value", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := cache.Do(ctx, "key", fetch)
			if err != nil {
				t.Errorf("Do failed: %v", err)
				return
			}
			if v != "value" {
				t.Errorf("value = %v, want value", v)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetch calls = %d, want 1 (misses coalesced)", got)
	}
}

func TestCache_ErrorsNotCached(t *testing.T) {
	cache := NewCache(time.Minute)
	ctx := context.Background()

	calls := 0
	boom := errors.New("upstream down")
	fetch := func(ctx context.Context) (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return "recovered", nil
	}

	if _, err := cache.Do(ctx, "key", fetch); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	v, err := cache.Do(ctx, "key", fetch)
	if err != nil {
		t.Fatalf("Do failed after error: %v", err)
	}
	if v != "recovered" {
		t.Errorf("value = %v, want recovered (error must not be cached)", v)
	}
	if calls != 2 {
		t.Errorf("fetch calls = %d, want 2", calls)
	}
}

func TestCache_Invalidate(t *testing.T) {
	cache := NewCache(time.Minute)
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) (interface{}, error) {
		calls++
		return calls, nil
	}

	v, _ := cache.Do(ctx, "key", fetch)
	if v != 1 {
		t.Fatalf("value = %v, want 1", v)
	}

	cache.Invalidate("key")

	v, _ = cache.Do(ctx, "key", fetch)
	if v != 2 {
		t.Errorf("value = %v, want 2 after invalidation", v)
	}
}

func TestCache_Sweep(t *testing.T) {
	cache := NewCache(10 * time.Millisecond)
	ctx := context.Background()

	fetch := func(ctx context.Context) (interface{}, error) { return "v", nil }
	cache.Do(ctx, "a", fetch)
	cache.Do(ctx, "b", fetch)

	if removed := cache.Sweep(); removed != 0 {
		t.Errorf("removed = %d, want 0 before expiry", removed)
	}

	time.Sleep(20 * time.Millisecond)

	if removed := cache.Sweep(); removed != 2 {
		t.Errorf("removed = %d, want 2 after expiry", removed)
	}
}
