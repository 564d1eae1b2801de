package idem

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gbordes77/screen2deck/internal/cache"
)

func TestRun_ExecutesOnceAndCachesResult(t *testing.T) {
	c, _ := cache.New(nil, 64)
	e := New(c)

	calls := 0
	fn := func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte("result"), nil
	}

	r1, err := e.Run(context.Background(), "key1", Options{}, fn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r1.FromCache {
		t.Fatal("expected first run to not be from cache")
	}

	r2, err := e.Run(context.Background(), "key1", Options{}, fn)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !r2.FromCache {
		t.Fatal("expected second run to hit the cached result")
	}
	if calls != 1 {
		t.Fatalf("fn called %d times, want 1", calls)
	}
}

func TestRun_DoesNotCacheOnError(t *testing.T) {
	c, _ := cache.New(nil, 64)
	e := New(c)

	wantErr := errors.New("boom")
	_, err := e.Run(context.Background(), "key2", Options{}, func(ctx context.Context) ([]byte, error) {
		return nil, wantErr
	})
	if err == nil {
		t.Fatal("expected error to propagate")
	}

	if c.Exists(layer, "key2:result") {
		t.Fatal("expected no cached result after a failed execution")
	}
}

func TestRun_ConcurrentCallsExecuteAtLeastOnce(t *testing.T) {
	c, _ := cache.New(nil, 64)
	e := New(c)

	var mu sync.Mutex
	calls := 0

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.Run(context.Background(), "key3", Options{LockTTL: time.Second, AcquisitionWait: 2 * time.Second}, func(ctx context.Context) ([]byte, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				time.Sleep(20 * time.Millisecond)
				return []byte("ok"), nil
			})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Fatal("expected at least one execution")
	}
}
