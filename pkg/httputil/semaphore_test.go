package httputil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSemaphoreTryAcquire(t *testing.T) {
	sem := NewSemaphore(2)

	if !sem.TryAcquire() {
		t.Error("first TryAcquire should succeed")
	}
	if !sem.TryAcquire() {
		t.Error("second TryAcquire should succeed")
	}
	if sem.TryAcquire() {
		t.Error("third TryAcquire should fail at capacity")
	}
	if sem.DroppedCount() != 1 {
		t.Errorf("DroppedCount = %d, want 1", sem.DroppedCount())
	}

	sem.Release()
	if !sem.TryAcquire() {
		t.Error("TryAcquire should succeed after Release")
	}
}

func TestSemaphoreAcquireBlocks(t *testing.T) {
	sem := NewSemaphore(1)

	if err := sem.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := sem.Acquire(ctx); err != context.DeadlineExceeded {
		t.Errorf("blocked Acquire returned %v, want DeadlineExceeded", err)
	}
}

func TestSemaphoreConcurrentScans(t *testing.T) {
	sem := NewSemaphore(10)
	var served atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem.TryAcquire() {
				served.Add(1)
				time.Sleep(5 * time.Millisecond)
				sem.Release()
			}
		}()
	}
	wg.Wait()

	stats := sem.Stats()
	if stats.InUse != 0 {
		t.Errorf("InUse = %d after all scans finished, want 0", stats.InUse)
	}
	if served.Load() == 0 {
		t.Error("no scans were admitted")
	}
	if served.Load()+int32(stats.Dropped) != 100 {
		t.Errorf("served %d + dropped %d != 100", served.Load(), stats.Dropped)
	}
}

func TestSemaphoreStats(t *testing.T) {
	sem := NewSemaphore(5)
	sem.TryAcquire()
	sem.TryAcquire()

	stats := sem.Stats()
	if stats.Capacity != 5 || stats.InUse != 2 || stats.Available != 3 {
		t.Errorf("stats = %+v, want capacity 5, in use 2, available 3", stats)
	}
	if sem.InUse() != 2 {
		t.Errorf("InUse() = %d, want 2", sem.InUse())
	}
}

func TestNewSemaphoreDefaultCapacity(t *testing.T) {
	for _, capacity := range []int{0, -5} {
		sem := NewSemaphore(capacity)
		if got := sem.Stats().Capacity; got != 100 {
			t.Errorf("NewSemaphore(%d) capacity = %d, want 100", capacity, got)
		}
	}
}
