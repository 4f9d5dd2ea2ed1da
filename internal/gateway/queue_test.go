package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolConcurrency(t *testing.T) {
	pool := NewPool(2)
	pool.Start(context.Background())
	defer pool.Stop()

	var running int32
	var maxSeen int32

	for i := 0; i < 5; i++ {
		pool.Go("job", func(ctx context.Context) {
			current := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&maxSeen)
				if current <= old || atomic.CompareAndSwapInt32(&maxSeen, old, current) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			atomic.AddInt32(&running, -1)
		})
	}

	if !pool.WaitIdle(2 * time.Second) {
		t.Fatal("timed out waiting for jobs")
	}
	if m := atomic.LoadInt32(&maxSeen); m > 2 {
		t.Errorf("expected max 2 concurrent, saw %d", m)
	}
}

func TestPoolJobCalled(t *testing.T) {
	pool := NewPool(1)
	pool.Start(context.Background())
	defer pool.Stop()

	var processed int32
	pool.Go("job", func(ctx context.Context) { atomic.AddInt32(&processed, 1) })

	if !pool.WaitIdle(time.Second) {
		t.Fatal("timed out waiting for job")
	}
	if atomic.LoadInt32(&processed) != 1 {
		t.Errorf("expected 1 processed job, got %d", processed)
	}
}

func TestPoolStopCancelsJobs(t *testing.T) {
	pool := NewPool(1)
	pool.Start(context.Background())

	started := make(chan struct{})
	var canceled, ran int32
	pool.Go("blocker", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		atomic.StoreInt32(&canceled, 1)
	})
	<-started
	// Waits for the slot held by the blocker and is dropped on Stop.
	pool.Go("waiter", func(ctx context.Context) { atomic.StoreInt32(&ran, 1) })

	pool.Stop()

	if atomic.LoadInt32(&canceled) != 1 {
		t.Error("expected running job to see cancellation")
	}
	if atomic.LoadInt32(&ran) != 0 {
		t.Error("expected waiting job to be dropped")
	}
}
