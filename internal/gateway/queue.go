package gateway

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool runs jobs on their own goroutines while a global semaphore limits how
// many execute at once. Jobs waiting for a slot are abandoned when the pool
// stops.
type Pool struct {
	semaphore *semaphore.Weighted
	active    atomic.Int64
	pending   atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a Pool that allows up to maxConcurrent jobs to execute
// simultaneously.
func NewPool(maxConcurrent int64) *Pool {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Pool{semaphore: semaphore.NewWeighted(maxConcurrent)}
}

// Start initialises the pool's context. Must be called before Go.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
}

// Stop cancels the pool context and waits for running jobs to return.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Go schedules job. It receives the pool's context, which is canceled on Stop.
func (p *Pool) Go(name string, job func(ctx context.Context)) {
	p.wg.Add(1)
	p.pending.Add(1)
	go func() {
		defer p.wg.Done()
		err := p.semaphore.Acquire(p.ctx, 1)
		p.pending.Add(-1)
		if err != nil {
			slog.Debug("job dropped", "job", name, "error", err)
			return
		}
		defer p.semaphore.Release(1)
		if err := p.ctx.Err(); err != nil {
			slog.Debug("job dropped", "job", name, "error", err)
			return
		}

		p.active.Add(1)
		defer p.active.Add(-1)
		job(p.ctx)
	}()
}

// Active returns the number of jobs currently executing.
func (p *Pool) Active() int64 { return p.active.Load() }

// WaitIdle blocks until no jobs are running or waiting, or the timeout
// expires. Returns true if idle, false if timed out.
func (p *Pool) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if p.active.Load() == 0 && p.pending.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}
