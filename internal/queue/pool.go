package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/evantahler/botholomew-sub001/internal/store"
)

// ErrPoolShutdown is returned when a job is submitted to a shut-down pool.
var ErrPoolShutdown = errors.New("job pool is shut down")

// PoolMetrics is a snapshot of the pool's job counters.
type PoolMetrics struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

// jobPool bounds how many claimed jobs execute at once. Submission blocks
// while every slot is busy so the claim loop cannot outrun the workers. A
// panicking job is logged with its identity and counted; it never takes the
// claim loop down.
type jobPool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panics    atomic.Int64

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

func newJobPool(size int, logger *slog.Logger) *jobPool {
	if size <= 0 {
		size = 1
	}
	return &jobPool{
		sem:    make(chan struct{}, size),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (p *jobPool) size() int { return cap(p.sem) }

// Submit runs one claimed job on a pool slot. It blocks while the pool is at
// capacity and respects cancellation and shutdown while waiting.
func (p *jobPool) Submit(ctx context.Context, job *store.QueuedJob, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolShutdown
	}
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolShutdown
	}

	// Re-check after acquiring the slot; wg.Add must happen under the lock so
	// Shutdown's wg.Wait cannot race it.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return ErrPoolShutdown
	}
	p.wg.Add(1)
	p.active.Add(1)
	p.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.panics.Add(1)
				p.failed.Add(1)
				p.logger.ErrorContext(ctx, "queued job panicked",
					slog.Int64("job_id", job.ID),
					slog.String("action", job.Action),
					slog.Any("panic", r))
			}
			p.active.Add(-1)
			<-p.sem
			p.wg.Done()
		}()

		if err := fn(ctx); err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}()

	return nil
}

// Wait blocks until every in-flight job returns.
func (p *jobPool) Wait() {
	p.wg.Wait()
}

// Shutdown stops new submissions and waits for in-flight jobs.
func (p *jobPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Metrics returns a snapshot of the job counters.
func (p *jobPool) Metrics() PoolMetrics {
	return PoolMetrics{
		Active:    p.active.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panics:    p.panics.Load(),
	}
}
