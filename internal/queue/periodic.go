package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/evantahler/botholomew-sub001/internal/action"
)

// PeriodicEnqueuer turns actions with a declared frequency into recurring
// queue jobs. One goroutine per periodic action; each fires immediately on
// start and then on its own interval.
type PeriodicEnqueuer struct {
	queue    *Queue
	registry *action.Registry
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPeriodicEnqueuer creates a PeriodicEnqueuer.
func NewPeriodicEnqueuer(q *Queue, registry *action.Registry, logger *slog.Logger) *PeriodicEnqueuer {
	return &PeriodicEnqueuer{queue: q, registry: registry, logger: logger}
}

// Start launches one enqueue loop per periodic action.
func (p *PeriodicEnqueuer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return fmt.Errorf("periodic enqueuer already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for _, a := range p.registry.Periodic() {
		periodic := a.(action.Periodic)
		name := a.Name()
		queueName := periodic.Queue()
		frequency := periodic.Frequency()
		if frequency <= 0 {
			continue
		}

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.loop(loopCtx, name, queueName, frequency)
		}()

		p.logger.Info("periodic action scheduled",
			slog.String("action", name),
			slog.Duration("frequency", frequency),
			slog.String("queue", queueName))
	}

	return nil
}

func (p *PeriodicEnqueuer) loop(ctx context.Context, name, queueName string, frequency time.Duration) {
	ticker := time.NewTicker(frequency)
	defer ticker.Stop()

	p.enqueue(ctx, name, queueName)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.enqueue(ctx, name, queueName)
		}
	}
}

func (p *PeriodicEnqueuer) enqueue(ctx context.Context, name, queueName string) {
	if _, err := p.queue.Enqueue(ctx, queueName, name, nil); err != nil {
		p.logger.ErrorContext(ctx, "failed to enqueue periodic action",
			slog.String("action", name),
			slog.String("error", err.Error()))
	}
}

// Stop halts all enqueue loops.
func (p *PeriodicEnqueuer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return nil
	}
	p.cancel()
	p.wg.Wait()
	p.cancel = nil
	return nil
}
