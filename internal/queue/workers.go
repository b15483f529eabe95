package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/evantahler/botholomew-sub001/internal/action"
	"github.com/evantahler/botholomew-sub001/internal/store"
	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

const defaultPollInterval = time.Second

// Performer executes an action on behalf of a queue worker. Satisfied by the
// action dispatcher (kept as an interface to avoid depending on its setup).
type Performer interface {
	ActSystem(ctx context.Context, name string, params action.Input) *schema.Envelope
}

// Workers drains named queues, claiming one job at a time and running its
// action with a system connection. A failing job is recorded and left alone;
// it is never retried automatically and never takes the worker down.
type Workers struct {
	queue     *Queue
	performer Performer
	pool      *jobPool
	queues    []string
	interval  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorkers creates a worker set over the given queues with the given
// concurrency.
func NewWorkers(q *Queue, performer Performer, queues []string, concurrency int, logger *slog.Logger) *Workers {
	if len(queues) == 0 {
		queues = []string{DefaultQueue}
	}
	return &Workers{
		queue:     q,
		performer: performer,
		pool:      newJobPool(concurrency, logger),
		queues:    queues,
		interval:  defaultPollInterval,
		logger:    logger,
	}
}

// Start launches the background claim loop.
func (w *Workers) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.done != nil {
		w.mu.Unlock()
		return fmt.Errorf("workers already started")
	}

	workCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(workCtx)
	w.logger.Info("queue workers started",
		slog.Int("concurrency", w.pool.size()),
		slog.Any("queues", w.queues))
	return nil
}

func (w *Workers) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain claims jobs from every queue until all are empty, dispatching each
// into the pool.
func (w *Workers) drain(ctx context.Context) {
	for _, name := range w.queues {
		for {
			job, err := w.queue.Claim(ctx, name)
			if err != nil {
				w.logger.ErrorContext(ctx, "failed to claim job",
					slog.String("queue", name),
					slog.String("error", err.Error()))
				break
			}
			if job == nil {
				break
			}

			claimed := job
			if err := w.pool.Submit(ctx, claimed, func(ctx context.Context) error {
				return w.runJob(ctx, claimed)
			}); err != nil {
				// Pool is shutting down; put the failure on record so the
				// job is not stuck in running forever.
				_ = w.queue.Finish(context.WithoutCancel(ctx), claimed.ID, schema.JobStatusFailed, err.Error())
				return
			}
		}
	}
}

// runJob executes one claimed job and records its outcome.
func (w *Workers) runJob(ctx context.Context, job *store.QueuedJob) error {
	var params action.Input
	if job.Params != "" {
		if err := json.Unmarshal([]byte(job.Params), &params); err != nil {
			w.logger.ErrorContext(ctx, "job params are not valid JSON",
				slog.Int64("job_id", job.ID),
				slog.String("action", job.Action))
			return w.queue.Finish(ctx, job.ID, schema.JobStatusFailed, "params are not valid JSON: "+err.Error())
		}
	}

	env := w.performer.ActSystem(ctx, job.Action, params)
	if env.IsError() {
		return w.queue.Finish(ctx, job.ID, schema.JobStatusFailed, env.Err.Message)
	}
	return w.queue.Finish(ctx, job.ID, schema.JobStatusCompleted, "")
}

// Stop gracefully shuts down the claim loop and waits for in-flight jobs.
func (w *Workers) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return nil
	}

	w.cancel()
	<-w.done
	w.pool.Shutdown()
	w.cancel = nil
	w.done = nil

	w.logger.Info("queue workers stopped")
	return nil
}
