package orchestrator

import (
	"context"
	"log/slog"

	"github.com/evantahler/botholomew-sub001/internal/queue"
	"github.com/evantahler/botholomew-sub001/internal/store"
)

// TickActionName is the queued action that advances one run by one step.
const TickActionName = "workflow:run:tick"

// TickQueue is the queue tick jobs land on.
const TickQueue = "workflows"

// Ticker converts in-flight runs into queued tick jobs. It does no business
// logic itself: one pass enqueues exactly one job per pending or running run,
// decoupling polling cadence from per-run processing cost.
type Ticker struct {
	store  store.Store
	queue  *queue.Queue
	logger *slog.Logger
}

// NewTicker creates a Ticker.
func NewTicker(s store.Store, q *queue.Queue, logger *slog.Logger) *Ticker {
	return &Ticker{store: s, queue: q, logger: logger}
}

// TickOnce enqueues one tick job per active run and returns how many were
// enqueued.
func (t *Ticker) TickOnce(ctx context.Context) (int, error) {
	runs, err := t.store.ListActiveRuns(ctx)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, run := range runs {
		params := map[string]any{
			"run_id":      run.ID,
			"workflow_id": run.WorkflowID,
		}
		if _, err := t.queue.Enqueue(ctx, TickQueue, TickActionName, params); err != nil {
			t.logger.ErrorContext(ctx, "failed to enqueue tick job",
				slog.String("run_id", run.ID),
				slog.String("error", err.Error()))
			continue
		}
		enqueued++
	}

	return enqueued, nil
}
