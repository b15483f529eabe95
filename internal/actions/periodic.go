package actions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/evantahler/botholomew-sub001/internal/action"
	"github.com/evantahler/botholomew-sub001/internal/orchestrator"
)

// ScheduleAction is the periodic action that turns due cron schedules into
// pending runs. The server enqueues it onto the workflows queue every
// Frequency; workers execute it in system context.
type ScheduleAction struct {
	scheduler *orchestrator.Scheduler
	frequency time.Duration
}

// NewScheduleAction creates the workflow:schedule periodic action.
func NewScheduleAction(s *orchestrator.Scheduler, frequency time.Duration) *ScheduleAction {
	return &ScheduleAction{scheduler: s, frequency: frequency}
}

func (a *ScheduleAction) Name() string        { return "workflow:schedule" }
func (a *ScheduleAction) Description() string { return "Create runs for due workflow schedules." }

func (a *ScheduleAction) InputSchema() json.RawMessage { return nil }
func (a *ScheduleAction) Middleware() []string         { return nil }

func (a *ScheduleAction) Frequency() time.Duration { return a.frequency }
func (a *ScheduleAction) Queue() string            { return orchestrator.TickQueue }

func (a *ScheduleAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	created, err := a.scheduler.ScheduleOnce(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"runs_created": created}, nil
}

// EnqueueTicksAction is the periodic action that converts in-flight runs
// into queued tick jobs.
type EnqueueTicksAction struct {
	ticker    *orchestrator.Ticker
	frequency time.Duration
}

// NewEnqueueTicksAction creates the workflow:run:enqueue-ticks periodic action.
func NewEnqueueTicksAction(t *orchestrator.Ticker, frequency time.Duration) *EnqueueTicksAction {
	return &EnqueueTicksAction{ticker: t, frequency: frequency}
}

func (a *EnqueueTicksAction) Name() string { return "workflow:run:enqueue-ticks" }
func (a *EnqueueTicksAction) Description() string {
	return "Enqueue a tick job for every in-flight run."
}

func (a *EnqueueTicksAction) InputSchema() json.RawMessage { return nil }
func (a *EnqueueTicksAction) Middleware() []string         { return nil }

func (a *EnqueueTicksAction) Frequency() time.Duration { return a.frequency }
func (a *EnqueueTicksAction) Queue() string            { return orchestrator.TickQueue }

func (a *EnqueueTicksAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	enqueued, err := a.ticker.TickOnce(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"jobs_enqueued": enqueued}, nil
}
