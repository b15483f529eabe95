package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/evantahler/botholomew-sub001/internal/store"
	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

const defaultSchedulerPageSize = 100

// Scheduler turns cron schedules into workflow runs. Each pass scans enabled
// workflows with a schedule whose watermark is stale, and for every due one
// inserts a pending run and advances the watermark in a single transaction.
// Duplicate runs are impossible for a single replica: the next scan sees the
// refreshed watermark.
type Scheduler struct {
	store    store.Store
	interval time.Duration
	pageSize int
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler scanning at the given interval.
func NewScheduler(s store.Store, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    s,
		interval: interval,
		pageSize: defaultSchedulerPageSize,
		logger:   logger,
	}
}

// ScheduleOnce performs one scheduling pass and returns the number of runs
// created. Un-parseable cron expressions are logged and skipped without
// aborting the batch and without advancing that workflow's watermark.
func (s *Scheduler) ScheduleOnce(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-s.interval)

	candidates, err := s.store.ListScheduleCandidates(ctx, cutoff, s.pageSize)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, wf := range candidates {
		due, err := Due(wf.Schedule, wf.LastScheduledAt, now)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping workflow with bad cron schedule",
				slog.String("workflow_id", wf.ID),
				slog.String("schedule", wf.Schedule),
				slog.String("error", err.Error()))
			continue
		}
		if !due {
			continue
		}

		run := &store.WorkflowRun{
			ID:         uuid.NewString(),
			WorkflowID: wf.ID,
			Status:     schema.RunStatusPending,
		}
		if err := s.store.CreateScheduledRun(ctx, run, now); err != nil {
			s.logger.ErrorContext(ctx, "failed to create scheduled run",
				slog.String("workflow_id", wf.ID),
				slog.String("error", err.Error()))
			continue
		}

		s.logger.InfoContext(ctx, "scheduled workflow run",
			slog.String("workflow_id", wf.ID),
			slog.String("run_id", run.ID))
		created++
	}

	return created, nil
}
