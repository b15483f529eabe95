package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/evantahler/botholomew-sub001/internal/store"
	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

// DefaultQueue is where jobs land when the caller does not name one.
const DefaultQueue = "default"

// Queue is the durable task queue. Jobs are rows in the store; workers claim
// them one at a time so a restart never loses accepted work.
type Queue struct {
	store store.Store
}

// New creates a Queue over the given store.
func New(s store.Store) *Queue {
	return &Queue{store: s}
}

// Enqueue appends a job naming an action and its params to the named queue.
func (q *Queue) Enqueue(ctx context.Context, queue, actionName string, params map[string]any) (*store.QueuedJob, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	if actionName == "" {
		return nil, schema.NewError(schema.KindParamValidation, "job action is required").WithKey("action", actionName)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal job params: %w", err)
	}

	job := &store.QueuedJob{
		Queue:  queue,
		Action: actionName,
		Params: string(raw),
		Status: schema.JobStatusQueued,
	}
	if err := q.store.EnqueueJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Claim pops the oldest queued job from the named queue, marking it running.
// Returns (nil, nil) when the queue is empty.
func (q *Queue) Claim(ctx context.Context, queue string) (*store.QueuedJob, error) {
	return q.store.ClaimJob(ctx, queue)
}

// Finish records a claimed job's terminal status.
func (q *Queue) Finish(ctx context.Context, jobID int64, status schema.JobStatus, errText string) error {
	return q.store.FinishJob(ctx, jobID, string(status), errText)
}

// ListQueued returns pending jobs on the named queue, oldest first.
func (q *Queue) ListQueued(ctx context.Context, queue string, offset, limit int) ([]*store.QueuedJob, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	return q.store.ListQueuedJobs(ctx, queue, offset, limit)
}
