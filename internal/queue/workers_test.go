package queue

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evantahler/botholomew-sub001/internal/action"
	"github.com/evantahler/botholomew-sub001/internal/store"
	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

func newTestQueue(t *testing.T) (*Queue, store.Store) {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return New(s), s
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePerformer records invocations and answers from a per-action script.
type fakePerformer struct {
	mu      sync.Mutex
	calls   []string
	params  []action.Input
	results map[string]*schema.Envelope
}

func newFakePerformer() *fakePerformer {
	return &fakePerformer{results: map[string]*schema.Envelope{}}
}

func (f *fakePerformer) ActSystem(ctx context.Context, name string, params action.Input) *schema.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	f.params = append(f.params, params)
	if env, ok := f.results[name]; ok {
		return env
	}
	return schema.OK("done")
}

func (f *fakePerformer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestQueueEnqueue(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	job, err := q.Enqueue(ctx, "default", "workflow:schedule", map[string]any{"limit": 5})
	require.NoError(t, err)
	assert.Equal(t, "workflow:schedule", job.Action)
	assert.Equal(t, schema.JobStatusQueued, job.Status)
	assert.JSONEq(t, `{"limit":5}`, job.Params)

	listed, err := q.ListQueued(ctx, "default", 0, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, job.ID, listed[0].ID)
}

func TestWorkers_DrainRunsJobsAndRecordsOutcome(t *testing.T) {
	ctx := context.Background()
	q, s := newTestQueue(t)

	performer := newFakePerformer()
	performer.results["bad:action"] = schema.Fail(
		schema.NewError(schema.KindStepExecution, "step 0 failed"))

	good, err := q.Enqueue(ctx, "default", "good:action", map[string]any{"x": 1})
	require.NoError(t, err)
	bad, err := q.Enqueue(ctx, "default", "bad:action", nil)
	require.NoError(t, err)

	w := NewWorkers(q, performer, []string{"default"}, 2, testLogger())
	w.drain(ctx)
	w.pool.Wait()

	assert.Equal(t, 2, performer.callCount())

	jobs, err := s.ListQueuedJobs(ctx, "default", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs, "drained queue has no queued jobs left")

	goodJob := getJob(t, s, good.ID)
	assert.Equal(t, schema.JobStatusCompleted, goodJob.Status)
	assert.Empty(t, goodJob.Error)
	assert.NotNil(t, goodJob.FinishedAt)

	badJob := getJob(t, s, bad.ID)
	assert.Equal(t, schema.JobStatusFailed, badJob.Status)
	assert.Contains(t, badJob.Error, "step 0 failed")
}

func TestWorkers_MalformedParamsFailJob(t *testing.T) {
	ctx := context.Background()
	q, s := newTestQueue(t)

	job := &store.QueuedJob{
		Queue:  "default",
		Action: "any:action",
		Params: "{not json",
		Status: schema.JobStatusQueued,
	}
	require.NoError(t, s.EnqueueJob(ctx, job))

	performer := newFakePerformer()
	w := NewWorkers(q, performer, []string{"default"}, 1, testLogger())
	w.drain(ctx)
	w.pool.Wait()

	assert.Equal(t, 0, performer.callCount(), "action never runs on bad params")

	failed := getJob(t, s, job.ID)
	assert.Equal(t, schema.JobStatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "not valid JSON")
}

func TestWorkers_StartStop(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	w := NewWorkers(q, newFakePerformer(), []string{"default"}, 1, testLogger())
	require.NoError(t, w.Start(ctx))
	assert.Error(t, w.Start(ctx), "double start is rejected")
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop(), "stop is idempotent")
}

func TestPeriodicEnqueuer_FiresImmediately(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	registry := action.NewRegistry()
	require.NoError(t, registry.Register(&periodicTestAction{
		name:      "heartbeat",
		frequency: time.Hour,
		queueName: "default",
	}))

	p := NewPeriodicEnqueuer(q, registry, testLogger())
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() { _ = p.Stop() })

	require.Eventually(t, func() bool {
		jobs, err := q.ListQueued(ctx, "default", 0, 10)
		return err == nil && len(jobs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	jobs, err := q.ListQueued(ctx, "default", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "heartbeat", jobs[0].Action)
}

func TestPeriodicEnqueuer_SkipsZeroFrequency(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	registry := action.NewRegistry()
	require.NoError(t, registry.Register(&periodicTestAction{
		name:      "never",
		frequency: 0,
		queueName: "default",
	}))

	p := NewPeriodicEnqueuer(q, registry, testLogger())
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Stop())

	jobs, err := q.ListQueued(ctx, "default", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func getJob(t *testing.T, s store.Store, id int64) *store.QueuedJob {
	t.Helper()
	job, err := s.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

// periodicTestAction is a minimal periodic action for enqueuer tests.
type periodicTestAction struct {
	name      string
	frequency time.Duration
	queueName string
}

func (a *periodicTestAction) Name() string                 { return a.name }
func (a *periodicTestAction) Description() string          { return "test periodic action" }
func (a *periodicTestAction) InputSchema() json.RawMessage { return nil }
func (a *periodicTestAction) Middleware() []string         { return nil }
func (a *periodicTestAction) Frequency() time.Duration     { return a.frequency }
func (a *periodicTestAction) Queue() string                { return a.queueName }
func (a *periodicTestAction) Run(ctx context.Context, conn *action.Connection, params action.Input) (any, error) {
	return nil, nil
}
