package queue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evantahler/botholomew-sub001/internal/store"
)

func poolLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testJob(id int64, action string) *store.QueuedJob {
	return &store.QueuedJob{ID: id, Action: action, Queue: DefaultQueue}
}

func TestJobPool_CountsOutcomes(t *testing.T) {
	ctx := context.Background()
	p := newJobPool(2, poolLogger())

	require.NoError(t, p.Submit(ctx, testJob(1, "status"), func(ctx context.Context) error {
		return nil
	}))
	require.NoError(t, p.Submit(ctx, testJob(2, "status"), func(ctx context.Context) error {
		return fmt.Errorf("boom")
	}))
	p.Wait()

	m := p.Metrics()
	assert.Equal(t, int64(1), m.Completed)
	assert.Equal(t, int64(1), m.Failed)
	assert.Equal(t, int64(0), m.Active)
}

func TestJobPool_PanicReleasesSlot(t *testing.T) {
	ctx := context.Background()
	p := newJobPool(1, poolLogger())

	require.NoError(t, p.Submit(ctx, testJob(1, "workflow:run:tick"), func(ctx context.Context) error {
		panic("bad job")
	}))
	p.Wait()

	// The single slot must be free again or this second submit blocks.
	ran := false
	require.NoError(t, p.Submit(ctx, testJob(2, "status"), func(ctx context.Context) error {
		ran = true
		return nil
	}))
	p.Wait()

	assert.True(t, ran)
	m := p.Metrics()
	assert.Equal(t, int64(1), m.Panics)
	assert.Equal(t, int64(1), m.Failed)
	assert.Equal(t, int64(1), m.Completed)
}

func TestJobPool_ShutdownRejectsNewJobs(t *testing.T) {
	ctx := context.Background()
	p := newJobPool(1, poolLogger())
	p.Shutdown()

	err := p.Submit(ctx, testJob(1, "status"), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolShutdown)
}
