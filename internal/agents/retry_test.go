package agents

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRunner struct {
	calls   int
	results []func() (*Result, error)
}

func (s *scriptedRunner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	step := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	return step()
}

func TestRetryingRunner_RecoverFromTransientFault(t *testing.T) {
	inner := &scriptedRunner{results: []func() (*Result, error){
		func() (*Result, error) { return nil, errors.New("dial tcp: connection refused") },
		func() (*Result, error) { return &Result{Status: "complete", Result: "ok"}, nil },
	}}

	runner := NewRetryingRunner(inner, 3, time.Millisecond)
	result, err := runner.Run(context.Background(), Invocation{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Result)
	assert.Equal(t, 2, inner.calls)
}

func TestRetryingRunner_GivesUpAfterAttempts(t *testing.T) {
	inner := &scriptedRunner{results: []func() (*Result, error){
		func() (*Result, error) { return nil, errors.New("agent runner returned status 503: busy") },
	}}

	runner := NewRetryingRunner(inner, 3, time.Millisecond)
	_, err := runner.Run(context.Background(), Invocation{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingRunner_NonRetryableFailsFast(t *testing.T) {
	inner := &scriptedRunner{results: []func() (*Result, error){
		func() (*Result, error) { return nil, errors.New("agent runner returned status 400: bad invocation") },
	}}

	runner := NewRetryingRunner(inner, 3, time.Millisecond)
	_, err := runner.Run(context.Background(), Invocation{Model: "m"})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryingRunner_AgentErrorResultNotRetried(t *testing.T) {
	inner := &scriptedRunner{results: []func() (*Result, error){
		func() (*Result, error) { return &Result{Status: "error", Error: "prompt rejected"}, nil },
	}}

	runner := NewRetryingRunner(inner, 3, time.Millisecond)
	result, err := runner.Run(context.Background(), Invocation{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "error", result.Status)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryingRunner_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inner := &scriptedRunner{results: []func() (*Result, error){
		func() (*Result, error) {
			cancel()
			return nil, fmt.Errorf("read: %w", errors.New("connection reset by peer"))
		},
	}}

	runner := NewRetryingRunner(inner, 5, time.Minute)
	_, err := runner.Run(ctx, Invocation{Model: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, isRetryable(nil))
	assert.False(t, isRetryable(context.Canceled))
	assert.True(t, isRetryable(context.DeadlineExceeded))
	assert.True(t, isRetryable(errors.New("connection reset by peer")))
	assert.True(t, isRetryable(errors.New("agent runner returned status 502: upstream")))
	assert.False(t, isRetryable(errors.New("failed to decode agent result: unexpected EOF")))
}

func TestBackoffDoubles(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, base, backoff(base, 0))
	assert.Equal(t, 2*base, backoff(base, 1))
	assert.Equal(t, 4*base, backoff(base, 2))
	assert.Equal(t, time.Duration(0), backoff(0, 3))
}
