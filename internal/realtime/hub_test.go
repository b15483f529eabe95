package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestMemoryHub_BroadcastToChannelSubscribers(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()

	runs, cancelRuns, err := hub.Subscribe(ctx, "runs")
	require.NoError(t, err)
	defer cancelRuns()

	other, cancelOther, err := hub.Subscribe(ctx, "other")
	require.NoError(t, err)
	defer cancelOther()

	require.NoError(t, hub.Broadcast(ctx, Message{Channel: "runs", Payload: "step done"}))

	got := receive(t, runs)
	assert.Equal(t, "runs", got.Channel)
	assert.Equal(t, "step done", got.Payload)

	select {
	case msg := <-other:
		t.Fatalf("unexpected message on other channel: %+v", msg)
	default:
	}
}

func TestMemoryHub_MultipleSubscribersEachReceive(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()

	a, cancelA, err := hub.Subscribe(ctx, "runs")
	require.NoError(t, err)
	defer cancelA()
	b, cancelB, err := hub.Subscribe(ctx, "runs")
	require.NoError(t, err)
	defer cancelB()

	require.NoError(t, hub.Broadcast(ctx, Message{Channel: "runs", Payload: 1}))

	assert.Equal(t, 1, receive(t, a).Payload)
	assert.Equal(t, 1, receive(t, b).Payload)
}

func TestMemoryHub_CancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()

	ch, cancel, err := hub.Subscribe(ctx, "runs")
	require.NoError(t, err)
	cancel()

	require.NoError(t, hub.Broadcast(ctx, Message{Channel: "runs", Payload: "late"}))

	msg, ok := <-ch
	assert.False(t, ok, "channel closes on cancel so range loops terminate")
	assert.Zero(t, msg)
}

func TestMemoryHub_CancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()

	ch, cancel, err := hub.Subscribe(ctx, "runs")
	require.NoError(t, err)

	cancel()
	assert.NotPanics(t, cancel)

	_, ok := <-ch
	assert.False(t, ok)
}

func TestMemoryHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	ctx := context.Background()
	hub := NewMemoryHub()

	ch, cancel, err := hub.Subscribe(ctx, "runs")
	require.NoError(t, err)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < defaultChannelBuffer*2; i++ {
			_ = hub.Broadcast(ctx, Message{Channel: "runs", Payload: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}

	assert.Len(t, ch, defaultChannelBuffer)
}

func TestMemoryHub_CancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := hub.Subscribe(ctx, "runs")
	assert.Error(t, err)
	assert.Error(t, hub.Broadcast(ctx, Message{Channel: "runs"}))
}
