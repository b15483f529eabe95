package realtime

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultChannelBuffer = 64

// Message is a broadcast payload delivered to every subscriber of a channel.
type Message struct {
	Channel string `json:"channel"`
	Payload any    `json:"payload,omitempty"`
}

// Hub provides channel-keyed pub/sub for socket clients.
type Hub interface {
	Broadcast(ctx context.Context, msg Message) error
	Subscribe(ctx context.Context, channel string) (<-chan Message, func(), error)
}

// subscriber holds the delivery channel for a single subscription.
type subscriber struct {
	ch      chan Message
	channel string
}

// MemoryHub is an in-memory Hub implementation using channels.
type MemoryHub struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	seq  atomic.Uint64
}

// NewMemoryHub creates a new MemoryHub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		subs: make(map[uint64]*subscriber),
	}
}

// Broadcast sends a message to every subscriber of its channel.
// Non-blocking: if a subscriber's buffer is full the message is dropped.
func (h *MemoryHub) Broadcast(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.channel != msg.Channel {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// backpressure: drop message for slow subscriber
		}
	}
	return nil
}

// Subscribe creates a new subscription to the named channel.
// Returns a receive-only channel, a cancel function, and any error.
func (h *MemoryHub) Subscribe(ctx context.Context, channel string) (<-chan Message, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	id := h.seq.Add(1)
	ch := make(chan Message, defaultChannelBuffer)

	h.mu.Lock()
	h.subs[id] = &subscriber{ch: ch, channel: channel}
	h.mu.Unlock()

	// Closing under the write lock cannot race Broadcast's sends, which hold
	// the read lock. The map check makes a second cancel a no-op.
	cancel := func() {
		h.mu.Lock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub.ch)
		}
		h.mu.Unlock()
	}

	return ch, cancel, nil
}
