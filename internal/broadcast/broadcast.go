// Package broadcast fans newly ingested log events out to live stream
// subscribers. It is a purely in-process hub: no persistence, no replay.
// A reconnecting viewer re-fetches recent history through the query API.
package broadcast

import (
	"sync"

	"log/slog"

	"github.com/martijnd/featherlog/internal/domain"
)

const defaultBuffer = 100

// Broadcaster delivers published events to every active subscription.
// Publish never blocks on a slow subscriber: each subscription has its own
// buffered channel and events are dropped per-subscriber when it fills up.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	logger *slog.Logger
}

// Subscription is a handle to a live event feed. Events are received from
// Events(); Cancel releases the subscription and is safe to call repeatedly.
type Subscription struct {
	ch   chan domain.LogEvent
	b    *Broadcaster
	once sync.Once
}

// New constructs a Broadcaster. buffer is the per-subscriber channel depth;
// values below 1 fall back to the default.
func New(buffer int, logger *slog.Logger) *Broadcaster {
	if buffer < 1 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscription. Only events published after this
// call are delivered to it.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan domain.LogEvent, b.buffer), b: b}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish delivers event to all current subscriptions. Publishing with zero
// subscribers is a no-op.
func (b *Broadcaster) Publish(event domain.LogEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			// Subscriber buffer full: drop for this subscriber only.
			b.logger.Warn("dropping log event for slow stream subscriber",
				"log_id", event.ID, "project_id", event.ProjectID)
		}
	}
}

// SubscriberCount reports the number of active subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
	// Closing under the write lock cannot race Publish, which sends while
	// holding the read lock.
	close(sub.ch)
}

// Events returns the receive channel for this subscription. The channel is
// closed by Cancel.
func (s *Subscription) Events() <-chan domain.LogEvent {
	return s.ch
}

// Cancel removes the subscription from the hub. Idempotent; it never affects
// other subscriptions.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.b.remove(s)
	})
}
