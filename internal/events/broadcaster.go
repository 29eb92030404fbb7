package events

import (
	"log/slog"
	"sync"

	"github.com/phrazzld/echopod-api/internal/domain"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity used when
// the broadcaster is constructed with a non-positive buffer size.
const DefaultSubscriberBuffer = 256

// Broadcaster fans task updates out to any number of independent
// subscribers. Publishing never blocks: an update that does not fit in a
// subscriber's buffer is dropped for that subscriber only.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	bufSize int
	logger  *slog.Logger
}

// NewBroadcaster creates a Broadcaster whose subscribers each buffer up to
// bufSize updates. A non-positive bufSize falls back to
// DefaultSubscriberBuffer.
func NewBroadcaster(bufSize int, logger *slog.Logger) *Broadcaster {
	if bufSize <= 0 {
		bufSize = DefaultSubscriberBuffer
	}
	return &Broadcaster{
		subs:    make(map[*Subscription]struct{}),
		bufSize: bufSize,
		logger:  logger.With("component", "task_broadcaster"),
	}
}

// Subscribe registers a new independent receiver over the broadcast stream.
// The caller must call Close on the returned Subscription when done, or its
// buffer leaks until process exit.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{
		ch: make(chan domain.TaskUpdate, b.bufSize),
		b:  b,
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Publish delivers the update to every current subscriber. Subscribers whose
// buffers are full miss the update; publishers are never blocked by a slow
// or absent consumer.
func (b *Broadcaster) Publish(update domain.TaskUpdate) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.ch <- update:
		default:
			b.logger.Debug("subscriber buffer full, dropping update",
				"task_id", update.TaskID,
				"user_id", update.UserID)
		}
	}
}

// SubscriberCount returns the number of currently registered subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Subscription is one independent receiver of the broadcast stream.
type Subscription struct {
	ch        chan domain.TaskUpdate
	b         *Broadcaster
	closeOnce sync.Once
}

// Updates returns the channel task updates arrive on. The channel is closed
// when the subscription is closed.
func (s *Subscription) Updates() <-chan domain.TaskUpdate {
	return s.ch
}

// Close deregisters the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.b.mu.Lock()
		delete(s.b.subs, s)
		s.b.mu.Unlock()
		close(s.ch)
	})
}
