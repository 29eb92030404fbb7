package ws

import (
	"context"
	"sync"

	"github.com/phrazzld/echopod-api/internal/domain"
	"github.com/phrazzld/echopod-api/internal/events"
)

// SubscriptionManager maintains the mapping from user id to that user's live
// outbound channels. A user may hold several connections at once (multiple
// tabs); every one of them receives every update for that user.
//
// The map is mutated only under the write lock. Broadcasting copies the
// channel list under the read lock and sends after releasing it, so a slow
// consumer never blocks connection add/remove.
type SubscriptionManager struct {
	mu          sync.RWMutex
	connections map[int64][]chan domain.TaskUpdate
}

// NewSubscriptionManager creates an empty SubscriptionManager.
func NewSubscriptionManager() *SubscriptionManager {
	return &SubscriptionManager{
		connections: make(map[int64][]chan domain.TaskUpdate),
	}
}

// AddConnection registers an outbound channel for a user.
func (m *SubscriptionManager) AddConnection(userID int64, ch chan domain.TaskUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[userID] = append(m.connections[userID], ch)
}

// RemoveConnection deregisters a specific channel. When it was the user's
// last channel the user entry is dropped entirely, so connection churn does
// not grow the map.
func (m *SubscriptionManager) RemoveConnection(userID int64, ch chan domain.TaskUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chans := m.connections[userID]
	for i, c := range chans {
		if c == ch {
			chans = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(chans) == 0 {
		delete(m.connections, userID)
	} else {
		m.connections[userID] = chans
	}
}

// BroadcastToUser delivers an update to every channel registered for the
// user. Sends are non-blocking: a full channel misses the update rather than
// stalling the broadcast.
func (m *SubscriptionManager) BroadcastToUser(userID int64, update domain.TaskUpdate) {
	m.mu.RLock()
	chans := make([]chan domain.TaskUpdate, len(m.connections[userID]))
	copy(chans, m.connections[userID])
	m.mu.RUnlock()

	for _, ch := range chans {
		select {
		case ch <- update:
		default:
		}
	}
}

// Fanout routes the broadcast stream into per-user connection channels.
// It runs until the context is cancelled or the subscription closes, and
// is normally launched once at startup with a subscription taken from the
// task manager.
func Fanout(ctx context.Context, sub *events.Subscription, subs *SubscriptionManager) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-sub.Updates():
			if !ok {
				return
			}
			subs.BroadcastToUser(update.UserID, update)
		}
	}
}

// ConnectionCount returns the number of live channels for a user.
func (m *SubscriptionManager) ConnectionCount(userID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections[userID])
}
