// Package events provides the in-process broadcast channel that carries task
// progress updates from the task manager to its subscribers.
//
// The broadcaster is an explicitly constructed, dependency-injected component
// rather than process-global state, so tests can build isolated instances.
// Delivery is best-effort: each subscriber has a bounded buffer and a
// subscriber that falls behind misses events instead of stalling publishers.
// Consumers that need a complete picture read the durable task record.
package events
