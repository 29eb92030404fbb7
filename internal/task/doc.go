// Package task implements the background task orchestration core: a durable,
// user-scoped tracker for fire-and-forget units of work.
//
// The Manager is the single source of truth for task state. It persists every
// transition to the task store and publishes one TaskUpdate per transition on
// an injected broadcaster. The Spawner launches work bodies on independent
// goroutines, decoupled from the request that started them, and guarantees
// exactly one terminal transition per spawned unit. A ProgressReporter is the
// only capability a work body holds; it knows nothing about storage or
// fan-out.
package task
