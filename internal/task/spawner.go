package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Spawner turns "run this unit of work, tracked as a task" into a single
// call that returns a task id immediately.
//
// Spawned work runs on its own goroutine with a context detached from the
// caller: cancelling or disconnecting the originating request does not
// cancel the task. There is no cooperative cancellation from the outside;
// once spawned, work runs to completion or failure on its own. Each spawned
// unit produces exactly one terminal transition, even if the body panics.
type Spawner struct {
	manager *Manager
	logger  *slog.Logger

	// wg tracks in-flight work so tests and shutdown can drain.
	wg sync.WaitGroup
}

// NewSpawner creates a Spawner that records outcomes through the given
// Manager.
func NewSpawner(manager *Manager, logger *slog.Logger) *Spawner {
	return &Spawner{
		manager: manager,
		logger:  logger.With("component", "task_spawner"),
	}
}

// Spawn creates a task record and launches work on an independent goroutine,
// returning the task id without waiting. On success the work's return value
// becomes the task result; on error or panic the task is failed with the
// error's description.
func (s *Spawner) Spawn(taskType string, userID int64, work WorkFunc) (string, error) {
	return s.SpawnWithProgress(taskType, userID,
		func(ctx context.Context, _ ProgressReporter) (json.RawMessage, error) {
			return work(ctx)
		})
}

// SpawnWithProgress is Spawn with a ProgressReporter bound to the new task
// id passed into the work body.
func (s *Spawner) SpawnWithProgress(taskType string, userID int64, work ProgressWorkFunc) (string, error) {
	// The record write and the work body both run on detached contexts:
	// a task id, once returned, must outlive the request that asked for it.
	taskID, err := s.manager.CreateTask(context.Background(), taskType, userID)
	if err != nil {
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(taskID, taskType, work)
	}()

	return taskID, nil
}

// Wait blocks until all currently spawned work has reached its terminal
// transition. Used by tests and graceful shutdown.
func (s *Spawner) Wait() {
	s.wg.Wait()
}

// run executes the work body and records exactly one terminal transition.
func (s *Spawner) run(taskID, taskType string, work ProgressWorkFunc) {
	ctx := context.Background()
	reporter := NewProgressReporter(s.manager, taskID)

	result, err := s.execute(ctx, reporter, work)
	if err != nil {
		if failErr := s.manager.FailTask(ctx, taskID, err.Error()); failErr != nil {
			s.logger.Error("failed to mark task as failed",
				"task_id", taskID,
				"task_type", taskType,
				"error", failErr)
		}
		return
	}

	if completeErr := s.manager.CompleteTask(ctx, taskID, result, ""); completeErr != nil {
		s.logger.Error("failed to mark task as completed",
			"task_id", taskID,
			"task_type", taskType,
			"error", completeErr)
	}
}

// execute invokes the work body, converting a panic into an ordinary error
// so the caller records a single Failed transition instead of crashing the
// process.
func (s *Spawner) execute(ctx context.Context, reporter ProgressReporter, work ProgressWorkFunc) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			s.logger.Error("recovered panic in spawned task", "panic", r)
		}
	}()

	return work(ctx, reporter)
}
