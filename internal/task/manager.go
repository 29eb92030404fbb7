package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/phrazzld/echopod-api/internal/domain"
	"github.com/phrazzld/echopod-api/internal/events"
)

// DefaultRetention is how long task records are kept before the cleanup
// sweep removes them. The store's own TTL acts as the passive backstop.
const DefaultRetention = 7 * 24 * time.Hour

// Manager owns the task lifecycle. It is the only component permitted to
// write task records; work bodies and handlers go through its operations and
// never mutate a Task directly.
//
// For a single task id, transitions are applied in the order received from a
// single caller. There is no cross-task ordering guarantee, and the
// broadcast stream is advisory: the durable record is the source of truth.
type Manager struct {
	store       TaskStore
	broadcaster *events.Broadcaster
	retention   time.Duration
	logger      *slog.Logger
}

// NewManager creates a Manager on the given store and broadcaster. A
// non-positive retention falls back to DefaultRetention.
func NewManager(store TaskStore, broadcaster *events.Broadcaster, retention time.Duration, logger *slog.Logger) *Manager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Manager{
		store:       store,
		broadcaster: broadcaster,
		retention:   retention,
		logger:      logger.With("component", "task_manager"),
	}
}

// Subscribe returns a new independent receiver over the broadcast stream.
// Every mutation publishes exactly one TaskUpdate to all current
// subscribers; a subscriber that falls behind silently misses events.
func (m *Manager) Subscribe() *events.Subscription {
	return m.broadcaster.Subscribe()
}

// CreateTask allocates a new task id, persists a PENDING record with zero
// progress, publishes the initial update and returns the id.
func (m *Manager) CreateTask(ctx context.Context, taskType string, userID int64) (string, error) {
	task := domain.NewTask(taskType, userID)

	if err := m.store.SaveTask(ctx, task); err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}

	m.logger.Debug("task created",
		"task_id", task.ID,
		"task_type", taskType,
		"user_id", userID)

	m.publish(task)
	return task.ID, nil
}

// UpdateProgress records incremental progress for a task. Progress is
// clamped to [0, 100], the message overwrites the previous one, and the
// first positive progress on a PENDING task moves it to the running state.
// Returns store.ErrTaskNotFound if the id is unknown or expired.
func (m *Manager) UpdateProgress(ctx context.Context, taskID string, progress float64, message string) error {
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	if task.Status.IsTerminal() {
		// Accepted as an overwrite, but a caller reporting progress on a
		// finished task is a bug worth surfacing.
		m.logger.Warn("progress update on terminal task",
			"task_id", taskID,
			"status", task.Status)
	}

	task.Progress = domain.ClampProgress(progress)
	task.Message = message
	task.UpdatedAt = time.Now().UTC()
	if task.Status == domain.TaskStatusPending && task.Progress > 0 {
		task.Status = domain.TaskStatusRunning
	}

	if err := m.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to persist progress for task %s: %w", taskID, err)
	}

	m.publish(task)
	return nil
}

// CompleteTask forces the task into the SUCCESS state with full progress and
// the given result payload. Callers must call it at most once per task.
func (m *Manager) CompleteTask(ctx context.Context, taskID string, result json.RawMessage, message string) error {
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	if task.Status.IsTerminal() {
		m.logger.Warn("completing an already terminal task",
			"task_id", taskID,
			"status", task.Status)
	}

	task.Status = domain.TaskStatusCompleted
	task.Progress = 100
	task.Message = message
	task.Result = result
	task.UpdatedAt = time.Now().UTC()

	if err := m.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to persist completion for task %s: %w", taskID, err)
	}

	m.logger.Info("task completed", "task_id", taskID, "task_type", task.TaskType)
	m.publish(task)
	return nil
}

// FailTask forces the task into the FAILED state. The last known progress
// value is preserved and the message is set to the error description, which
// is the only detail polling clients ever see.
func (m *Manager) FailTask(ctx context.Context, taskID string, errorMessage string) error {
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	if task.Status.IsTerminal() {
		m.logger.Warn("failing an already terminal task",
			"task_id", taskID,
			"status", task.Status)
	}

	task.Status = domain.TaskStatusFailed
	task.Message = errorMessage
	task.UpdatedAt = time.Now().UTC()

	if err := m.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to persist failure for task %s: %w", taskID, err)
	}

	m.logger.Info("task failed", "task_id", taskID, "task_type", task.TaskType, "message", errorMessage)
	m.publish(task)
	return nil
}

// GetTask reads the durable record for one task.
// Returns store.ErrTaskNotFound if the id is unknown or expired.
func (m *Manager) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	return m.store.GetTask(ctx, taskID)
}

// GetUserTasks returns all of a user's stored tasks, newest first. This
// scans every stored record; high-frequency pollers should subscribe to the
// broadcast stream instead.
func (m *Manager) GetUserTasks(ctx context.Context, userID int64) ([]*domain.Task, error) {
	all, err := m.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	tasks := make([]*domain.Task, 0, len(all))
	for _, t := range all {
		if t.UserID == userID {
			tasks = append(tasks, t)
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// ActiveTasks returns the user's non-terminal tasks, newest first.
func (m *Manager) ActiveTasks(ctx context.Context, userID int64) ([]*domain.Task, error) {
	tasks, err := m.GetUserTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	active := make([]*domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Status.IsTerminal() {
			active = append(active, t)
		}
	}
	return active, nil
}

// CleanupOldTasks deletes records created before the retention window and
// returns how many were removed. Safe to run concurrently with normal
// operation: deletes are atomic per key and live records are never mutated.
func (m *Manager) CleanupOldTasks(ctx context.Context) (int, error) {
	all, err := m.store.ListTasks(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-m.retention)
	removed := 0
	for _, t := range all {
		if t.CreatedAt.Before(cutoff) {
			if err := m.store.DeleteTask(ctx, t.ID); err != nil {
				m.logger.Error("failed to delete expired task",
					"task_id", t.ID,
					"error", err)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		m.logger.Info("cleaned up old tasks", "removed", removed)
	}
	return removed, nil
}

// publish emits the broadcast projection of the task's current state.
func (m *Manager) publish(task *domain.Task) {
	update := domain.TaskUpdate{
		TaskID:    task.ID,
		UserID:    task.UserID,
		TaskType:  task.TaskType,
		Status:    task.Status,
		Progress:  task.Progress,
		Message:   task.Message,
		StartedAt: task.CreatedAt,
	}
	if task.Status.IsTerminal() {
		update.Result = task.Result
		completed := task.UpdatedAt
		update.CompletedAt = &completed
	}
	m.broadcaster.Publish(update)
}
