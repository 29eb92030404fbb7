package task

import "context"

// managerReporter forwards progress to the Manager for a fixed, closed-over
// task id. It is the ProgressReporter implementation handed to spawned work
// bodies.
type managerReporter struct {
	taskID  string
	manager *Manager
}

// NewProgressReporter binds a reporter to one task id. Exposed so callers
// outside the Spawner (for example the scheduler's tracked jobs) can hand a
// reporter to a work body of their own.
func NewProgressReporter(manager *Manager, taskID string) ProgressReporter {
	return &managerReporter{taskID: taskID, manager: manager}
}

func (r *managerReporter) Report(ctx context.Context, progress float64, message string) error {
	return r.manager.UpdateProgress(ctx, r.taskID, progress, message)
}
