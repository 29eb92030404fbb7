package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a background task.
//
// The wire names (PENDING, DOWNLOADING, SUCCESS, FAILED) are kept for
// compatibility with existing clients that key on these strings.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusRunning   TaskStatus = "DOWNLOADING"
	TaskStatusCompleted TaskStatus = "SUCCESS"
	TaskStatusFailed    TaskStatus = "FAILED"
)

// IsTerminal reports whether the status is a final state. No transition is
// defined out of a terminal state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// SystemUserID is the reserved owner for tasks started by the server itself
// rather than on behalf of an end user.
const SystemUserID int64 = 0

// Task is the durable record of one tracked unit of background work.
//
// Tasks are created in the PENDING state with zero progress and are mutated
// only by the task manager; work bodies and handlers never write a Task
// directly. Records expire from the store after the retention window.
type Task struct {
	// ID is an opaque unique identifier, immutable after creation.
	ID string `json:"id"`

	// TaskType is a free-form tag identifying the kind of work,
	// e.g. "download_episode" or "import_opml".
	TaskType string `json:"task_type"`

	// UserID identifies the owning user. SystemUserID marks tasks not tied
	// to an end user.
	UserID int64 `json:"user_id"`

	Status TaskStatus `json:"status"`

	// Progress is a percentage in [0, 100]. Callers are expected to only
	// increase it, but the type does not enforce monotonicity.
	Progress float64 `json:"progress"`

	// Message is a human-readable status string, overwritten on every
	// update. No history is retained.
	Message string `json:"message,omitempty"`

	// Result holds the structured payload of a successful completion.
	// It is empty unless Status is SUCCESS.
	Result json.RawMessage `json:"result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTask creates a Task in its initial state with a freshly allocated id.
func NewTask(taskType string, userID int64) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        uuid.New().String(),
		TaskType:  taskType,
		UserID:    userID,
		Status:    TaskStatusPending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ClampProgress clamps a progress value into the valid [0, 100] range.
func ClampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// TaskUpdate is the ephemeral broadcast projection of a Task transition.
//
// It is published once per task mutation and never persisted on its own.
// Consumers that miss an update fall back to reading the durable Task
// record, which is always the source of truth.
type TaskUpdate struct {
	TaskID   string     `json:"task_id"`
	UserID   int64      `json:"user_id"`
	TaskType string     `json:"type"`
	Status   TaskStatus `json:"status"`
	Progress float64    `json:"progress"`

	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
