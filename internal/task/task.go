package task

import (
	"context"
	"encoding/json"

	"github.com/phrazzld/echopod-api/internal/domain"
)

// Common task type tags. Task types are free-form strings; these constants
// only cover the types spawned by this repository's own handlers and jobs.
const (
	TaskTypeDownloadEpisode     = "download_episode"
	TaskTypeDownloadAllEpisodes = "download_all_episodes"
	TaskTypeImportOPML          = "import_opml"
	TaskTypeFeedRefresh         = "feed_refresh"
	TaskTypeCleanupTasks        = "cleanup_tasks"
)

// TaskStore defines the durable persistence the Manager writes task records
// through. Implementations must be safe for concurrent use and expire
// records on their own after the retention window.
type TaskStore interface {
	// SaveTask persists the record, refreshing its expiry.
	SaveTask(ctx context.Context, task *domain.Task) error

	// GetTask loads a record by id.
	// Returns store.ErrTaskNotFound for unknown or expired ids.
	GetTask(ctx context.Context, id string) (*domain.Task, error)

	// DeleteTask removes a record. Removing an absent record is a no-op.
	DeleteTask(ctx context.Context, id string) error

	// ListTasks enumerates all stored records, in no particular order.
	ListTasks(ctx context.Context) ([]*domain.Task, error)
}

// ProgressReporter is the capability handed to a running work body. Its only
// operation forwards a progress percentage and message for a fixed task id.
type ProgressReporter interface {
	// Report publishes incremental progress. Progress is clamped to
	// [0, 100]. A failure (for example the task expired mid-run) should be
	// logged by the caller but is not fatal to the work body unless the
	// body chooses to treat it that way.
	Report(ctx context.Context, progress float64, message string) error
}

// WorkFunc is a unit of background work that reports no progress. The
// returned payload becomes the task's result on success.
type WorkFunc func(ctx context.Context) (json.RawMessage, error)

// ProgressWorkFunc is a unit of background work that receives a
// ProgressReporter bound to its own task id.
type ProgressWorkFunc func(ctx context.Context, reporter ProgressReporter) (json.RawMessage, error)
