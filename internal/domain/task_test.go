package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	t.Parallel()

	task := NewTask("import_opml", 42)

	_, err := uuid.Parse(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "import_opml", task.TaskType)
	assert.Equal(t, int64(42), task.UserID)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Zero(t, task.Progress)
	assert.Equal(t, task.CreatedAt, task.UpdatedAt)
	assert.Equal(t, task.CreatedAt.UTC(), task.CreatedAt)
}

func TestNewTask_UniqueIDs(t *testing.T) {
	t.Parallel()

	a := NewTask("feed_refresh", 1)
	b := NewTask("feed_refresh", 1)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestTaskStatusIsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, TaskStatusPending.IsTerminal())
	assert.False(t, TaskStatusRunning.IsTerminal())
	assert.True(t, TaskStatusCompleted.IsTerminal())
	assert.True(t, TaskStatusFailed.IsTerminal())
}

func TestClampProgress(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, ClampProgress(-5))
	assert.Equal(t, 0.0, ClampProgress(0))
	assert.Equal(t, 42.5, ClampProgress(42.5))
	assert.Equal(t, 100.0, ClampProgress(100))
	assert.Equal(t, 100.0, ClampProgress(150))
}
