package task_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/echopod-api/internal/domain"
	"github.com/phrazzld/echopod-api/internal/events"
	"github.com/phrazzld/echopod-api/internal/platform/redisstore"
	"github.com/phrazzld/echopod-api/internal/store"
	"github.com/phrazzld/echopod-api/internal/task"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

func newTestManager(t *testing.T) (*task.Manager, *redisstore.TaskStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.Default()
	ts := redisstore.NewTaskStore(client, 30*24*time.Hour, logger)
	broadcaster := events.NewBroadcaster(16, logger)
	return task.NewManager(ts, broadcaster, 7*24*time.Hour, logger), ts
}

func drain(t *testing.T, sub *events.Subscription) domain.TaskUpdate {
	t.Helper()
	select {
	case update := <-sub.Updates():
		return update
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for task update")
		return domain.TaskUpdate{}
	}
}

func TestCreateTask_PublishesInitialUpdate(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	sub := m.Subscribe()
	defer sub.Close()

	taskID, err := m.CreateTask(context.Background(), task.TaskTypeFeedRefresh, 9)
	require.NoError(t, err)

	update := drain(t, sub)
	assert.Equal(t, taskID, update.TaskID)
	assert.Equal(t, int64(9), update.UserID)
	assert.Equal(t, domain.TaskStatusPending, update.Status)
	assert.Zero(t, update.Progress)
	assert.Nil(t, update.CompletedAt)
}

func TestUpdateProgress_ClampsAndActivates(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	ctx := context.Background()

	taskID, err := m.CreateTask(ctx, task.TaskTypeDownloadEpisode, 2)
	require.NoError(t, err)

	require.NoError(t, m.UpdateProgress(ctx, taskID, 150, "going fast"))

	got, err := m.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.Progress)
	assert.Equal(t, "going fast", got.Message)
	// First positive progress moves PENDING to the running state.
	assert.Equal(t, domain.TaskStatusRunning, got.Status)

	// Messages overwrite, never accumulate.
	require.NoError(t, m.UpdateProgress(ctx, taskID, 60, "new message"))
	got, err = m.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, "new message", got.Message)
	assert.Equal(t, 60.0, got.Progress)
}

func TestUpdateProgress_ZeroKeepsPending(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	ctx := context.Background()

	taskID, err := m.CreateTask(ctx, task.TaskTypeImportOPML, 2)
	require.NoError(t, err)
	require.NoError(t, m.UpdateProgress(ctx, taskID, 0, "queued"))

	got, err := m.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
}

func TestUpdateProgress_UnknownTask(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	err := m.UpdateProgress(context.Background(), "missing", 10, "x")
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestCompleteTask(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	ctx := context.Background()
	sub := m.Subscribe()
	defer sub.Close()

	taskID, err := m.CreateTask(ctx, task.TaskTypeImportOPML, 4)
	require.NoError(t, err)
	drain(t, sub) // initial

	result := json.RawMessage(`{"subscribed":3}`)
	require.NoError(t, m.CompleteTask(ctx, taskID, result, "done"))

	got, err := m.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	assert.Equal(t, 100.0, got.Progress)
	assert.JSONEq(t, `{"subscribed":3}`, string(got.Result))

	update := drain(t, sub)
	assert.Equal(t, domain.TaskStatusCompleted, update.Status)
	assert.NotNil(t, update.CompletedAt)
	assert.JSONEq(t, `{"subscribed":3}`, string(update.Result))
}

func TestFailTask_PreservesProgress(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	ctx := context.Background()

	taskID, err := m.CreateTask(ctx, task.TaskTypeDownloadEpisode, 4)
	require.NoError(t, err)
	require.NoError(t, m.UpdateProgress(ctx, taskID, 37, "downloading"))
	require.NoError(t, m.FailTask(ctx, taskID, "connection reset"))

	got, err := m.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, 37.0, got.Progress)
	assert.Equal(t, "connection reset", got.Message)
	assert.Empty(t, got.Result)
}

func TestGetUserTasks_FiltersAndSorts(t *testing.T) {
	t.Parallel()

	m, ts := newTestManager(t)
	ctx := context.Background()

	// Backdate the first task so ordering is deterministic.
	old := domain.NewTask(task.TaskTypeFeedRefresh, 5)
	old.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, ts.SaveTask(ctx, old))

	newerID, err := m.CreateTask(ctx, task.TaskTypeImportOPML, 5)
	require.NoError(t, err)
	_, err = m.CreateTask(ctx, task.TaskTypeImportOPML, 6)
	require.NoError(t, err)

	tasks, err := m.GetUserTasks(ctx, 5)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, newerID, tasks[0].ID)
	assert.Equal(t, old.ID, tasks[1].ID)
}

func TestActiveTasks_ExcludesTerminal(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	ctx := context.Background()

	activeID, err := m.CreateTask(ctx, task.TaskTypeDownloadAllEpisodes, 8)
	require.NoError(t, err)
	doneID, err := m.CreateTask(ctx, task.TaskTypeDownloadAllEpisodes, 8)
	require.NoError(t, err)
	require.NoError(t, m.CompleteTask(ctx, doneID, nil, ""))
	failedID, err := m.CreateTask(ctx, task.TaskTypeDownloadAllEpisodes, 8)
	require.NoError(t, err)
	require.NoError(t, m.FailTask(ctx, failedID, "boom"))

	active, err := m.ActiveTasks(ctx, 8)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, activeID, active[0].ID)
}

func TestCleanupOldTasks(t *testing.T) {
	t.Parallel()

	m, ts := newTestManager(t)
	ctx := context.Background()

	stale := domain.NewTask(task.TaskTypeFeedRefresh, 1)
	stale.CreatedAt = time.Now().UTC().Add(-8 * 24 * time.Hour)
	require.NoError(t, ts.SaveTask(ctx, stale))

	fresh := domain.NewTask(task.TaskTypeFeedRefresh, 1)
	fresh.CreatedAt = time.Now().UTC().Add(-6 * 24 * time.Hour)
	require.NoError(t, ts.SaveTask(ctx, fresh))

	removed, err := m.CleanupOldTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = m.GetTask(ctx, stale.ID)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
	_, err = m.GetTask(ctx, fresh.ID)
	assert.NoError(t, err)
}
