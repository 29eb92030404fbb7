package task_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/echopod-api/internal/domain"
	"github.com/phrazzld/echopod-api/internal/task"
)

func newTestSpawner(t *testing.T) (*task.Spawner, *task.Manager) {
	t.Helper()
	m, _ := newTestManager(t)
	return task.NewSpawner(m, testLogger()), m
}

func awaitTerminal(t *testing.T, m *task.Manager, taskID string) *domain.Task {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := m.GetTask(context.Background(), taskID)
		require.NoError(t, err)
		if got.Status.IsTerminal() {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("task never reached a terminal state")
	return nil
}

func TestSpawn_Success(t *testing.T) {
	t.Parallel()

	s, m := newTestSpawner(t)

	taskID, err := s.Spawn(task.TaskTypeImportOPML, 3, func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"subscribed":2}`), nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	s.Wait()
	got := awaitTerminal(t, m, taskID)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	assert.Equal(t, 100.0, got.Progress)
	assert.JSONEq(t, `{"subscribed":2}`, string(got.Result))
}

func TestSpawn_Error(t *testing.T) {
	t.Parallel()

	s, m := newTestSpawner(t)

	taskID, err := s.Spawn(task.TaskTypeDownloadEpisode, 3, func(ctx context.Context) (json.RawMessage, error) {
		return nil, errors.New("host returned status 503")
	})
	require.NoError(t, err)

	s.Wait()
	got := awaitTerminal(t, m, taskID)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Equal(t, "host returned status 503", got.Message)
}

func TestSpawn_PanicBecomesFailure(t *testing.T) {
	t.Parallel()

	s, m := newTestSpawner(t)

	taskID, err := s.Spawn(task.TaskTypeFeedRefresh, 0, func(ctx context.Context) (json.RawMessage, error) {
		panic("unexpected nil podcast")
	})
	require.NoError(t, err)

	s.Wait()
	got := awaitTerminal(t, m, taskID)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Contains(t, got.Message, "task panicked")
	assert.Contains(t, got.Message, "unexpected nil podcast")
}

func TestSpawnWithProgress_ReportsThroughManager(t *testing.T) {
	t.Parallel()

	s, m := newTestSpawner(t)

	release := make(chan struct{})
	reported := make(chan struct{})
	taskID, err := s.SpawnWithProgress(task.TaskTypeDownloadEpisode, 3,
		func(ctx context.Context, reporter task.ProgressReporter) (json.RawMessage, error) {
			if err := reporter.Report(ctx, 42, "halfway-ish"); err != nil {
				return nil, err
			}
			close(reported)
			<-release
			return nil, nil
		})
	require.NoError(t, err)

	select {
	case <-reported:
	case <-time.After(2 * time.Second):
		t.Fatal("work body never reported progress")
	}

	got, err := m.GetTask(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusRunning, got.Status)
	assert.Equal(t, 42.0, got.Progress)
	assert.Equal(t, "halfway-ish", got.Message)

	close(release)
	s.Wait()
	got = awaitTerminal(t, m, taskID)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
}
