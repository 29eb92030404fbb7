package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/echopod-api/internal/api/shared"
	"github.com/phrazzld/echopod-api/internal/domain"
	"github.com/phrazzld/echopod-api/internal/events"
	"github.com/phrazzld/echopod-api/internal/store"
	"github.com/phrazzld/echopod-api/internal/task"
)

// memTaskStore is an in-memory task.TaskStore for handler tests.
type memTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[string]*domain.Task)}
}

func (m *memTaskStore) SaveTask(_ context.Context, t *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *t
	m.tasks[t.ID] = &clone
	return nil
}

func (m *memTaskStore) GetTask(_ context.Context, id string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	clone := *t
	return &clone, nil
}

func (m *memTaskStore) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, id)
	return nil
}

func (m *memTaskStore) ListTasks(_ context.Context) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		clone := *t
		out = append(out, &clone)
	}
	return out, nil
}

func testManager(t *testing.T) *task.Manager {
	t.Helper()
	logger := slog.Default()
	return task.NewManager(newMemTaskStore(), events.NewBroadcaster(8, logger), 0, logger)
}

func newTaskRouter(h *TaskHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/tasks/{taskID}", h.GetTask)
	r.Get("/api/tasks/user/{userID}", h.GetUserTasks)
	r.Get("/api/tasks/active", h.GetActiveTasks)
	return r
}

func asUser(r *http.Request, userID int64, isAdmin bool) *http.Request {
	return r.WithContext(shared.WithUser(r.Context(), userID, isAdmin))
}

func TestGetTask(t *testing.T) {
	t.Parallel()

	manager := testManager(t)
	handler := NewTaskHandler(manager, nil)
	router := newTaskRouter(handler)

	taskID, err := manager.CreateTask(context.Background(), task.TaskTypeFeedRefresh, 3)
	require.NoError(t, err)

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/tasks/"+taskID, nil), 3, false)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), taskID)
	assert.Contains(t, rec.Body.String(), `"PENDING"`)
}

func TestGetTask_NotFound(t *testing.T) {
	t.Parallel()

	handler := NewTaskHandler(testManager(t), nil)
	router := newTaskRouter(handler)

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/tasks/no-such-task", nil), 3, false)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Task not found")
}

func TestGetUserTasks_OwnTasksOnly(t *testing.T) {
	t.Parallel()

	manager := testManager(t)
	handler := NewTaskHandler(manager, nil)
	router := newTaskRouter(handler)

	_, err := manager.CreateTask(context.Background(), task.TaskTypeImportOPML, 7)
	require.NoError(t, err)

	// Owner sees their tasks.
	req := asUser(httptest.NewRequest(http.MethodGet, "/api/tasks/user/7", nil), 7, false)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), task.TaskTypeImportOPML)

	// Another user is rejected.
	req = asUser(httptest.NewRequest(http.MethodGet, "/api/tasks/user/7", nil), 8, false)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// An admin may inspect anyone.
	req = asUser(httptest.NewRequest(http.MethodGet, "/api/tasks/user/7", nil), 1, true)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetUserTasks_Unauthenticated(t *testing.T) {
	t.Parallel()

	handler := NewTaskHandler(testManager(t), nil)
	router := newTaskRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/user/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetActiveTasks_FiltersTerminal(t *testing.T) {
	t.Parallel()

	manager := testManager(t)
	handler := NewTaskHandler(manager, nil)
	router := newTaskRouter(handler)

	activeID, err := manager.CreateTask(context.Background(), task.TaskTypeDownloadEpisode, 5)
	require.NoError(t, err)
	doneID, err := manager.CreateTask(context.Background(), task.TaskTypeDownloadEpisode, 5)
	require.NoError(t, err)
	require.NoError(t, manager.CompleteTask(context.Background(), doneID, nil, "done"))

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/tasks/active?user_id=5", nil), 5, false)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), activeID)
	assert.NotContains(t, rec.Body.String(), doneID)
}

func TestGetActiveTasks_BadUserID(t *testing.T) {
	t.Parallel()

	handler := NewTaskHandler(testManager(t), nil)
	router := newTaskRouter(handler)

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/tasks/active?user_id=abc", nil), 5, false)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
