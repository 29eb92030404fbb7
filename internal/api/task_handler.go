package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/echopod-api/internal/api/shared"
	"github.com/phrazzld/echopod-api/internal/task"
)

// TaskHandler serves the task inspection endpoints: single record lookup
// and per-user listings.
type TaskHandler struct {
	manager *task.Manager
	logger  *slog.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(manager *task.Manager, log *slog.Logger) *TaskHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TaskHandler{
		manager: manager,
		logger:  log.With(slog.String("component", "task_handler")),
	}
}

// GetTask handles GET /api/tasks/{taskID}.
// Any authenticated caller may read any task record by id; task ids are
// unguessable and carry no credentials.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Task ID is required")
		return
	}

	record, err := h.manager.GetTask(r.Context(), taskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, record)
}

// GetUserTasks handles GET /api/tasks/user/{userID}.
// Users may only list their own tasks unless they are administrators.
func (h *TaskHandler) GetUserTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathUserID(w, r)
	if !ok {
		return
	}
	if !h.authorizeUser(w, r, userID) {
		return
	}

	tasks, err := h.manager.GetUserTasks(r.Context(), userID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{Tasks: tasks})
}

// GetActiveTasks handles GET /api/tasks/active?user_id=N.
func (h *TaskHandler) GetActiveTasks(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("user_id")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid user_id")
		return
	}
	if !h.authorizeUser(w, r, userID) {
		return
	}

	tasks, err := h.manager.ActiveTasks(r.Context(), userID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{Tasks: tasks})
}

func (h *TaskHandler) pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "userID")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid user ID")
		return 0, false
	}
	return userID, true
}

// authorizeUser enforces that the caller is the named user or an admin.
func (h *TaskHandler) authorizeUser(w http.ResponseWriter, r *http.Request, userID int64) bool {
	callerID, ok := shared.UserID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return false
	}
	if callerID != userID && !shared.IsAdmin(r.Context()) {
		shared.RespondWithError(w, r, http.StatusForbidden, "You can only view your own tasks")
		return false
	}
	return true
}
