package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/phrazzld/echopod-api/internal/api/shared"
	"github.com/phrazzld/echopod-api/internal/domain"
	"github.com/phrazzld/echopod-api/internal/service"
	"github.com/phrazzld/echopod-api/internal/task"
)

// AdminHandler serves the administrative endpoints: on-demand refresh and
// task store cleanup. Routes using it must sit behind RequireAdmin.
type AdminHandler struct {
	spawner *task.Spawner
	manager *task.Manager
	refresh *service.RefreshService
	logger  *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	spawner *task.Spawner,
	manager *task.Manager,
	refresh *service.RefreshService,
	log *slog.Logger,
) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{
		spawner: spawner,
		manager: manager,
		refresh: refresh,
		logger:  log.With(slog.String("component", "admin_handler")),
	}
}

// RefreshAllFeeds handles POST /api/admin/refresh.
// Spawns a system-owned refresh sweep identical to the scheduled one and
// returns the task id so the admin can watch it.
func (h *AdminHandler) RefreshAllFeeds(w http.ResponseWriter, r *http.Request) {
	taskID, err := h.spawner.SpawnWithProgress(task.TaskTypeFeedRefresh, domain.SystemUserID,
		func(ctx context.Context, reporter task.ProgressReporter) (json.RawMessage, error) {
			return h.refresh.RefreshAllWithProgress(ctx, reporter)
		})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, SpawnResponse{TaskID: taskID})
}

// CleanupTasks handles POST /api/admin/tasks/cleanup.
// Runs the retention sweep synchronously; it is fast enough not to need a
// task of its own.
func (h *AdminHandler) CleanupTasks(w http.ResponseWriter, r *http.Request) {
	removed, err := h.manager.CleanupOldTasks(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, CleanupResponse{Removed: removed})
}
