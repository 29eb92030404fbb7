package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/echopod-api/internal/api/shared"
	"github.com/phrazzld/echopod-api/internal/service"
	"github.com/phrazzld/echopod-api/internal/task"
)

// DownloadHandler spawns episode download tasks.
type DownloadHandler struct {
	spawner   *task.Spawner
	downloads *service.DownloadService
	logger    *slog.Logger
}

// NewDownloadHandler creates a DownloadHandler.
func NewDownloadHandler(
	spawner *task.Spawner,
	downloads *service.DownloadService,
	log *slog.Logger,
) *DownloadHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DownloadHandler{
		spawner:   spawner,
		downloads: downloads,
		logger:    log.With(slog.String("component", "download_handler")),
	}
}

// DownloadEpisode handles POST /api/episodes/{episodeID}/download.
// The download runs in the background; the response carries only the
// task id to follow.
func (h *DownloadHandler) DownloadEpisode(w http.ResponseWriter, r *http.Request) {
	episodeID, ok := pathID(w, r, "episodeID")
	if !ok {
		return
	}
	userID, ok := shared.UserID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	taskID, err := h.spawner.SpawnWithProgress(task.TaskTypeDownloadEpisode, userID,
		func(ctx context.Context, reporter task.ProgressReporter) (json.RawMessage, error) {
			return h.downloads.DownloadEpisode(ctx, reporter, userID, episodeID)
		})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, SpawnResponse{TaskID: taskID})
}

// DownloadAllEpisodes handles POST /api/podcasts/{podcastID}/download-all.
func (h *DownloadHandler) DownloadAllEpisodes(w http.ResponseWriter, r *http.Request) {
	podcastID, ok := pathID(w, r, "podcastID")
	if !ok {
		return
	}
	userID, ok := shared.UserID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	taskID, err := h.spawner.SpawnWithProgress(task.TaskTypeDownloadAllEpisodes, userID,
		func(ctx context.Context, reporter task.ProgressReporter) (json.RawMessage, error) {
			return h.downloads.DownloadAllEpisodes(ctx, reporter, userID, podcastID)
		})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, SpawnResponse{TaskID: taskID})
}

// pathID parses a numeric chi path parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid "+param)
		return 0, false
	}
	return id, true
}
