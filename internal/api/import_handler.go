package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/phrazzld/echopod-api/internal/api/shared"
	"github.com/phrazzld/echopod-api/internal/service"
	"github.com/phrazzld/echopod-api/internal/task"
)

// ImportHandler spawns OPML import tasks.
type ImportHandler struct {
	spawner *task.Spawner
	imports *service.ImportService
	logger  *slog.Logger
}

// NewImportHandler creates an ImportHandler.
func NewImportHandler(
	spawner *task.Spawner,
	imports *service.ImportService,
	log *slog.Logger,
) *ImportHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ImportHandler{
		spawner: spawner,
		imports: imports,
		logger:  log.With(slog.String("component", "import_handler")),
	}
}

// ImportOPML handles POST /api/import/opml.
// The document is parsed eagerly so a malformed upload fails the request
// instead of spawning a task doomed to fail.
func (h *ImportHandler) ImportOPML(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserID(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req ImportOPMLRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	opml := []byte(req.OPML)
	if _, err := service.ParseOPML(opml); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid OPML document", err)
		return
	}

	taskID, err := h.spawner.SpawnWithProgress(task.TaskTypeImportOPML, userID,
		func(ctx context.Context, reporter task.ProgressReporter) (json.RawMessage, error) {
			return h.imports.ImportOPML(ctx, reporter, userID, opml)
		})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, SpawnResponse{TaskID: taskID})
}
