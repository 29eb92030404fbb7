package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/echopod-api/internal/api"
	apimiddleware "github.com/phrazzld/echopod-api/internal/api/middleware"
	"github.com/phrazzld/echopod-api/internal/ws"
)

// setupRouter builds the HTTP surface: task inspection, task-spawning
// operations, the admin endpoints and the WebSocket progress stream.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	authHandler := api.NewAuthHandler(app.userStore, app.passwords, app.jwtService, app.logger)
	taskHandler := api.NewTaskHandler(app.taskManager, app.logger)
	downloadHandler := api.NewDownloadHandler(app.spawner, app.downloadService, app.logger)
	importHandler := api.NewImportHandler(app.spawner, app.importService, app.logger)
	adminHandler := api.NewAdminHandler(app.spawner, app.taskManager, app.refreshService, app.logger)
	wsHandler := ws.NewHandler(app.taskManager, app.wsSubs, app.apiKeys, app.logger)
	authMiddleware := apimiddleware.NewAuthMiddleware(app.jwtService, app.apiKeys)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)

		// The WebSocket upgrade authenticates through its api_key query
		// parameter, not the header middleware.
		r.Get("/tasks/progress/{userID}", wsHandler.TaskProgress)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Get("/tasks/{taskID}", taskHandler.GetTask)
			r.Get("/tasks/user/{userID}", taskHandler.GetUserTasks)
			r.Get("/tasks/active", taskHandler.GetActiveTasks)

			r.Post("/episodes/{episodeID}/download", downloadHandler.DownloadEpisode)
			r.Post("/podcasts/{podcastID}/download-all", downloadHandler.DownloadAllEpisodes)
			r.Post("/import/opml", importHandler.ImportOPML)

			r.Group(func(r chi.Router) {
				r.Use(apimiddleware.RequireAdmin)
				r.Post("/admin/refresh", adminHandler.RefreshAllFeeds)
				r.Post("/admin/tasks/cleanup", adminHandler.CleanupTasks)
			})
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
