package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/echopod-api/internal/config"
	"github.com/phrazzld/echopod-api/internal/events"
	"github.com/phrazzld/echopod-api/internal/platform/postgres"
	"github.com/phrazzld/echopod-api/internal/platform/redisstore"
	"github.com/phrazzld/echopod-api/internal/scheduler"
	"github.com/phrazzld/echopod-api/internal/service"
	"github.com/phrazzld/echopod-api/internal/service/auth"
	"github.com/phrazzld/echopod-api/internal/store"
	"github.com/phrazzld/echopod-api/internal/task"
	"github.com/phrazzld/echopod-api/internal/ws"
)

// application holds the shared application dependencies so wiring and
// shutdown live in one place.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *redis.Client

	// Stores
	userStore    store.UserStore
	podcastStore store.PodcastStore
	episodeStore store.EpisodeStore

	// Auth
	jwtService auth.JWTService
	apiKeys    *auth.APIKeyService
	passwords  auth.PasswordVerifier

	// Task orchestration
	broadcaster *events.Broadcaster
	taskManager *task.Manager
	spawner     *task.Spawner
	wsSubs      *ws.SubscriptionManager

	// Work bodies
	refreshService  *service.RefreshService
	downloadService *service.DownloadService
	importService   *service.ImportService
	maintenance     *service.MaintenanceService

	scheduler *scheduler.Scheduler
}

// newApplication wires every component from configuration and the two
// backing connections.
func newApplication(
	cfg *config.Config,
	logger *slog.Logger,
	db *sql.DB,
	redisClient *redis.Client,
) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	app.userStore = postgres.NewPostgresUserStore(db, logger)
	app.podcastStore = postgres.NewPostgresPodcastStore(db, logger)
	app.episodeStore = postgres.NewPostgresEpisodeStore(db, logger)
	app.apiKeys = auth.NewAPIKeyService(app.userStore)
	app.passwords = auth.NewBcryptVerifier()

	retention := time.Duration(cfg.Task.RetentionDays) * 24 * time.Hour
	taskStore := redisstore.NewTaskStore(redisClient, retention, logger)
	app.broadcaster = events.NewBroadcaster(cfg.Task.BroadcastBuffer, logger)
	app.taskManager = task.NewManager(taskStore, app.broadcaster, retention, logger)
	app.spawner = task.NewSpawner(app.taskManager, logger)
	app.wsSubs = ws.NewSubscriptionManager()

	fetcher := service.NewHTTPFeedFetcher(nil)
	app.refreshService = service.NewRefreshService(
		app.podcastStore, app.episodeStore, fetcher, nil, nil, logger)
	app.downloadService = service.NewDownloadService(
		app.episodeStore, nil, cfg.Downloads.Dir, logger)
	app.importService = service.NewImportService(
		app.podcastStore, app.episodeStore, fetcher, logger)
	app.maintenance = service.NewMaintenanceService(
		app.podcastStore, app.episodeStore, fetcher, cfg.Downloads.Dir, logger)

	app.scheduler = scheduler.New(
		app.refreshService, app.maintenance, app.taskManager, app.maintenance, logger)

	logger.Info("Application initialized")
	return app, nil
}

// Run starts the update fan-out, the scheduler and the HTTP server, then
// blocks until shutdown.
func (app *application) Run(ctx context.Context) error {
	fanoutCtx, stopFanout := context.WithCancel(ctx)
	defer stopFanout()
	go ws.Fanout(fanoutCtx, app.taskManager.Subscribe(), app.wsSubs)

	if app.config.Scheduler.Enabled {
		if err := app.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		go app.scheduler.RunStartupTasks(ctx)
	} else {
		app.logger.Info("background scheduler disabled by configuration")
	}

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup releases application resources in reverse dependency order:
// stop scheduling new work, drain spawned work, then close connections.
func (app *application) cleanup() {
	if app.scheduler != nil && app.config.Scheduler.Enabled {
		stopCtx := app.scheduler.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(30 * time.Second):
			app.logger.Warn("scheduler jobs still running at shutdown deadline")
		}
	}

	if app.spawner != nil {
		done := make(chan struct{})
		go func() {
			app.spawner.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(30 * time.Second):
			app.logger.Warn("spawned tasks still running at shutdown deadline")
		}
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("Error closing Redis connection", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
