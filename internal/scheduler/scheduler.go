// Package scheduler runs the fixed set of recurring maintenance jobs on
// wall-clock schedules, independent of request traffic.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// Cron schedules for the recurring jobs (standard five-field expressions).
const (
	RefreshSchedule = "*/30 * * * *" // podcast refresh every 30 minutes
	NightlySchedule = "0 0 * * *"    // nightly maintenance at midnight
	CleanupSchedule = "0 */6 * * *"  // cleanup every 6 hours
)

// Refresher is the podcast refresh collaborator. Its steps are independent:
// a failure in one is logged and the next still runs.
type Refresher interface {
	RefreshAllFeeds(ctx context.Context) error
	SyncGpodderSubscriptions(ctx context.Context) error
	SyncNextcloudSubscriptions(ctx context.Context) error
	UpdatePlaylistEpisodeCounts(ctx context.Context) error
}

// Maintainer is the nightly maintenance collaborator.
type Maintainer interface {
	RefreshPodcastHosts(ctx context.Context) error
	AutoCompleteEpisodes(ctx context.Context) (int64, error)
}

// Janitor removes expired task records.
type Janitor interface {
	CleanupOldTasks(ctx context.Context) (int, error)
}

// Bootstrapper performs the one-shot initialization that runs at process
// start, outside the cron schedule.
type Bootstrapper interface {
	InitFromEnv(ctx context.Context) error
	CreateMissingDefaultPlaylists(ctx context.Context) error
}

// Scheduler fires the recurring jobs. Each firing runs on its own goroutine;
// a failure in one job never affects sibling jobs or the job's own next
// firing.
//
// Overlap policy: if a previous firing of a job is still running when its
// next scheduled time arrives, the new firing is skipped and logged. The
// next scheduled time after the running firing completes fires normally.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	refresher  Refresher
	maintainer Maintainer
	janitor    Janitor
	bootstrap  Bootstrapper

	refreshBusy atomic.Bool
	nightlyBusy atomic.Bool
	cleanupBusy atomic.Bool
}

// New creates a Scheduler wired to its collaborators. The bootstrapper may
// be nil when the deployment has no startup initialization to run.
func New(refresher Refresher, maintainer Maintainer, janitor Janitor, bootstrap Bootstrapper, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		logger:     logger.With("component", "scheduler"),
		refresher:  refresher,
		maintainer: maintainer,
		janitor:    janitor,
		bootstrap:  bootstrap,
	}
}

// Start registers the three recurring jobs and starts the cron loop. The
// scheduler has no cancellation of in-flight firings; Stop only prevents
// future ones.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name string
		spec string
		busy *atomic.Bool
		run  func(context.Context)
	}{
		{"podcast_refresh", RefreshSchedule, &s.refreshBusy, s.runRefresh},
		{"nightly_maintenance", NightlySchedule, &s.nightlyBusy, s.runNightly},
		{"cleanup", CleanupSchedule, &s.cleanupBusy, s.runCleanup},
	}

	for _, job := range jobs {
		job := job
		_, err := s.cron.AddFunc(job.spec, func() {
			if !job.busy.CompareAndSwap(false, true) {
				s.logger.Warn("previous firing still running, skipping", "job", job.name)
				return
			}
			defer job.busy.Store(false)

			s.logger.Info("running scheduled job", "job", job.name)
			job.run(context.Background())
			s.logger.Info("scheduled job finished", "job", job.name)
		})
		if err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("background scheduler started")
	return nil
}

// Stop stops scheduling future firings and returns a context that is done
// once in-flight firings complete.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunStartupTasks executes the one-shot startup sequence: environment-driven
// initialization, backfilling missing default records, and an immediate
// first refresh so data is not stale at boot. Each step is independent;
// failures are logged and the next step still runs.
func (s *Scheduler) RunStartupTasks(ctx context.Context) {
	s.logger.Info("running startup tasks")

	if s.bootstrap != nil {
		if err := s.bootstrap.InitFromEnv(ctx); err != nil {
			s.logger.Warn("environment initialization failed", "error", err)
		}
		if err := s.bootstrap.CreateMissingDefaultPlaylists(ctx); err != nil {
			s.logger.Warn("default playlist backfill failed", "error", err)
		}
	}

	s.runRefresh(ctx)
	s.logger.Info("startup tasks completed")
}

// runRefresh executes the refresh job's independent steps in order,
// continuing past individual failures.
func (s *Scheduler) runRefresh(ctx context.Context) {
	if err := s.refresher.RefreshAllFeeds(ctx); err != nil {
		s.logger.Error("podcast refresh failed", "error", err)
	}
	if err := s.refresher.SyncGpodderSubscriptions(ctx); err != nil {
		s.logger.Warn("gpodder sync failed during scheduled refresh", "error", err)
	}
	if err := s.refresher.SyncNextcloudSubscriptions(ctx); err != nil {
		s.logger.Warn("nextcloud sync failed during scheduled refresh", "error", err)
	}
	if err := s.refresher.UpdatePlaylistEpisodeCounts(ctx); err != nil {
		s.logger.Warn("playlist episode count update failed", "error", err)
	}
}

func (s *Scheduler) runNightly(ctx context.Context) {
	if err := s.maintainer.RefreshPodcastHosts(ctx); err != nil {
		s.logger.Warn("host refresh failed during nightly maintenance", "error", err)
	}
	if n, err := s.maintainer.AutoCompleteEpisodes(ctx); err != nil {
		s.logger.Warn("episode auto-complete failed during nightly maintenance", "error", err)
	} else if n > 0 {
		s.logger.Info("auto-completed episodes", "count", n)
	}
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	if _, err := s.janitor.CleanupOldTasks(ctx); err != nil {
		s.logger.Error("task cleanup failed", "error", err)
	}
}
