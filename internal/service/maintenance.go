package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/phrazzld/echopod-api/internal/platform/logger"
	"github.com/phrazzld/echopod-api/internal/store"
)

// MaintenanceService implements the nightly and startup housekeeping the
// scheduler runs: host metadata backfill, playback auto-completion,
// download directory initialization and default playlist backfill.
type MaintenanceService struct {
	podcasts     store.PodcastStore
	episodes     store.EpisodeStore
	fetcher      FeedFetcher
	downloadsDir string
	logger       *slog.Logger
}

// NewMaintenanceService creates a MaintenanceService.
func NewMaintenanceService(
	podcasts store.PodcastStore,
	episodes store.EpisodeStore,
	fetcher FeedFetcher,
	downloadsDir string,
	log *slog.Logger,
) *MaintenanceService {
	if log == nil {
		log = slog.Default()
	}
	return &MaintenanceService{
		podcasts:     podcasts,
		episodes:     episodes,
		fetcher:      fetcher,
		downloadsDir: downloadsDir,
		logger:       log.With(slog.String("component", "maintenance_service")),
	}
}

// RefreshPodcastHosts backfills author metadata for podcasts added before
// it was captured. Feeds that still fail to report an author are left
// alone and retried the next night.
func (s *MaintenanceService) RefreshPodcastHosts(ctx context.Context) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	podcasts, err := s.podcasts.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list podcasts: %w", err)
	}

	updated := 0
	for _, p := range podcasts {
		if p.Author != "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		feed, err := s.fetcher.Fetch(ctx, p.FeedURL)
		if err != nil {
			log.Debug("host refresh fetch failed",
				slog.String("error", err.Error()),
				slog.Int64("podcast_id", p.ID))
			continue
		}
		if feed.Author == "" {
			continue
		}
		if err := s.podcasts.UpdateAuthor(ctx, p.ID, feed.Author); err != nil {
			log.Warn("failed to update podcast author",
				slog.String("error", err.Error()),
				slog.Int64("podcast_id", p.ID))
			continue
		}
		updated++
	}

	if updated > 0 {
		log.Info("backfilled podcast hosts", slog.Int("updated", updated))
	}
	return nil
}

// AutoCompleteEpisodes marks episodes abandoned near their end as
// finished. Returns the number of episodes updated.
func (s *MaintenanceService) AutoCompleteEpisodes(ctx context.Context) (int64, error) {
	return s.episodes.AutoCompleteEpisodes(ctx)
}

// InitFromEnv prepares local state that must exist before the first
// sweep, currently the downloads directory.
func (s *MaintenanceService) InitFromEnv(ctx context.Context) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := os.MkdirAll(s.downloadsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create downloads directory: %w", err)
	}
	log.Debug("downloads directory ready", slog.String("dir", s.downloadsDir))
	return nil
}

// CreateMissingDefaultPlaylists backfills default playlists for accounts
// created before a playlist existed.
func (s *MaintenanceService) CreateMissingDefaultPlaylists(ctx context.Context) error {
	return s.podcasts.CreateMissingDefaultPlaylists(ctx)
}
