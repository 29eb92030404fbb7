package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/phrazzld/echopod-api/internal/platform/logger"
	"github.com/phrazzld/echopod-api/internal/store"
	"github.com/phrazzld/echopod-api/internal/task"
)

// SubscriptionSyncer pushes and pulls podcast subscriptions against an
// external sync endpoint such as a gpodder or Nextcloud server.
type SubscriptionSyncer interface {
	Sync(ctx context.Context) error
}

// RefreshService walks followed feeds, pulls their RSS documents and
// stores any episodes that appeared since the last sweep.
type RefreshService struct {
	podcasts store.PodcastStore
	episodes store.EpisodeStore
	fetcher  FeedFetcher

	// Optional external sync backends, nil when not configured.
	gpodder   SubscriptionSyncer
	nextcloud SubscriptionSyncer

	logger *slog.Logger
}

// NewRefreshService creates a RefreshService. The syncer arguments may be
// nil when the corresponding backend is not configured.
func NewRefreshService(
	podcasts store.PodcastStore,
	episodes store.EpisodeStore,
	fetcher FeedFetcher,
	gpodder SubscriptionSyncer,
	nextcloud SubscriptionSyncer,
	log *slog.Logger,
) *RefreshService {
	if log == nil {
		log = slog.Default()
	}
	return &RefreshService{
		podcasts:  podcasts,
		episodes:  episodes,
		fetcher:   fetcher,
		gpodder:   gpodder,
		nextcloud: nextcloud,
		logger:    log.With(slog.String("component", "refresh_service")),
	}
}

// RefreshResult summarizes one refresh sweep.
type RefreshResult struct {
	FeedsChecked int `json:"feeds_checked"`
	FeedsFailed  int `json:"feeds_failed"`
	NewEpisodes  int `json:"new_episodes"`
}

// RefreshAllFeeds refreshes every followed podcast. A failing feed is
// logged and skipped so one broken host cannot stall the sweep.
func (s *RefreshService) RefreshAllFeeds(ctx context.Context) error {
	_, err := s.refreshAll(ctx, nil)
	return err
}

// RefreshAllWithProgress is the work body behind the on-demand refresh
// task. It reports per-feed progress and returns a JSON summary.
func (s *RefreshService) RefreshAllWithProgress(
	ctx context.Context,
	reporter task.ProgressReporter,
) (json.RawMessage, error) {
	result, err := s.refreshAll(ctx, reporter)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode refresh result: %w", err)
	}
	return payload, nil
}

func (s *RefreshService) refreshAll(
	ctx context.Context,
	reporter task.ProgressReporter,
) (*RefreshResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	feeds, err := s.podcasts.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list podcasts: %w", err)
	}

	result := &RefreshResult{}
	for i, p := range feeds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		inserted, err := s.RefreshFeed(ctx, p)
		result.FeedsChecked++
		if err != nil {
			result.FeedsFailed++
			log.Warn("feed refresh failed",
				slog.String("error", err.Error()),
				slog.Int64("podcast_id", p.ID),
				slog.String("feed_url", p.FeedURL))
		} else {
			result.NewEpisodes += inserted
		}

		if reporter != nil {
			progress := float64(i+1) / float64(len(feeds)) * 100
			msg := fmt.Sprintf("Refreshed %d of %d feeds", i+1, len(feeds))
			if err := reporter.Report(ctx, progress, msg); err != nil {
				log.Warn("failed to report refresh progress",
					slog.String("error", err.Error()))
			}
		}
	}

	log.Info("feed refresh sweep finished",
		slog.Int("feeds_checked", result.FeedsChecked),
		slog.Int("feeds_failed", result.FeedsFailed),
		slog.Int("new_episodes", result.NewEpisodes))
	return result, nil
}

// RefreshFeed fetches one podcast's RSS document and stores episodes not
// seen before. Returns the number of new episodes.
func (s *RefreshService) RefreshFeed(ctx context.Context, p *store.Podcast) (int, error) {
	feed, err := s.fetcher.Fetch(ctx, p.FeedURL)
	if err != nil {
		return 0, err
	}
	return s.episodes.Upsert(ctx, p.ID, feed.Episodes)
}

// SyncGpodderSubscriptions runs the gpodder sync when configured. It is a
// no-op when no gpodder backend was wired in.
func (s *RefreshService) SyncGpodderSubscriptions(ctx context.Context) error {
	if s.gpodder == nil {
		return nil
	}
	return s.gpodder.Sync(ctx)
}

// SyncNextcloudSubscriptions runs the Nextcloud sync when configured.
func (s *RefreshService) SyncNextcloudSubscriptions(ctx context.Context) error {
	if s.nextcloud == nil {
		return nil
	}
	return s.nextcloud.Sync(ctx)
}

// UpdatePlaylistEpisodeCounts recomputes the cached system playlist
// counts after a sweep has added episodes.
func (s *RefreshService) UpdatePlaylistEpisodeCounts(ctx context.Context) error {
	return s.podcasts.UpdatePlaylistEpisodeCounts(ctx)
}
