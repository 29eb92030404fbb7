package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/phrazzld/echopod-api/internal/platform/logger"
	"github.com/phrazzld/echopod-api/internal/store"
)

// PostgresEpisodeStore implements the store.EpisodeStore interface
// using a PostgreSQL database as the storage backend.
type PostgresEpisodeStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresEpisodeStore creates a new PostgreSQL implementation of the
// EpisodeStore interface. The database connection or transaction is managed
// by the caller. If logger is nil, a default logger is used.
func NewPostgresEpisodeStore(db store.DBTX, logger *slog.Logger) *PostgresEpisodeStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresEpisodeStore{
		db:     db,
		logger: logger.With(slog.String("component", "episode_store")),
	}
}

// Ensure PostgresEpisodeStore implements store.EpisodeStore interface
var _ store.EpisodeStore = (*PostgresEpisodeStore)(nil)

// GetByID implements store.EpisodeStore.GetByID
// Returns store.ErrEpisodeNotFound if the episode does not exist.
func (s *PostgresEpisodeStore) GetByID(ctx context.Context, id int64) (*store.EpisodeWithPodcast, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT e.id, e.podcast_id, e.guid, e.title, e.description, e.url,
		       e.artwork_url, e.pub_date, e.duration,
		       p.name, p.author
		FROM episodes e
		JOIN podcasts p ON p.id = e.podcast_id
		WHERE e.id = $1
	`

	var ep store.EpisodeWithPodcast
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&ep.ID,
		&ep.PodcastID,
		&ep.GUID,
		&ep.Title,
		&ep.Description,
		&ep.URL,
		&ep.ArtworkURL,
		&ep.PubDate,
		&ep.Duration,
		&ep.PodcastName,
		&ep.PodcastAuthor,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("episode not found", slog.Int64("episode_id", id))
			return nil, store.ErrEpisodeNotFound
		}
		log.Error("failed to get episode by ID",
			slog.String("error", err.Error()),
			slog.Int64("episode_id", id))
		return nil, err
	}
	return &ep, nil
}

// Upsert implements store.EpisodeStore.Upsert
// Inserts feed entries not yet stored, matching on (podcast_id, guid), and
// returns the number of newly inserted episodes.
func (s *PostgresEpisodeStore) Upsert(
	ctx context.Context,
	podcastID int64,
	episodes []*store.Episode,
) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO episodes (podcast_id, guid, title, description, url, artwork_url, pub_date, duration)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (podcast_id, guid) DO NOTHING
	`

	inserted := 0
	for _, ep := range episodes {
		result, err := s.db.ExecContext(
			ctx,
			query,
			podcastID,
			ep.GUID,
			ep.Title,
			ep.Description,
			ep.URL,
			ep.ArtworkURL,
			ep.PubDate,
			ep.Duration,
		)
		if err != nil {
			log.Error("failed to upsert episode",
				slog.String("error", err.Error()),
				slog.Int64("podcast_id", podcastID),
				slog.String("guid", ep.GUID))
			return inserted, err
		}
		if n, err := result.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}

	if inserted > 0 {
		log.Debug("inserted new episodes",
			slog.Int64("podcast_id", podcastID),
			slog.Int("count", inserted))
	}
	return inserted, nil
}

// ListNotDownloaded implements store.EpisodeStore.ListNotDownloaded
func (s *PostgresEpisodeStore) ListNotDownloaded(
	ctx context.Context,
	podcastID, userID int64,
) ([]*store.Episode, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT e.id, e.podcast_id, e.guid, e.title, e.description, e.url,
		       e.artwork_url, e.pub_date, e.duration
		FROM episodes e
		WHERE e.podcast_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM downloaded_episodes d
			WHERE d.episode_id = e.id AND d.user_id = $2
		  )
		ORDER BY e.pub_date DESC
	`

	rows, err := s.db.QueryContext(ctx, query, podcastID, userID)
	if err != nil {
		log.Error("failed to query episodes",
			slog.String("error", err.Error()),
			slog.Int64("podcast_id", podcastID))
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	episodes := []*store.Episode{}
	for rows.Next() {
		var ep store.Episode
		err := rows.Scan(
			&ep.ID,
			&ep.PodcastID,
			&ep.GUID,
			&ep.Title,
			&ep.Description,
			&ep.URL,
			&ep.ArtworkURL,
			&ep.PubDate,
			&ep.Duration,
		)
		if err != nil {
			log.Error("failed to scan episode row", slog.String("error", err.Error()))
			return nil, err
		}
		episodes = append(episodes, &ep)
	}
	if err := rows.Err(); err != nil {
		log.Error("error after scanning rows", slog.String("error", err.Error()))
		return nil, err
	}
	return episodes, nil
}

// RecordDownload implements store.EpisodeStore.RecordDownload
func (s *PostgresEpisodeStore) RecordDownload(
	ctx context.Context,
	userID, episodeID int64,
	size int64,
	location string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO downloaded_episodes (user_id, episode_id, size_bytes, location, downloaded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, episode_id) DO UPDATE
		SET size_bytes = EXCLUDED.size_bytes,
		    location = EXCLUDED.location,
		    downloaded_at = EXCLUDED.downloaded_at
	`

	_, err := s.db.ExecContext(ctx, query, userID, episodeID, size, location, time.Now().UTC())
	if err != nil {
		log.Error("failed to record download",
			slog.String("error", err.Error()),
			slog.Int64("user_id", userID),
			slog.Int64("episode_id", episodeID))
		return err
	}

	log.Info("download recorded",
		slog.Int64("user_id", userID),
		slog.Int64("episode_id", episodeID),
		slog.Int64("size_bytes", size))
	return nil
}

// AutoCompleteEpisodes implements store.EpisodeStore.AutoCompleteEpisodes
// Marks episodes abandoned within the final minute of playback as finished.
func (s *PostgresEpisodeStore) AutoCompleteEpisodes(ctx context.Context) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE episode_history h
		SET completed = TRUE
		FROM episodes e
		WHERE e.id = h.episode_id
		  AND NOT h.completed
		  AND e.duration > 0
		  AND h.listen_position >= e.duration - 60
	`

	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		log.Error("failed to auto-complete episodes",
			slog.String("error", err.Error()))
		return 0, err
	}

	updated, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		log.Info("auto-completed episodes", slog.Int64("count", updated))
	}
	return updated, nil
}
