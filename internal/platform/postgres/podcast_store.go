package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/phrazzld/echopod-api/internal/platform/logger"
	"github.com/phrazzld/echopod-api/internal/store"
)

// PostgresPodcastStore implements the store.PodcastStore interface
// using a PostgreSQL database as the storage backend.
type PostgresPodcastStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresPodcastStore creates a new PostgreSQL implementation of the
// PodcastStore interface. The database connection or transaction is managed
// by the caller. If logger is nil, a default logger is used.
func NewPostgresPodcastStore(db store.DBTX, logger *slog.Logger) *PostgresPodcastStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresPodcastStore{
		db:     db,
		logger: logger.With(slog.String("component", "podcast_store")),
	}
}

// Ensure PostgresPodcastStore implements store.PodcastStore interface
var _ store.PodcastStore = (*PostgresPodcastStore)(nil)

const podcastColumns = `id, user_id, name, feed_url, author, artwork_url, created_at`

// GetByID implements store.PodcastStore.GetByID
// Returns store.ErrPodcastNotFound if the podcast does not exist.
func (s *PostgresPodcastStore) GetByID(ctx context.Context, id int64) (*store.Podcast, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + podcastColumns + ` FROM podcasts WHERE id = $1`

	var p store.Podcast
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.FeedURL,
		&p.Author,
		&p.ArtworkURL,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("podcast not found", slog.Int64("podcast_id", id))
			return nil, store.ErrPodcastNotFound
		}
		log.Error("failed to get podcast by ID",
			slog.String("error", err.Error()),
			slog.Int64("podcast_id", id))
		return nil, err
	}
	return &p, nil
}

// ListAll implements store.PodcastStore.ListAll
func (s *PostgresPodcastStore) ListAll(ctx context.Context) ([]*store.Podcast, error) {
	query := `SELECT ` + podcastColumns + ` FROM podcasts ORDER BY id`
	return s.queryPodcasts(ctx, query)
}

// ListByUser implements store.PodcastStore.ListByUser
func (s *PostgresPodcastStore) ListByUser(ctx context.Context, userID int64) ([]*store.Podcast, error) {
	query := `SELECT ` + podcastColumns + ` FROM podcasts WHERE user_id = $1 ORDER BY id`
	return s.queryPodcasts(ctx, query, userID)
}

func (s *PostgresPodcastStore) queryPodcasts(
	ctx context.Context,
	query string,
	args ...interface{},
) ([]*store.Podcast, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query podcasts", slog.String("error", err.Error()))
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	podcasts := []*store.Podcast{}
	for rows.Next() {
		var p store.Podcast
		err := rows.Scan(
			&p.ID,
			&p.UserID,
			&p.Name,
			&p.FeedURL,
			&p.Author,
			&p.ArtworkURL,
			&p.CreatedAt,
		)
		if err != nil {
			log.Error("failed to scan podcast row", slog.String("error", err.Error()))
			return nil, err
		}
		podcasts = append(podcasts, &p)
	}
	if err := rows.Err(); err != nil {
		log.Error("error after scanning rows", slog.String("error", err.Error()))
		return nil, err
	}
	return podcasts, nil
}

// Create implements store.PodcastStore.Create
// Returns store.ErrFeedExists if the user already follows the feed URL.
func (s *PostgresPodcastStore) Create(ctx context.Context, p *store.Podcast) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO podcasts (user_id, name, feed_url, author, artwork_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	err := s.db.QueryRowContext(
		ctx,
		query,
		p.UserID,
		p.Name,
		p.FeedURL,
		p.Author,
		p.ArtworkURL,
		p.CreatedAt,
	).Scan(&id)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
			log.Debug("feed already followed",
				slog.Int64("user_id", p.UserID),
				slog.String("feed_url", p.FeedURL))
			return 0, fmt.Errorf("%w: %s", store.ErrFeedExists, p.FeedURL)
		}
		log.Error("failed to create podcast",
			slog.String("error", err.Error()),
			slog.Int64("user_id", p.UserID),
			slog.String("feed_url", p.FeedURL))
		return 0, err
	}

	log.Info("podcast created",
		slog.Int64("podcast_id", id),
		slog.Int64("user_id", p.UserID),
		slog.String("name", p.Name))
	return id, nil
}

// UpdateAuthor implements store.PodcastStore.UpdateAuthor
func (s *PostgresPodcastStore) UpdateAuthor(ctx context.Context, id int64, author string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `UPDATE podcasts SET author = $1 WHERE id = $2`

	result, err := s.db.ExecContext(ctx, query, author, id)
	if err != nil {
		log.Error("failed to update podcast author",
			slog.String("error", err.Error()),
			slog.Int64("podcast_id", id))
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return store.ErrPodcastNotFound
	}
	return nil
}

// UpdatePlaylistEpisodeCounts implements store.PodcastStore.UpdatePlaylistEpisodeCounts
// System playlists cache their episode counts; this recomputes them in one
// statement after each refresh sweep.
func (s *PostgresPodcastStore) UpdatePlaylistEpisodeCounts(ctx context.Context) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE playlists pl
		SET episode_count = (
			SELECT COUNT(*)
			FROM playlist_episodes pe
			WHERE pe.playlist_id = pl.id
		)
		WHERE pl.is_system_playlist
	`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		log.Error("failed to update playlist episode counts",
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// CreateMissingDefaultPlaylists implements store.PodcastStore.CreateMissingDefaultPlaylists
// Backfills the default system playlists for users that predate them.
func (s *PostgresPodcastStore) CreateMissingDefaultPlaylists(ctx context.Context) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO playlists (user_id, name, is_system_playlist, episode_count)
		SELECT u.id, d.name, TRUE, 0
		FROM users u
		CROSS JOIN (VALUES ('Fresh Releases'), ('Currently Listening'), ('Almost Done')) AS d(name)
		WHERE NOT EXISTS (
			SELECT 1 FROM playlists p
			WHERE p.user_id = u.id AND p.name = d.name AND p.is_system_playlist
		)
	`

	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		log.Error("failed to backfill default playlists",
			slog.String("error", err.Error()))
		return err
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		log.Info("backfilled default playlists", slog.Int64("created", n))
	}
	return nil
}
