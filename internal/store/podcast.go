package store

import (
	"context"
	"time"
)

// Podcast is a followed feed belonging to a user.
type Podcast struct {
	ID         int64
	UserID     int64
	Name       string
	FeedURL    string
	Author     string
	ArtworkURL string
	CreatedAt  time.Time
}

// PodcastStore defines the interface for podcast persistence consumed by the
// refresh and import work bodies and by the background scheduler.
type PodcastStore interface {
	// GetByID retrieves a podcast by id.
	// Returns ErrPodcastNotFound if it does not exist.
	GetByID(ctx context.Context, id int64) (*Podcast, error)

	// ListAll returns every followed podcast across all users, for the
	// scheduled refresh sweep.
	ListAll(ctx context.Context) ([]*Podcast, error)

	// ListByUser returns the podcasts followed by one user.
	ListByUser(ctx context.Context, userID int64) ([]*Podcast, error)

	// Create inserts a new podcast subscription and returns its id.
	// Returns ErrFeedExists if the user already follows the feed URL.
	Create(ctx context.Context, p *Podcast) (int64, error)

	// UpdateAuthor sets the author field, used by the nightly host refresh
	// for feeds that were added before author metadata was captured.
	UpdateAuthor(ctx context.Context, id int64, author string) error

	// UpdatePlaylistEpisodeCounts recomputes the cached episode counts of
	// the system playlists. Runs after every scheduled refresh.
	UpdatePlaylistEpisodeCounts(ctx context.Context) error

	// CreateMissingDefaultPlaylists backfills the default playlists for
	// users created before a playlist was introduced. Runs once at startup.
	CreateMissingDefaultPlaylists(ctx context.Context) error
}
