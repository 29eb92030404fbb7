package store

import (
	"context"
	"time"
)

// Episode is one entry of a podcast feed.
type Episode struct {
	ID          int64
	PodcastID   int64
	GUID        string
	Title       string
	Description string
	URL         string
	ArtworkURL  string
	PubDate     time.Time
	Duration    int64
}

// EpisodeWithPodcast carries the joined podcast fields a download needs to
// name and tag the file.
type EpisodeWithPodcast struct {
	Episode
	PodcastName   string
	PodcastAuthor string
}

// EpisodeStore defines the interface for episode persistence consumed by the
// refresh, download and maintenance work bodies.
type EpisodeStore interface {
	// GetByID retrieves an episode joined with its podcast metadata.
	// Returns ErrEpisodeNotFound if it does not exist.
	GetByID(ctx context.Context, id int64) (*EpisodeWithPodcast, error)

	// Upsert inserts feed entries that are not yet stored, matching on
	// (podcast_id, guid). Returns the number of newly inserted episodes.
	Upsert(ctx context.Context, podcastID int64, episodes []*Episode) (int, error)

	// ListNotDownloaded returns the episodes of a podcast the user has not
	// downloaded yet, newest first.
	ListNotDownloaded(ctx context.Context, podcastID, userID int64) ([]*Episode, error)

	// RecordDownload stores the location and size of a completed download.
	RecordDownload(ctx context.Context, userID, episodeID int64, size int64, location string) error

	// AutoCompleteEpisodes marks episodes listened to within the final few
	// seconds as finished. Returns the number of episodes updated.
	AutoCompleteEpisodes(ctx context.Context) (int64, error)
}
