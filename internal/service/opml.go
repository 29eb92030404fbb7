package service

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/echopod-api/internal/platform/logger"
	"github.com/phrazzld/echopod-api/internal/store"
	"github.com/phrazzld/echopod-api/internal/task"
)

// ImportService subscribes a user to every feed listed in an OPML
// document, the interchange format podcast apps use for subscriptions.
type ImportService struct {
	podcasts store.PodcastStore
	episodes store.EpisodeStore
	fetcher  FeedFetcher
	logger   *slog.Logger
}

// NewImportService creates an ImportService.
func NewImportService(
	podcasts store.PodcastStore,
	episodes store.EpisodeStore,
	fetcher FeedFetcher,
	log *slog.Logger,
) *ImportService {
	if log == nil {
		log = slog.Default()
	}
	return &ImportService{
		podcasts: podcasts,
		episodes: episodes,
		fetcher:  fetcher,
		logger:   log.With(slog.String("component", "import_service")),
	}
}

type opmlDocument struct {
	Body struct {
		Outlines []opmlOutline `xml:"outline"`
	} `xml:"body"`
}

type opmlOutline struct {
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	Outlines []opmlOutline `xml:"outline"`
}

// ParseOPML extracts feed URLs from an OPML document, walking nested
// outline groups. Returns an error when the document has no feeds.
func ParseOPML(data []byte) ([]string, error) {
	var doc opmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}

	seen := make(map[string]struct{})
	var urls []string
	var walk func(outlines []opmlOutline)
	walk = func(outlines []opmlOutline) {
		for _, o := range outlines {
			if u := strings.TrimSpace(o.XMLURL); u != "" {
				if _, dup := seen[u]; !dup {
					seen[u] = struct{}{}
					urls = append(urls, u)
				}
			}
			walk(o.Outlines)
		}
	}
	walk(doc.Body.Outlines)

	if len(urls) == 0 {
		return nil, errors.New("OPML document contains no feeds")
	}
	return urls, nil
}

// ImportResult is the terminal payload of an OPML import task.
type ImportResult struct {
	Total      int      `json:"total"`
	Subscribed int      `json:"subscribed"`
	Skipped    int      `json:"skipped"`
	Failed     []string `json:"failed,omitempty"`
}

// ImportOPML is the work body of an import task. Each feed is fetched,
// subscribed and seeded with its current episodes. Feeds the user already
// follows are skipped; unreachable feeds are collected in the result
// rather than failing the whole import.
func (s *ImportService) ImportOPML(
	ctx context.Context,
	reporter task.ProgressReporter,
	userID int64,
	opml []byte,
) (json.RawMessage, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	urls, err := ParseOPML(opml)
	if err != nil {
		return nil, err
	}

	result := ImportResult{Total: len(urls)}
	for i, feedURL := range urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// The feed in flight counts as half done; a zero first report
		// would leave the task in the pending state until feed two.
		progress := (float64(i) + 0.5) / float64(len(urls)) * 100
		s.report(ctx, reporter, progress,
			fmt.Sprintf("Importing feed %d of %d", i+1, len(urls)))

		switch err := s.subscribe(ctx, userID, feedURL); {
		case err == nil:
			result.Subscribed++
		case errors.Is(err, store.ErrFeedExists):
			result.Skipped++
		default:
			result.Failed = append(result.Failed, feedURL)
			log.Warn("feed import failed",
				slog.String("error", err.Error()),
				slog.String("feed_url", feedURL))
		}
	}

	log.Info("OPML import finished",
		slog.Int64("user_id", userID),
		slog.Int("total", result.Total),
		slog.Int("subscribed", result.Subscribed),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", len(result.Failed)))

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode import result: %w", err)
	}
	return payload, nil
}

func (s *ImportService) subscribe(ctx context.Context, userID int64, feedURL string) error {
	feed, err := s.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return err
	}

	name := feed.Title
	if name == "" {
		name = feedURL
	}

	id, err := s.podcasts.Create(ctx, &store.Podcast{
		UserID:     userID,
		Name:       name,
		FeedURL:    feedURL,
		Author:     feed.Author,
		ArtworkURL: feed.ArtworkURL,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if _, err := s.episodes.Upsert(ctx, id, feed.Episodes); err != nil {
		return fmt.Errorf("failed to seed episodes: %w", err)
	}
	return nil
}

func (s *ImportService) report(
	ctx context.Context,
	reporter task.ProgressReporter,
	progress float64,
	message string,
) {
	if reporter == nil {
		return
	}
	if err := reporter.Report(ctx, progress, message); err != nil {
		s.logger.Warn("failed to report import progress",
			slog.String("error", err.Error()))
	}
}
