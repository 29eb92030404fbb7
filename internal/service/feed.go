package service

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/echopod-api/internal/store"
)

// maxFeedBytes caps how much of a feed body is read before parsing.
const maxFeedBytes = 16 << 20

// FetchedFeed is the channel-level metadata plus entries parsed from one
// RSS document.
type FetchedFeed struct {
	Title      string
	Author     string
	ArtworkURL string
	Episodes   []*store.Episode
}

// FeedFetcher retrieves and parses a podcast RSS feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) (*FetchedFeed, error)
}

// HTTPFeedFetcher fetches feeds over HTTP and parses them as RSS 2.0,
// reading the common itunes extensions for author, artwork and duration.
type HTTPFeedFetcher struct {
	client *http.Client
}

var _ FeedFetcher = (*HTTPFeedFetcher)(nil)

// NewHTTPFeedFetcher creates a fetcher with the given HTTP client.
// A nil client gets a default with a 30 second timeout.
func NewHTTPFeedFetcher(client *http.Client) *HTTPFeedFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFeedFetcher{client: client}
}

// rssDocument mirrors the subset of RSS 2.0 the refresh pipeline needs.
type rssDocument struct {
	Channel struct {
		Title  string `xml:"title"`
		Author string `xml:"author"`
		Image  struct {
			URL  string `xml:"url"`
			Href string `xml:"href,attr"`
		} `xml:"image"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	GUID        string `xml:"guid"`
	Title       string `xml:"title"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Duration    string `xml:"duration"`
	Enclosure   struct {
		URL string `xml:"url,attr"`
	} `xml:"enclosure"`
	Image struct {
		Href string `xml:"href,attr"`
	} `xml:"image"`
}

// Fetch implements FeedFetcher.
func (f *HTTPFeedFetcher) Fetch(ctx context.Context, feedURL string) (*FetchedFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("User-Agent", "echopod-api/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feedURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", feedURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed %s: %w", feedURL, err)
	}

	return parseFeed(body)
}

func parseFeed(body []byte) (*FetchedFeed, error) {
	var doc rssDocument
	decoder := xml.NewDecoder(strings.NewReader(string(body)))
	decoder.Strict = false
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	artwork := doc.Channel.Image.URL
	if artwork == "" {
		artwork = doc.Channel.Image.Href
	}

	feed := &FetchedFeed{
		Title:      strings.TrimSpace(doc.Channel.Title),
		Author:     strings.TrimSpace(doc.Channel.Author),
		ArtworkURL: artwork,
	}

	for _, item := range doc.Channel.Items {
		if item.Enclosure.URL == "" {
			continue
		}
		ep := &store.Episode{
			GUID:        episodeGUID(item),
			Title:       strings.TrimSpace(item.Title),
			Description: strings.TrimSpace(item.Description),
			URL:         item.Enclosure.URL,
			ArtworkURL:  item.Image.Href,
			PubDate:     parsePubDate(item.PubDate),
			Duration:    parseDuration(item.Duration),
		}
		if ep.ArtworkURL == "" {
			ep.ArtworkURL = artwork
		}
		feed.Episodes = append(feed.Episodes, ep)
	}

	return feed, nil
}

// episodeGUID prefers the explicit guid element and falls back to the
// enclosure URL, which is stable for most feeds that omit guids.
func episodeGUID(item rssItem) string {
	if guid := strings.TrimSpace(item.GUID); guid != "" {
		return guid
	}
	return item.Enclosure.URL
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
}

func parsePubDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// parseDuration accepts plain seconds, MM:SS or HH:MM:SS.
func parseDuration(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if !strings.Contains(raw, ":") {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0
		}
		return secs
	}

	parts := strings.Split(raw, ":")
	var total int64
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}
