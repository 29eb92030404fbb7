package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phrazzld/echopod-api/internal/platform/logger"
	"github.com/phrazzld/echopod-api/internal/store"
	"github.com/phrazzld/echopod-api/internal/task"
)

const downloadChunkSize = 1 << 20

// DownloadService saves episode audio to local storage and records the
// download against the requesting user.
type DownloadService struct {
	episodes store.EpisodeStore
	client   *http.Client
	dir      string
	logger   *slog.Logger
}

// NewDownloadService creates a DownloadService writing into dir. A nil
// client gets a default without an overall timeout, since large episodes
// can take minutes; cancellation happens through the request context.
func NewDownloadService(
	episodes store.EpisodeStore,
	client *http.Client,
	dir string,
	log *slog.Logger,
) *DownloadService {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &DownloadService{
		episodes: episodes,
		client:   client,
		dir:      dir,
		logger:   log.With(slog.String("component", "download_service")),
	}
}

// DownloadResult is the terminal payload of a completed episode download.
type DownloadResult struct {
	EpisodeID int64  `json:"episode_id"`
	Title     string `json:"title"`
	Location  string `json:"location"`
	SizeBytes int64  `json:"size_bytes"`
}

// DownloadEpisode is the work body of a single-episode download task.
// Progress moves through fixed checkpoints: metadata at 10%, the byte
// transfer between 25% and 90%, then bookkeeping up to completion.
func (s *DownloadService) DownloadEpisode(
	ctx context.Context,
	reporter task.ProgressReporter,
	userID, episodeID int64,
) (json.RawMessage, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	s.report(ctx, reporter, 5, "Fetching episode metadata")

	ep, err := s.episodes.GetByID(ctx, episodeID)
	if err != nil {
		return nil, err
	}

	s.report(ctx, reporter, 10, fmt.Sprintf("Downloading %q", ep.Title))

	location, size, err := s.fetchAudio(ctx, reporter, ep)
	if err != nil {
		return nil, err
	}

	s.report(ctx, reporter, 95, "Recording download")

	if err := s.episodes.RecordDownload(ctx, userID, episodeID, size, location); err != nil {
		// Keep the file; the record can be retried but the bytes were
		// expensive to fetch.
		log.Error("failed to record download",
			slog.String("error", err.Error()),
			slog.Int64("episode_id", episodeID))
		return nil, err
	}

	result := DownloadResult{
		EpisodeID: episodeID,
		Title:     ep.Title,
		Location:  location,
		SizeBytes: size,
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode download result: %w", err)
	}
	return payload, nil
}

// DownloadAllResult is the terminal payload of a whole-podcast download.
type DownloadAllResult struct {
	PodcastID  int64 `json:"podcast_id"`
	Queued     int   `json:"queued"`
	Downloaded int   `json:"downloaded"`
	Failed     int   `json:"failed"`
}

// DownloadAllEpisodes is the work body of a whole-podcast download task.
// Episodes already downloaded by the user are skipped. Individual episode
// failures are logged and counted without aborting the rest.
func (s *DownloadService) DownloadAllEpisodes(
	ctx context.Context,
	reporter task.ProgressReporter,
	userID, podcastID int64,
) (json.RawMessage, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	episodes, err := s.episodes.ListNotDownloaded(ctx, podcastID, userID)
	if err != nil {
		return nil, err
	}

	result := DownloadAllResult{PodcastID: podcastID, Queued: len(episodes)}
	for i, ep := range episodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// The episode in flight counts as half done; a zero first report
		// would leave the task in the pending state until episode two.
		progress := (float64(i) + 0.5) / float64(len(episodes)) * 100
		s.report(ctx, reporter, progress,
			fmt.Sprintf("Downloading episode %d of %d: %s", i+1, len(episodes), ep.Title))

		full, err := s.episodes.GetByID(ctx, ep.ID)
		if err == nil {
			var location string
			var size int64
			location, size, err = s.fetchAudio(ctx, nil, full)
			if err == nil {
				err = s.episodes.RecordDownload(ctx, userID, ep.ID, size, location)
			}
		}
		if err != nil {
			result.Failed++
			log.Warn("episode download failed",
				slog.String("error", err.Error()),
				slog.Int64("episode_id", ep.ID))
			continue
		}
		result.Downloaded++
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode download result: %w", err)
	}
	return payload, nil
}

// fetchAudio streams the enclosure to disk, reporting transfer progress
// between 25% and 90% when a reporter is given. Returns the final file
// location and size.
func (s *DownloadService) fetchAudio(
	ctx context.Context,
	reporter task.ProgressReporter,
	ep *store.EpisodeWithPodcast,
) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.URL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to build download request: %w", err)
	}
	req.Header.Set("User-Agent", "echopod-api/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to fetch episode audio: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("episode host returned status %d", resp.StatusCode)
	}

	podcastDir := filepath.Join(s.dir, sanitizeName(ep.PodcastName))
	if err := os.MkdirAll(podcastDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create download directory: %w", err)
	}

	filename := fmt.Sprintf("%d-%s%s", ep.ID, sanitizeName(ep.Title), extensionFor(ep.URL, resp))
	location := filepath.Join(podcastDir, filename)

	tmp, err := os.CreateTemp(podcastDir, ".download-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	size, err := s.copyWithProgress(ctx, reporter, tmp, resp.Body, resp.ContentLength)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to save episode audio: %w", err)
	}

	if err := os.Rename(tmp.Name(), location); err != nil {
		return "", 0, fmt.Errorf("failed to move download into place: %w", err)
	}
	return location, size, nil
}

func (s *DownloadService) copyWithProgress(
	ctx context.Context,
	reporter task.ProgressReporter,
	dst io.Writer,
	src io.Reader,
	contentLength int64,
) (int64, error) {
	var written int64
	var lastReport time.Time
	buf := make([]byte, downloadChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)

			if reporter != nil && contentLength > 0 && time.Since(lastReport) > time.Second {
				lastReport = time.Now()
				// 25 to 90 is the transfer band; the edges belong to
				// metadata and bookkeeping.
				progress := 25 + float64(written)/float64(contentLength)*65
				s.report(ctx, reporter, progress,
					fmt.Sprintf("Downloaded %d of %d bytes", written, contentLength))
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

func (s *DownloadService) report(
	ctx context.Context,
	reporter task.ProgressReporter,
	progress float64,
	message string,
) {
	if reporter == nil {
		return
	}
	if err := reporter.Report(ctx, progress, message); err != nil {
		s.logger.Warn("failed to report download progress",
			slog.String("error", err.Error()))
	}
}

// sanitizeName strips characters that are unsafe in filenames.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	cleaned := strings.Trim(b.String(), " .")
	if cleaned == "" {
		return "episode"
	}
	return cleaned
}

// extensionFor guesses the audio file extension from the enclosure URL,
// falling back on the response content type.
func extensionFor(url string, resp *http.Response) string {
	base := url
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	if ext := filepath.Ext(base); ext != "" && len(ext) <= 5 {
		return ext
	}
	switch resp.Header.Get("Content-Type") {
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4", "audio/x-m4a":
		return ".m4a"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".mp3"
	}
}
