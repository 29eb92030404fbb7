package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/echopod-api/internal/store"
)

// recordingReporter captures every progress report a work body makes.
type recordingReporter struct {
	reports []reportedProgress
}

type reportedProgress struct {
	progress float64
	message  string
}

func (r *recordingReporter) Report(_ context.Context, progress float64, message string) error {
	r.reports = append(r.reports, reportedProgress{progress: progress, message: message})
	return nil
}

// downloadEpisodeStore is an in-memory store.EpisodeStore for download tests.
type downloadEpisodeStore struct {
	episodes map[int64]*store.EpisodeWithPodcast
	recorded map[int64]string
}

func (f *downloadEpisodeStore) GetByID(_ context.Context, id int64) (*store.EpisodeWithPodcast, error) {
	if ep, ok := f.episodes[id]; ok {
		return ep, nil
	}
	return nil, store.ErrEpisodeNotFound
}

func (f *downloadEpisodeStore) Upsert(_ context.Context, _ int64, eps []*store.Episode) (int, error) {
	return len(eps), nil
}

func (f *downloadEpisodeStore) ListNotDownloaded(_ context.Context, podcastID, _ int64) ([]*store.Episode, error) {
	var out []*store.Episode
	for _, ep := range f.episodes {
		if ep.PodcastID == podcastID {
			episode := ep.Episode
			out = append(out, &episode)
		}
	}
	return out, nil
}

func (f *downloadEpisodeStore) RecordDownload(_ context.Context, _, episodeID int64, _ int64, location string) error {
	if f.recorded == nil {
		f.recorded = make(map[int64]string)
	}
	f.recorded[episodeID] = location
	return nil
}

func (f *downloadEpisodeStore) AutoCompleteEpisodes(_ context.Context) (int64, error) {
	return 0, nil
}

func newAudioServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadEpisode_SavesFileAndReportsCheckpoints(t *testing.T) {
	t.Parallel()

	srv := newAudioServer(t, "fake mp3 bytes")
	episodes := &downloadEpisodeStore{episodes: map[int64]*store.EpisodeWithPodcast{
		42: {
			Episode:     store.Episode{ID: 42, PodcastID: 1, Title: "Pilot", URL: srv.URL + "/pilot.mp3"},
			PodcastName: "Night Shift Radio",
		},
	}}
	svc := NewDownloadService(episodes, srv.Client(), t.TempDir(), nil)
	reporter := &recordingReporter{}

	payload, err := svc.DownloadEpisode(context.Background(), reporter, 7, 42)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"title":"Pilot"`)

	location, ok := episodes.recorded[42]
	require.True(t, ok)
	data, err := os.ReadFile(location)
	require.NoError(t, err)
	assert.Equal(t, "fake mp3 bytes", string(data))

	require.NotEmpty(t, reporter.reports)
	assert.Equal(t, 5.0, reporter.reports[0].progress)
	last := reporter.reports[len(reporter.reports)-1]
	assert.Equal(t, 95.0, last.progress)
	for _, rep := range reporter.reports {
		assert.GreaterOrEqual(t, rep.progress, 0.0)
		assert.LessOrEqual(t, rep.progress, 100.0)
	}
}

func TestDownloadEpisode_UnknownEpisode(t *testing.T) {
	t.Parallel()

	svc := NewDownloadService(&downloadEpisodeStore{}, nil, t.TempDir(), nil)
	_, err := svc.DownloadEpisode(context.Background(), &recordingReporter{}, 7, 999)
	assert.ErrorIs(t, err, store.ErrEpisodeNotFound)
}

func TestDownloadAllEpisodes_FirstReportLeavesPending(t *testing.T) {
	t.Parallel()

	srv := newAudioServer(t, "bytes")
	episodes := &downloadEpisodeStore{episodes: map[int64]*store.EpisodeWithPodcast{
		1: {
			Episode:     store.Episode{ID: 1, PodcastID: 3, Title: "One", URL: srv.URL + "/1.mp3"},
			PodcastName: "Show",
		},
		2: {
			Episode:     store.Episode{ID: 2, PodcastID: 3, Title: "Two", URL: srv.URL + "/2.mp3"},
			PodcastName: "Show",
		},
	}}
	svc := NewDownloadService(episodes, srv.Client(), t.TempDir(), nil)
	reporter := &recordingReporter{}

	payload, err := svc.DownloadAllEpisodes(context.Background(), reporter, 7, 3)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"downloaded":2`)

	// The report for the first episode must be positive so the task moves
	// out of the pending state as soon as work starts, and below full so
	// clients never see a finished-looking task mid-run.
	require.Len(t, reporter.reports, 2)
	assert.Greater(t, reporter.reports[0].progress, 0.0)
	assert.Less(t, reporter.reports[len(reporter.reports)-1].progress, 100.0)
}

func TestExtensionFor(t *testing.T) {
	t.Parallel()

	resp := &http.Response{Header: http.Header{"Content-Type": []string{"audio/x-m4a"}}}
	assert.Equal(t, ".mp3", extensionFor("https://h.example/ep.mp3?sig=abc", resp))
	assert.Equal(t, ".m4a", extensionFor("https://h.example/stream", resp))
}
