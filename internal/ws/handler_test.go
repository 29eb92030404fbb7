package ws

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/echopod-api/internal/domain"
	"github.com/phrazzld/echopod-api/internal/store"
)

// fakeTaskReader returns a fixed task list.
type fakeTaskReader struct {
	tasks []*domain.Task
}

func (f *fakeTaskReader) GetUserTasks(_ context.Context, userID int64) ([]*domain.Task, error) {
	var out []*domain.Task
	for _, t := range f.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

// fakeAuth maps api keys to user ids, with one designated web key.
type fakeAuth struct {
	keys   map[string]int64
	webKey string
}

func (f *fakeAuth) UserForAPIKey(_ context.Context, apiKey string) (*store.User, error) {
	if id, ok := f.keys[apiKey]; ok {
		return &store.User{ID: id, Username: "someone"}, nil
	}
	return nil, store.ErrUserNotFound
}

func (f *fakeAuth) IsWebKey(_ context.Context, apiKey string) (bool, error) {
	return apiKey == f.webKey, nil
}

func newWSServer(t *testing.T, reader TaskReader, auth KeyAuthenticator, subs *SubscriptionManager) *httptest.Server {
	t.Helper()

	h := NewHandler(reader, subs, auth, slog.Default())
	r := chi.NewRouter()
	r.Get("/api/tasks/progress/{userID}", h.TaskProgress)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestTaskProgress_InitialAndUpdates(t *testing.T) {
	t.Parallel()

	existing := domain.NewTask("import_opml", 7)
	reader := &fakeTaskReader{tasks: []*domain.Task{existing}}
	auth := &fakeAuth{keys: map[string]int64{"key-7": 7}}
	subs := NewSubscriptionManager()
	srv := newWSServer(t, reader, auth, subs)

	conn, _, err := websocket.DefaultDialer.Dial(
		wsURL(srv, "/api/tasks/progress/7?api_key=key-7"), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	// The first frame is the snapshot of stored tasks.
	msg := readMessage(t, conn)
	assert.Equal(t, "initial", msg.Event)
	require.Len(t, msg.Tasks, 1)
	assert.Equal(t, existing.ID, msg.Tasks[0].ID)

	// Wait until the connection is registered, then push an update.
	require.Eventually(t, func() bool {
		return subs.ConnectionCount(7) == 1
	}, time.Second, 5*time.Millisecond)

	subs.BroadcastToUser(7, domain.TaskUpdate{
		TaskID:   existing.ID,
		UserID:   7,
		TaskType: "import_opml",
		Status:   domain.TaskStatusRunning,
		Progress: 40,
		Message:  "Importing feed 2 of 5",
	})

	msg = readMessage(t, conn)
	assert.Equal(t, "update", msg.Event)
	require.NotNil(t, msg.Task)
	assert.Equal(t, 40.0, msg.Task.Progress)
	assert.Equal(t, domain.TaskStatusRunning, msg.Task.Status)
}

func TestTaskProgress_TwoConnectionsSameUser(t *testing.T) {
	t.Parallel()

	reader := &fakeTaskReader{}
	auth := &fakeAuth{keys: map[string]int64{"key-5": 5}}
	subs := NewSubscriptionManager()
	srv := newWSServer(t, reader, auth, subs)

	dial := func() *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial(
			wsURL(srv, "/api/tasks/progress/5?api_key=key-5"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })
		readMessage(t, conn) // initial
		return conn
	}
	connA := dial()
	connB := dial()

	require.Eventually(t, func() bool {
		return subs.ConnectionCount(5) == 2
	}, time.Second, 5*time.Millisecond)

	subs.BroadcastToUser(5, domain.TaskUpdate{TaskID: "t1", UserID: 5, Status: domain.TaskStatusRunning})

	for _, conn := range []*websocket.Conn{connA, connB} {
		msg := readMessage(t, conn)
		assert.Equal(t, "update", msg.Event)
		assert.Equal(t, "t1", msg.Task.TaskID)
	}
}

func TestTaskProgress_AuthFailures(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{keys: map[string]int64{"key-7": 7, "other": 9}}
	srv := newWSServer(t, &fakeTaskReader{}, auth, NewSubscriptionManager())

	cases := []struct {
		name string
		path string
		want int
	}{
		{"missing key", "/api/tasks/progress/7", http.StatusUnauthorized},
		{"unknown key", "/api/tasks/progress/7?api_key=bogus", http.StatusForbidden},
		{"other user's key", "/api/tasks/progress/7?api_key=other", http.StatusForbidden},
		{"bad user id", "/api/tasks/progress/abc?api_key=key-7", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tc.path)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestTaskProgress_WebKeyMayWatchAnyUser(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{keys: map[string]int64{"web": 1}, webKey: "web"}
	srv := newWSServer(t, &fakeTaskReader{}, auth, NewSubscriptionManager())

	conn, _, err := websocket.DefaultDialer.Dial(
		wsURL(srv, "/api/tasks/progress/42?api_key=web"), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	msg := readMessage(t, conn)
	assert.Equal(t, "initial", msg.Event)
}

func TestTaskProgress_ConnectionCleanup(t *testing.T) {
	t.Parallel()

	auth := &fakeAuth{keys: map[string]int64{"key-3": 3}}
	subs := NewSubscriptionManager()
	srv := newWSServer(t, &fakeTaskReader{}, auth, subs)

	conn, _, err := websocket.DefaultDialer.Dial(
		wsURL(srv, "/api/tasks/progress/3?api_key=key-3"), nil)
	require.NoError(t, err)
	readMessage(t, conn) // initial

	require.Eventually(t, func() bool {
		return subs.ConnectionCount(3) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return subs.ConnectionCount(3) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
