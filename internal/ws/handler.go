package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/phrazzld/echopod-api/internal/api/shared"
	"github.com/phrazzld/echopod-api/internal/domain"
	"github.com/phrazzld/echopod-api/internal/store"
)

// connBuffer is the per-connection update buffer. A connection that cannot
// drain this many updates starts missing events; the client catches up from
// the durable task records.
const connBuffer = 64

// Message is the wire envelope sent to WebSocket clients.
type Message struct {
	Event string             `json:"event"`
	Task  *domain.TaskUpdate `json:"task,omitempty"`
	Tasks []*domain.Task     `json:"tasks,omitempty"`
}

// TaskReader is the slice of the task manager the handler consumes.
type TaskReader interface {
	GetUserTasks(ctx context.Context, userID int64) ([]*domain.Task, error)
}

// KeyAuthenticator resolves API keys for the WebSocket upgrade, which cannot
// carry an Authorization header from browser clients and authenticates via
// an api_key query parameter instead.
type KeyAuthenticator interface {
	// UserForAPIKey resolves the key to its owning user. Any error means
	// the key is unusable; the handler rejects the upgrade without
	// distinguishing unknown keys from lookup failures.
	UserForAPIKey(ctx context.Context, apiKey string) (*store.User, error)

	// IsWebKey reports whether the key is the shared web-frontend key.
	IsWebKey(ctx context.Context, apiKey string) (bool, error)
}

// Handler serves the per-user task progress WebSocket endpoint.
type Handler struct {
	tasks    TaskReader
	subs     *SubscriptionManager
	auth     KeyAuthenticator
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a WebSocket handler on the given task reader and
// subscription manager.
func NewHandler(tasks TaskReader, subs *SubscriptionManager, auth KeyAuthenticator, logger *slog.Logger) *Handler {
	return &Handler{
		tasks: tasks,
		subs:  subs,
		auth:  auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cross-origin browsers are expected: the web client is served
			// from its own origin. The api_key check is the access control.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "ws_handler"),
	}
}

// TaskProgress upgrades GET /api/tasks/progress/{userID}?api_key=... to a
// WebSocket that streams the user's task updates until either side closes.
func (h *Handler) TaskProgress(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid user ID")
		return
	}

	apiKey := r.URL.Query().Get("api_key")
	if apiKey == "" {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "API key required")
		return
	}

	keyUser, err := h.auth.UserForAPIKey(r.Context(), apiKey)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusForbidden, "Invalid API key")
		return
	}

	// The key must belong to the requested user, or be the shared web key
	// acting on the user's behalf.
	if keyUser.ID != userID {
		isWeb, err := h.auth.IsWebKey(r.Context(), apiKey)
		if err != nil || !isWeb {
			shared.RespondWithError(w, r, http.StatusForbidden, "Unauthorized")
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Debug("websocket upgrade failed", "error", err, "user_id", userID)
		return
	}

	h.serve(conn, userID)
}

// serve runs one connection to completion. All exit paths deregister the
// connection and release the broadcast subscription.
func (h *Handler) serve(conn *websocket.Conn, userID int64) {
	defer func() {
		if err := conn.Close(); err != nil {
			h.logger.Debug("websocket close failed", "error", err, "user_id", userID)
		}
	}()

	// Registering with the subscription manager is what routes this
	// user's updates here; the fan-out pump owns the filtering.
	out := make(chan domain.TaskUpdate, connBuffer)
	h.subs.AddConnection(userID, out)
	defer h.subs.RemoveConnection(userID, out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Drain inbound control messages (keepalive pings). The read loop ends
	// when the client closes or the connection errors, which tears the
	// whole connection down.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send the current task list so a newly connected client does not have
	// to poll for state it missed before subscribing.
	tasks, err := h.tasks.GetUserTasks(ctx, userID)
	if err != nil {
		h.logger.Warn("failed to load initial task list", "user_id", userID, "error", err)
		tasks = nil
	}
	if err := conn.WriteJSON(Message{Event: "initial", Tasks: tasks}); err != nil {
		return
	}

	// Single writer loop; gorilla connections allow one concurrent writer.
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-out:
			if err := conn.WriteJSON(Message{Event: "update", Task: &update}); err != nil {
				h.logger.Debug("websocket write failed, dropping connection",
					"user_id", userID, "error", err)
				return
			}
		}
	}
}
