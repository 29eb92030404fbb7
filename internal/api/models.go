package api

import "github.com/phrazzld/echopod-api/internal/domain"

// Request and response models for the HTTP surface. Task records are
// serialized directly from domain.Task; only wrappers and request bodies
// live here.

// SpawnResponse acknowledges a newly spawned task. The work runs in the
// background; clients follow it through polling or the progress stream.
type SpawnResponse struct {
	TaskID string `json:"task_id"`
}

// TaskListResponse wraps a list of task records.
type TaskListResponse struct {
	Tasks []*domain.Task `json:"tasks"`
}

// LoginRequest carries username/password credentials.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the access token issued for a successful login.
type LoginResponse struct {
	Token   string `json:"token"`
	UserID  int64  `json:"user_id"`
	IsAdmin bool   `json:"is_admin"`
}

// ImportOPMLRequest carries an OPML document to import.
type ImportOPMLRequest struct {
	OPML string `json:"opml" validate:"required"`
}

// CleanupResponse reports how many expired task records were removed.
type CleanupResponse struct {
	Removed int `json:"removed"`
}
