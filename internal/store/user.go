package store

import (
	"context"
	"time"
)

// User is the account record the orchestrator consumes for ownership and
// authorization decisions. Account management itself lives outside this
// service; only the fields needed here are modeled.
type User struct {
	ID             int64
	Username       string
	Email          string
	HashedPassword string
	IsAdmin        bool
	CreatedAt      time.Time
}

// UserStore defines the interface for user lookups.
//
// The orchestrator trusts the user id returned here as the task owner and
// never re-derives it.
type UserStore interface {
	// GetByID retrieves a user by their unique id.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id int64) (*User, error)

	// GetByUsername retrieves a user by their username.
	// Returns ErrUserNotFound if the user does not exist.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByAPIKey resolves an API key to its owning user.
	// Returns ErrUserNotFound if the key is unknown or revoked.
	GetByAPIKey(ctx context.Context, apiKey string) (*User, error)

	// IsWebKey reports whether the API key is the shared web-frontend key,
	// which is allowed to act on behalf of any user.
	IsWebKey(ctx context.Context, apiKey string) (bool, error)
}
