package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the
	// store. This is the generic version of the entity-specific not found
	// errors (e.g., ErrUserNotFound, ErrTaskNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., a podcast with the same feed URL for a user).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached. Callers should treat this as transient and surface it as a
	// 5xx-equivalent rather than retrying inside the store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// Entity-specific "not found" errors

	// ErrTaskNotFound indicates that the requested task record does not
	// exist or has expired from the task store. This is distinct from a
	// task that exists but is in a terminal state.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// ErrUserNotFound indicates that the requested user does not exist.
	ErrUserNotFound = fmt.Errorf("%w: user", ErrNotFound)

	// ErrPodcastNotFound indicates that the requested podcast does not exist.
	ErrPodcastNotFound = fmt.Errorf("%w: podcast", ErrNotFound)

	// ErrEpisodeNotFound indicates that the requested episode does not exist.
	ErrEpisodeNotFound = fmt.Errorf("%w: episode", ErrNotFound)

	// ErrFeedExists indicates that the user already follows the given feed.
	ErrFeedExists = fmt.Errorf("%w: feed", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
