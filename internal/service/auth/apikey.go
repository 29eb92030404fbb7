package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/phrazzld/echopod-api/internal/platform/logger"
	"github.com/phrazzld/echopod-api/internal/store"
)

// APIKeyService resolves API keys to user accounts.
type APIKeyService struct {
	users store.UserStore
}

// NewAPIKeyService creates an APIKeyService backed by the user store.
func NewAPIKeyService(users store.UserStore) *APIKeyService {
	return &APIKeyService{users: users}
}

// UserForAPIKey returns the user owning the given API key, or
// ErrInvalidAPIKey when the key is empty or unknown.
func (s *APIKeyService) UserForAPIKey(ctx context.Context, apiKey string) (*store.User, error) {
	if apiKey == "" {
		return nil, ErrMissingCredentials
	}

	user, err := s.users.GetByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			logger.FromContext(ctx).Debug("api key lookup failed: unknown key")
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	return user, nil
}

// IsWebKey reports whether the API key is the backend web key, which
// may act on behalf of any user.
func (s *APIKeyService) IsWebKey(ctx context.Context, apiKey string) (bool, error) {
	if apiKey == "" {
		return false, nil
	}
	isWeb, err := s.users.IsWebKey(ctx, apiKey)
	if err != nil {
		return false, fmt.Errorf("failed to check web key: %w", err)
	}
	return isWeb, nil
}
