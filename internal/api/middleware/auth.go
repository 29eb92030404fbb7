package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/echopod-api/internal/api/shared"
	"github.com/phrazzld/echopod-api/internal/redact"
	"github.com/phrazzld/echopod-api/internal/service/auth"
)

// AuthMiddleware authenticates requests by JWT bearer token or Api-Key
// header and records the identity on the request context.
type AuthMiddleware struct {
	jwtService auth.JWTService
	apiKeys    *auth.APIKeyService
}

// NewAuthMiddleware creates an AuthMiddleware.
func NewAuthMiddleware(jwtService auth.JWTService, apiKeys *auth.APIKeyService) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		apiKeys:    apiKeys,
	}
}

// Authenticate accepts either an "Authorization: Bearer <jwt>" header or
// an "Api-Key" header. Requests without valid credentials get 401.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKey := r.Header.Get("Api-Key"); apiKey != "" {
			m.authenticateAPIKey(w, r, next, apiKey)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.jwtService.ValidateToken(r.Context(), parts[1])
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenNotYetValid):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			default:
				slog.Error("failed to validate token", "error", redact.Error(err))
				shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
			}
			return
		}

		ctx := shared.WithUser(r.Context(), claims.UserID, claims.IsAdmin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) authenticateAPIKey(
	w http.ResponseWriter,
	r *http.Request,
	next http.Handler,
	apiKey string,
) {
	user, err := m.apiKeys.UserForAPIKey(r.Context(), apiKey)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidAPIKey), errors.Is(err, auth.ErrMissingCredentials):
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid API key")
		default:
			slog.Error("failed to resolve api key", "error", redact.Error(err))
			shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
		}
		return
	}

	ctx := shared.WithUser(r.Context(), user.ID, user.IsAdmin)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// RequireAdmin rejects authenticated requests from non-administrators.
// Must run after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shared.IsAdmin(r.Context()) {
			shared.RespondWithError(w, r, http.StatusForbidden, "Administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserID extracts the authenticated user id from the request.
func GetUserID(r *http.Request) (int64, bool) {
	return shared.UserID(r.Context())
}
