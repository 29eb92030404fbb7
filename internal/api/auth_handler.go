package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/phrazzld/echopod-api/internal/api/shared"
	"github.com/phrazzld/echopod-api/internal/service/auth"
	"github.com/phrazzld/echopod-api/internal/store"
)

// AuthHandler serves the login endpoint that issues access tokens.
type AuthHandler struct {
	users     store.UserStore
	passwords auth.PasswordVerifier
	tokens    auth.JWTService
	logger    *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(
	users store.UserStore,
	passwords auth.PasswordVerifier,
	tokens auth.JWTService,
	log *slog.Logger,
) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{
		users:     users,
		passwords: passwords,
		tokens:    tokens,
		logger:    log.With(slog.String("component", "auth_handler")),
	}
}

// Login handles POST /api/auth/login.
// Unknown usernames and wrong passwords both answer 401 with the same
// message, so the response does not reveal which accounts exist.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	user, err := h.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			h.logger.Debug("login failed: unknown username")
			shared.RespondWithError(w, r, http.StatusUnauthorized, GetSafeErrorMessage(auth.ErrInvalidCredentials))
			return
		}
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	if err := h.passwords.Compare(user.HashedPassword, req.Password); err != nil {
		h.logger.Debug("login failed: password mismatch", slog.Int64("user_id", user.ID))
		shared.RespondWithError(w, r, http.StatusUnauthorized, GetSafeErrorMessage(auth.ErrInvalidCredentials))
		return
	}

	token, err := h.tokens.GenerateToken(r.Context(), user.ID, user.IsAdmin)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}

	h.logger.Info("user logged in", slog.Int64("user_id", user.ID))
	shared.RespondWithJSON(w, r, http.StatusOK, LoginResponse{
		Token:   token,
		UserID:  user.ID,
		IsAdmin: user.IsAdmin,
	})
}
