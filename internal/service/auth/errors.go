package auth

import "errors"

// Common authentication service errors
var (
	// ErrInvalidToken indicates the token format is invalid or the
	// signature doesn't match.
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken indicates the token has expired.
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrTokenNotYetValid indicates the token is not yet valid (nbf claim
	// in the future).
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")

	// ErrMissingCredentials indicates neither a token nor an API key was
	// provided.
	ErrMissingCredentials = errors.New("authentication credentials are missing")

	// ErrInvalidAPIKey indicates the API key is unknown or revoked.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrInvalidCredentials indicates a failed username/password login.
	ErrInvalidCredentials = errors.New("invalid username or password")
)
