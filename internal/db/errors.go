package db

import "errors"

// Sentinel errors for type-safe error checking
// Use errors.Is() instead of string comparison
var (
	// Share errors. The first four mirror the handshake precondition order:
	// existence, active flag, time expiry, view limit.
	ErrShareNotFound     = errors.New("share not found")
	ErrShareRevoked      = errors.New("share revoked")
	ErrShareExpired      = errors.New("share expired")
	ErrShareLimitReached = errors.New("share view limit reached")

	// Viewer session errors
	ErrViewerSessionNotFound = errors.New("viewer session not found")

	// User errors
	ErrUserNotFound = errors.New("user not found")

	// Ownership errors
	ErrUnauthorized = errors.New("unauthorized")

	// Web session errors
	ErrWebSessionNotFound = errors.New("web session not found or expired")
)
