package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
)

type contextKey string

const userIDContextKey contextKey = "userID"

// GetUserID extracts the user ID from request context
func GetUserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

// WithUserID returns a context carrying the authenticated user's ID.
// Exposed for tests that exercise owner handlers directly.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// GenerateSessionID generates a random string for session IDs and OAuth state
func GenerateSessionID(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes)[:length], nil
}
