package models

import "time"

// User represents a RepoLens user (GitHub OAuth-based)
type User struct {
	ID        int64      `json:"id"`
	GitHubID  *string    `json:"github_id,omitempty"`
	Login     string     `json:"login"`
	Email     string     `json:"email"`
	Name      *string    `json:"name,omitempty"`
	AvatarURL *string    `json:"avatar_url,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"` // set when GitHub access is disconnected
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// WebSession represents an owner's browser session (for OAuth login)
type WebSession struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Share represents one read-only share link into a private repository.
// ViewCount is mutated exclusively by the handshake issuer's guarded
// increment; no other code path writes it.
type Share struct {
	ID         string     `json:"id"` // UUID, doubles as the share link token
	UserID     int64      `json:"user_id"`
	RepoOwner  string     `json:"repo_owner"`
	RepoName   string     `json:"repo_name"`
	SharedWith *string    `json:"shared_with,omitempty"` // recipient name/email, display only
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`  // nil = never expires by time
	ViewLimit  *int       `json:"view_limit,omitempty"`  // nil = unlimited views
	ViewCount  int        `json:"view_count"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ViewerSession represents one issued viewer session. Created exactly once
// per successful handshake, never mutated afterwards.
type ViewerSession struct {
	ID        string    `json:"id"` // opaque credential stored in the viewer cookie
	ShareID   string    `json:"share_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandshakeResponse is returned by the handshake endpoint
type HandshakeResponse struct {
	Success          bool       `json:"success"`
	SessionExpiresAt *time.Time `json:"sessionExpiresAt,omitempty"`
	Reason           string     `json:"reason,omitempty"`
}

// StatusResponse is returned by the status poll and used by the client to
// detect server-side revocation or expiry mid-view
type StatusResponse struct {
	HasAccess bool   `json:"hasAccess"`
	Reason    string `json:"reason,omitempty"`
}
