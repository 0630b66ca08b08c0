package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/repolens-dev/repolens-web/internal/auth"
	"github.com/repolens-dev/repolens-web/internal/models"
)

// AuthenticatedRequest creates an HTTP request with user authentication context
func AuthenticatedRequest(t *testing.T, method, url string, body interface{}, userID int64) *http.Request {
	t.Helper()

	var bodyReader *bytes.Reader
	if body != nil {
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(bodyJSON)
	} else {
		bodyReader = bytes.NewReader([]byte{})
	}

	req := httptest.NewRequest(method, url, bodyReader)
	req.Header.Set("Content-Type", "application/json")

	// Add user ID to context (simulating auth middleware)
	return req.WithContext(auth.WithUserID(req.Context(), userID))
}

// ParseJSONResponse decodes JSON response body into v
func ParseJSONResponse(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v. Body: %s", err, w.Body.String())
	}
}

// AssertStatus checks HTTP status code matches expected
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()

	if w.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertErrorResponse checks error response format and message
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedMessage string) {
	t.Helper()

	AssertStatus(t, w, expectedStatus)

	var resp map[string]string
	ParseJSONResponse(t, w, &resp)

	if resp["error"] != expectedMessage {
		t.Errorf("expected error message %q, got %q", expectedMessage, resp["error"])
	}
}

// CreateTestUser creates a user in the database for testing. The user gets
// a stored GitHub token so proxy handlers can resolve it.
func CreateTestUser(t *testing.T, env *TestEnvironment, login, email string) *models.User {
	t.Helper()

	query := `
		INSERT INTO users (github_id, login, email, github_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, github_id, login, email, created_at, updated_at
	`

	githubID := "test-github-" + login
	token := "test-token-" + login

	var user models.User
	row := env.DB.QueryRow(env.Ctx, query, githubID, login, email, token)
	err := row.Scan(&user.ID, &user.GitHubID, &user.Login, &user.Email, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return &user
}

// ShareOptions configures CreateTestShare. Zero value creates an active
// share with no expiry and no view limit.
type ShareOptions struct {
	ExpiresAt *time.Time
	ViewLimit *int
	ViewCount int
	Inactive  bool
}

// CreateTestShare creates a share row for testing
func CreateTestShare(t *testing.T, env *TestEnvironment, userID int64, opts ShareOptions) *models.Share {
	t.Helper()

	query := `
		INSERT INTO shares (user_id, repo_owner, repo_name, expires_at, view_limit, view_count, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, user_id, repo_owner, repo_name, shared_with, expires_at, view_limit, view_count, is_active, created_at
	`

	var share models.Share
	row := env.DB.QueryRow(env.Ctx, query,
		userID, "octocat", "hello-world", opts.ExpiresAt, opts.ViewLimit, opts.ViewCount, !opts.Inactive)
	err := row.Scan(
		&share.ID,
		&share.UserID,
		&share.RepoOwner,
		&share.RepoName,
		&share.SharedWith,
		&share.ExpiresAt,
		&share.ViewLimit,
		&share.ViewCount,
		&share.IsActive,
		&share.CreatedAt,
	)
	if err != nil {
		t.Fatalf("failed to create test share: %v", err)
	}

	return &share
}

// CreateTestViewerSession inserts a viewer session row directly, bypassing
// the handshake. Useful for testing the validator in isolation.
func CreateTestViewerSession(t *testing.T, env *TestEnvironment, shareID string, expiresAt time.Time) *models.ViewerSession {
	t.Helper()

	query := `
		INSERT INTO viewer_sessions (id, share_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, share_id, created_at, expires_at
	`

	var session models.ViewerSession
	row := env.DB.QueryRow(env.Ctx, query, uuid.New().String(), shareID, expiresAt)
	err := row.Scan(&session.ID, &session.ShareID, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		t.Fatalf("failed to create test viewer session: %v", err)
	}

	return &session
}

// CreateTestWebSessionWithToken creates a web session and returns the session token.
// This is useful for tests that need to make session-authenticated requests.
func CreateTestWebSessionWithToken(t *testing.T, env *TestEnvironment, userID int64) string {
	t.Helper()

	sessionID := fmt.Sprintf("test-session-%d-%d", userID, time.Now().UnixNano())

	expiresAt := time.Now().UTC().Add(24 * time.Hour)
	query := `INSERT INTO web_sessions (id, user_id, expires_at) VALUES ($1, $2, $3)`
	if _, err := env.DB.Exec(env.Ctx, query, sessionID, userID, expiresAt); err != nil {
		t.Fatalf("failed to create test web session: %v", err)
	}

	return sessionID
}

// GetShareViewCount reads the current view_count of a share
func GetShareViewCount(t *testing.T, env *TestEnvironment, shareID string) int {
	t.Helper()

	var count int
	row := env.DB.QueryRow(env.Ctx, `SELECT view_count FROM shares WHERE id = $1`, shareID)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("failed to read view count: %v", err)
	}
	return count
}

// CountViewerSessions counts viewer sessions recorded for a share
func CountViewerSessions(t *testing.T, env *TestEnvironment, shareID string) int {
	t.Helper()

	var count int
	row := env.DB.QueryRow(env.Ctx, `SELECT COUNT(*) FROM viewer_sessions WHERE share_id = $1`, shareID)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("failed to count viewer sessions: %v", err)
	}
	return count
}
