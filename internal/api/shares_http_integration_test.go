package api_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/repolens-dev/repolens-web/internal/models"
	"github.com/repolens-dev/repolens-web/internal/testutil"
)

func TestOwnerRoutes_RequireSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)
	ts := newTestServer(t, env)
	client := testutil.NewTestClient(t, ts)

	resp, err := client.Get("/api/v1/shares")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusUnauthorized)

	resp, err = client.Get("/api/v1/me")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusUnauthorized)
}

func TestCreateShare_HTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)
	ts := newTestServer(t, env)

	owner := testutil.CreateTestUser(t, env, "owner", "owner@example.com")
	token := testutil.CreateTestWebSessionWithToken(t, env, owner.ID)
	client := testutil.NewTestClient(t, ts).WithSession(token)

	limit := 5
	resp, err := client.Post("/api/v1/shares", map[string]interface{}{
		"repoOwner":      "octocat",
		"repoName":       "hello-world",
		"expirationDays": 7,
		"viewLimit":      limit,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusCreated)

	var share models.Share
	testutil.ParseJSON(t, resp, &share)
	if share.ID == "" || share.UserID != owner.ID {
		t.Errorf("share = %+v, want id and owner set", share)
	}
	if share.ViewLimit == nil || *share.ViewLimit != limit {
		t.Errorf("viewLimit = %v, want %d", share.ViewLimit, limit)
	}
	if share.ExpiresAt == nil {
		t.Error("expiresAt should be set when expirationDays > 0")
	}
	if share.ViewCount != 0 || !share.IsActive {
		t.Errorf("new share should be active with zero views, got %+v", share)
	}

	// Validation failures are 400
	resp, err = client.Post("/api/v1/shares", map[string]interface{}{
		"repoOwner":      "bad/owner",
		"repoName":       "hello-world",
		"expirationDays": 7,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusBadRequest)

	resp, err = client.Post("/api/v1/shares", map[string]interface{}{
		"repoOwner":      "octocat",
		"repoName":       "hello-world",
		"expirationDays": 400,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusBadRequest)

	// Zero limit and zero expiry mean unlimited and never.
	resp, err = client.Post("/api/v1/shares", map[string]interface{}{
		"repoOwner": "octocat",
		"repoName":  "hello-world",
		"viewLimit": 0,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusCreated)
	testutil.ParseJSON(t, resp, &share)
	if share.ViewLimit != nil || share.ExpiresAt != nil {
		t.Errorf("share = %+v, want no limit and no expiry", share)
	}
}

func TestCreateShare_CSRFRequired(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)
	ts := newTestServer(t, env)

	owner := testutil.CreateTestUser(t, env, "owner", "owner@example.com")
	token := testutil.CreateTestWebSessionWithToken(t, env, owner.ID)
	client := testutil.NewTestClient(t, ts).WithSession(token)

	// Strip the token the client fetched and the middleware must reject the write.
	resp, err := client.RequestWithHeaders(http.MethodPost, "/api/v1/shares", map[string]interface{}{
		"repoOwner":      "octocat",
		"repoName":       "hello-world",
		"expirationDays": 7,
	}, map[string]string{"X-CSRF-Token": ""})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusForbidden)
}

func TestUpdateShare_HTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)
	ts := newTestServer(t, env)

	owner := testutil.CreateTestUser(t, env, "owner", "owner@example.com")
	other := testutil.CreateTestUser(t, env, "other", "other@example.com")
	limit := 10
	expires := time.Now().Add(24 * time.Hour)
	share := testutil.CreateTestShare(t, env, owner.ID, testutil.ShareOptions{ViewLimit: &limit, ExpiresAt: &expires})

	token := testutil.CreateTestWebSessionWithToken(t, env, owner.ID)
	client := testutil.NewTestClient(t, ts).WithSession(token)

	resp, err := client.Patch("/api/v1/shares/"+share.ID, map[string]interface{}{
		"viewLimit":   25,
		"clearExpiry": true,
	})
	if err != nil {
		t.Fatalf("patch failed: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusOK)

	var updated models.Share
	testutil.ParseJSON(t, resp, &updated)
	if updated.ViewLimit == nil || *updated.ViewLimit != 25 {
		t.Errorf("viewLimit = %v, want 25", updated.ViewLimit)
	}
	if updated.ExpiresAt != nil {
		t.Errorf("expiresAt = %v, want cleared", updated.ExpiresAt)
	}

	// Someone else's session sees the share as missing.
	otherToken := testutil.CreateTestWebSessionWithToken(t, env, other.ID)
	otherClient := testutil.NewTestClient(t, ts).WithSession(otherToken)
	resp, err = otherClient.Patch("/api/v1/shares/"+share.ID, map[string]interface{}{"viewLimit": 1})
	if err != nil {
		t.Fatalf("patch failed: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusNotFound)
}

func TestRevokeShare_HTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)
	ts := newTestServer(t, env)

	owner := testutil.CreateTestUser(t, env, "owner", "owner@example.com")
	other := testutil.CreateTestUser(t, env, "other", "other@example.com")
	share := testutil.CreateTestShare(t, env, owner.ID, testutil.ShareOptions{})

	otherToken := testutil.CreateTestWebSessionWithToken(t, env, other.ID)
	otherClient := testutil.NewTestClient(t, ts).WithSession(otherToken)
	resp, err := otherClient.Delete("/api/v1/shares/" + share.ID)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusNotFound)

	token := testutil.CreateTestWebSessionWithToken(t, env, owner.ID)
	client := testutil.NewTestClient(t, ts).WithSession(token)
	resp, err = client.Delete("/api/v1/shares/" + share.ID)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusOK)

	// Revoking twice converges, the share stays inactive.
	resp, err = client.Delete("/api/v1/shares/" + share.ID)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusOK)

	got, err := env.DB.GetShare(env.Ctx, share.ID)
	if err != nil {
		t.Fatalf("GetShare failed: %v", err)
	}
	if got.IsActive {
		t.Error("share should be inactive after revoke")
	}
}

func TestListShares_HTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)
	ts := newTestServer(t, env)

	owner := testutil.CreateTestUser(t, env, "owner", "owner@example.com")
	other := testutil.CreateTestUser(t, env, "other", "other@example.com")
	testutil.CreateTestShare(t, env, owner.ID, testutil.ShareOptions{})
	testutil.CreateTestShare(t, env, owner.ID, testutil.ShareOptions{Inactive: true})
	testutil.CreateTestShare(t, env, other.ID, testutil.ShareOptions{})

	token := testutil.CreateTestWebSessionWithToken(t, env, owner.ID)
	client := testutil.NewTestClient(t, ts).WithSession(token)

	resp, err := client.Get("/api/v1/shares")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusOK)

	var shares []models.Share
	testutil.ParseJSON(t, resp, &shares)
	if len(shares) != 2 {
		t.Fatalf("shares = %d, want 2 (own shares only, revoked included)", len(shares))
	}
	for _, s := range shares {
		if s.UserID != owner.ID {
			t.Errorf("listed share owned by %d, want %d", s.UserID, owner.ID)
		}
	}
}

func TestRevokeAll_HTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)
	ts := newTestServer(t, env)

	owner := testutil.CreateTestUser(t, env, "owner", "owner@example.com")
	testutil.CreateTestShare(t, env, owner.ID, testutil.ShareOptions{})
	testutil.CreateTestShare(t, env, owner.ID, testutil.ShareOptions{})
	testutil.CreateTestShare(t, env, owner.ID, testutil.ShareOptions{Inactive: true})

	token := testutil.CreateTestWebSessionWithToken(t, env, owner.ID)
	client := testutil.NewTestClient(t, ts).WithSession(token)

	resp, err := client.Post("/api/v1/user/revoke", nil)
	if err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusOK)

	var result struct {
		Success       bool `json:"success"`
		SharesRevoked int  `json:"sharesRevoked"`
	}
	testutil.ParseJSON(t, resp, &result)
	if !result.Success || result.SharesRevoked != 2 {
		t.Errorf("result = %+v, want 2 active shares revoked", result)
	}

	// The GitHub connection is gone, so the repo list is a 401.
	resp, err = client.Get("/api/v1/repos")
	if err != nil {
		t.Fatalf("repos failed: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusUnauthorized)
}

func TestGetMe_HTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)
	ts := newTestServer(t, env)

	owner := testutil.CreateTestUser(t, env, "alice", "alice@example.com")
	token := testutil.CreateTestWebSessionWithToken(t, env, owner.ID)
	client := testutil.NewTestClient(t, ts).WithSession(token)

	resp, err := client.Get("/api/v1/me")
	if err != nil {
		t.Fatalf("me failed: %v", err)
	}
	testutil.RequireStatus(t, resp, http.StatusOK)

	var me models.User
	testutil.ParseJSON(t, resp, &me)
	if me.Login != "alice" {
		t.Errorf("login = %q, want alice", me.Login)
	}
}
