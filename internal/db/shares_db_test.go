package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/repolens-dev/repolens-web/internal/db"
	"github.com/repolens-dev/repolens-web/internal/testutil"
)

func TestCreateShare_Defaults(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)

	owner := testutil.CreateTestUser(t, env, "owner", "owner@example.com")

	ctx := context.Background()
	share, err := env.DB.CreateShare(ctx, owner.ID, "octocat", "hello-world", nil, nil, nil)
	if err != nil {
		t.Fatalf("CreateShare failed: %v", err)
	}

	if _, err := uuid.Parse(share.ID); err != nil {
		t.Errorf("share ID %q is not a UUID", share.ID)
	}
	if !share.IsActive {
		t.Error("new share should be active")
	}
	if share.ViewCount != 0 {
		t.Errorf("ViewCount = %d, want 0", share.ViewCount)
	}
	if share.ExpiresAt != nil {
		t.Error("ExpiresAt should be nil (never expires)")
	}
	if share.ViewLimit != nil {
		t.Error("ViewLimit should be nil (unlimited)")
	}
}

func TestCreateShare_WithLimits(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)

	owner := testutil.CreateTestUser(t, env, "owner", "owner@example.com")

	ctx := context.Background()
	expiresAt := time.Now().UTC().Add(7 * 24 * time.Hour).Truncate(time.Microsecond)
	limit := 10
	recipient := "reviewer@example.com"

	share, err := env.DB.CreateShare(ctx, owner.ID, "octocat", "hello-world", &recipient, &expiresAt, &limit)
	if err != nil {
		t.Fatalf("CreateShare failed: %v", err)
	}

	if share.ExpiresAt == nil || !share.ExpiresAt.Equal(expiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", share.ExpiresAt, expiresAt)
	}
	if share.ViewLimit == nil || *share.ViewLimit != limit {
		t.Errorf("ViewLimit = %v, want %d", share.ViewLimit, limit)
	}
	if share.SharedWith == nil || *share.SharedWith != recipient {
		t.Errorf("SharedWith = %v, want %s", share.SharedWith, recipient)
	}
}

func TestGetShare_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)

	ctx := context.Background()
	if _, err := env.DB.GetShare(ctx, uuid.New().String()); !errors.Is(err, db.ErrShareNotFound) {
		t.Errorf("err = %v, want ErrShareNotFound", err)
	}
	if _, err := env.DB.GetShare(ctx, "garbage"); !errors.Is(err, db.ErrShareNotFound) {
		t.Errorf("err = %v, want ErrShareNotFound for malformed id", err)
	}
}

func TestListSharesForUser_OnlyOwn(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)

	alice := testutil.CreateTestUser(t, env, "alice", "alice@example.com")
	bob := testutil.CreateTestUser(t, env, "bob", "bob@example.com")

	testutil.CreateTestShare(t, env, alice.ID, testutil.ShareOptions{})
	testutil.CreateTestShare(t, env, alice.ID, testutil.ShareOptions{Inactive: true})
	testutil.CreateTestShare(t, env, bob.ID, testutil.ShareOptions{})

	shares, err := env.DB.ListSharesForUser(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("ListSharesForUser failed: %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("len(shares) = %d, want 2", len(shares))
	}
	for _, s := range shares {
		if s.UserID != alice.ID {
			t.Errorf("listed share owned by %d, want %d", s.UserID, alice.ID)
		}
	}
}

func TestUpdateShareLimits_OwnershipEnforced(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)

	alice := testutil.CreateTestUser(t, env, "alice", "alice@example.com")
	bob := testutil.CreateTestUser(t, env, "bob", "bob@example.com")
	share := testutil.CreateTestShare(t, env, alice.ID, testutil.ShareOptions{})

	ctx := context.Background()
	limit := 5
	_, err := env.DB.UpdateShareLimits(ctx, share.ID, bob.ID, db.ShareLimitsUpdate{ViewLimit: &limit})
	if !errors.Is(err, db.ErrUnauthorized) {
		t.Errorf("cross-owner update: err = %v, want ErrUnauthorized", err)
	}

	updated, err := env.DB.UpdateShareLimits(ctx, share.ID, alice.ID, db.ShareLimitsUpdate{ViewLimit: &limit})
	if err != nil {
		t.Fatalf("owner update failed: %v", err)
	}
	if updated.ViewLimit == nil || *updated.ViewLimit != limit {
		t.Errorf("ViewLimit = %v, want %d", updated.ViewLimit, limit)
	}
}

func TestUpdateShareLimits_PartialAndClear(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)

	owner := testutil.CreateTestUser(t, env, "owner", "owner@example.com")
	expiresAt := time.Now().UTC().Add(24 * time.Hour)
	limit := 10
	share := testutil.CreateTestShare(t, env, owner.ID, testutil.ShareOptions{ExpiresAt: &expiresAt, ViewLimit: &limit})

	ctx := context.Background()

	// Updating only the limit leaves the expiry alone
	newLimit := 3
	updated, err := env.DB.UpdateShareLimits(ctx, share.ID, owner.ID, db.ShareLimitsUpdate{ViewLimit: &newLimit})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.ExpiresAt == nil {
		t.Error("ExpiresAt should be unchanged")
	}
	if updated.ViewLimit == nil || *updated.ViewLimit != newLimit {
		t.Errorf("ViewLimit = %v, want %d", updated.ViewLimit, newLimit)
	}

	// Clearing both restores never-expires / unlimited
	updated, err = env.DB.UpdateShareLimits(ctx, share.ID, owner.ID, db.ShareLimitsUpdate{ClearExpiry: true, ClearViewLimit: true})
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if updated.ExpiresAt != nil {
		t.Errorf("ExpiresAt = %v, want nil", updated.ExpiresAt)
	}
	if updated.ViewLimit != nil {
		t.Errorf("ViewLimit = %v, want nil", updated.ViewLimit)
	}
}

func TestUpdateShareLimits_BelowCurrentCount(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)

	owner := testutil.CreateTestUser(t, env, "owner", "owner@example.com")
	share := testutil.CreateTestShare(t, env, owner.ID, testutil.ShareOptions{ViewCount: 5})

	ctx := context.Background()
	limit := 2
	updated, err := env.DB.UpdateShareLimits(ctx, share.ID, owner.ID, db.ShareLimitsUpdate{ViewLimit: &limit})
	if err != nil {
		t.Fatalf("lowering limit below count should succeed: %v", err)
	}
	if updated.ViewCount != 5 {
		t.Errorf("ViewCount = %d, want 5", updated.ViewCount)
	}

	// New handshakes are now denied
	_, err = env.DB.IssueViewerSession(ctx, share.ID, uuid.New().String(), time.Now().Add(time.Minute))
	if !errors.Is(err, db.ErrShareLimitReached) {
		t.Errorf("err = %v, want ErrShareLimitReached", err)
	}
}

func TestRevokeShare(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)

	alice := testutil.CreateTestUser(t, env, "alice", "alice@example.com")
	bob := testutil.CreateTestUser(t, env, "bob", "bob@example.com")
	share := testutil.CreateTestShare(t, env, alice.ID, testutil.ShareOptions{})

	ctx := context.Background()
	if err := env.DB.RevokeShare(ctx, share.ID, bob.ID); !errors.Is(err, db.ErrUnauthorized) {
		t.Errorf("cross-owner revoke: err = %v, want ErrUnauthorized", err)
	}

	if err := env.DB.RevokeShare(ctx, share.ID, alice.ID); err != nil {
		t.Fatalf("RevokeShare failed: %v", err)
	}

	if err := env.DB.CheckShareUsable(ctx, share.ID); !errors.Is(err, db.ErrShareRevoked) {
		t.Errorf("err = %v, want ErrShareRevoked after revoke", err)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)

	alice := testutil.CreateTestUser(t, env, "alice", "alice@example.com")
	bob := testutil.CreateTestUser(t, env, "bob", "bob@example.com")
	s1 := testutil.CreateTestShare(t, env, alice.ID, testutil.ShareOptions{})
	s2 := testutil.CreateTestShare(t, env, alice.ID, testutil.ShareOptions{})
	testutil.CreateTestShare(t, env, alice.ID, testutil.ShareOptions{Inactive: true})
	other := testutil.CreateTestShare(t, env, bob.ID, testutil.ShareOptions{})

	ctx := context.Background()
	revoked, err := env.DB.RevokeAllForUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("RevokeAllForUser failed: %v", err)
	}
	if revoked != 2 {
		t.Errorf("revoked = %d, want 2 (already-inactive share not counted)", revoked)
	}

	for _, id := range []string{s1.ID, s2.ID} {
		if err := env.DB.CheckShareUsable(ctx, id); !errors.Is(err, db.ErrShareRevoked) {
			t.Errorf("share %s: err = %v, want ErrShareRevoked", id, err)
		}
	}
	if err := env.DB.CheckShareUsable(ctx, other.ID); err != nil {
		t.Errorf("bob's share: err = %v, want nil", err)
	}

	// Nothing left to revoke on a second pass.
	revoked, err = env.DB.RevokeAllForUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("RevokeAllForUser failed: %v", err)
	}
	if revoked != 0 {
		t.Errorf("revoked = %d, want 0 on repeat", revoked)
	}
}

func TestDisconnectGitHub_RevokesAllShares(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	env := testutil.SetupTestEnvironment(t)
	env.CleanDB(t)

	owner := testutil.CreateTestUser(t, env, "owner", "owner@example.com")
	s1 := testutil.CreateTestShare(t, env, owner.ID, testutil.ShareOptions{})
	s2 := testutil.CreateTestShare(t, env, owner.ID, testutil.ShareOptions{})
	testutil.CreateTestShare(t, env, owner.ID, testutil.ShareOptions{Inactive: true})

	ctx := context.Background()
	revoked, err := env.DB.DisconnectGitHub(ctx, owner.ID)
	if err != nil {
		t.Fatalf("DisconnectGitHub failed: %v", err)
	}
	if revoked != 2 {
		t.Errorf("revoked = %d, want 2 (already-inactive share not counted)", revoked)
	}

	for _, id := range []string{s1.ID, s2.ID} {
		if err := env.DB.CheckShareUsable(ctx, id); !errors.Is(err, db.ErrShareRevoked) {
			t.Errorf("share %s: err = %v, want ErrShareRevoked", id, err)
		}
	}

	if _, err := env.DB.GetUserGitHubToken(ctx, owner.ID); !errors.Is(err, db.ErrUserNotFound) {
		t.Errorf("token should be gone after disconnect, got err = %v", err)
	}
}
