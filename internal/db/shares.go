package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/repolens-dev/repolens-web/internal/models"
)

// isInvalidUUIDError reports whether err is PostgreSQL rejecting a malformed
// UUID literal. Malformed share ids from URLs are treated as not-found.
func isInvalidUUIDError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "invalid input syntax for type uuid")
}

// CreateShare creates a new share link for a repository owned by userID.
// expiresAt nil means no time expiry; viewLimit nil means unlimited views.
func (db *DB) CreateShare(ctx context.Context, userID int64, repoOwner, repoName string, sharedWith *string, expiresAt *time.Time, viewLimit *int) (*models.Share, error) {
	ctx, span := tracer.Start(ctx, "db.create_share",
		trace.WithAttributes(
			attribute.Int64("user.id", userID),
			attribute.String("share.repo", repoOwner+"/"+repoName),
		))
	defer span.End()

	query := `INSERT INTO shares (user_id, repo_owner, repo_name, shared_with, expires_at, view_limit)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id, view_count, is_active, created_at`

	share := models.Share{
		UserID:     userID,
		RepoOwner:  repoOwner,
		RepoName:   repoName,
		SharedWith: sharedWith,
		ExpiresAt:  expiresAt,
		ViewLimit:  viewLimit,
	}

	err := db.conn.QueryRowContext(ctx, query, userID, repoOwner, repoName, sharedWith, expiresAt, viewLimit).
		Scan(&share.ID, &share.ViewCount, &share.IsActive, &share.CreatedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create share: %w", err)
	}

	span.SetAttributes(attribute.String("share.id", share.ID))
	return &share, nil
}

// GetShare retrieves a share by id
func (db *DB) GetShare(ctx context.Context, shareID string) (*models.Share, error) {
	query := `SELECT id, user_id, repo_owner, repo_name, shared_with, expires_at, view_limit, view_count, is_active, created_at
	          FROM shares WHERE id = $1`

	var share models.Share
	err := db.conn.QueryRowContext(ctx, query, shareID).Scan(
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
		if err == sql.ErrNoRows || isInvalidUUIDError(err) {
			return nil, ErrShareNotFound
		}
		return nil, fmt.Errorf("failed to get share: %w", err)
	}

	return &share, nil
}

// ListSharesForUser returns the user's shares, newest first, capped at 50
func (db *DB) ListSharesForUser(ctx context.Context, userID int64) ([]models.Share, error) {
	ctx, span := tracer.Start(ctx, "db.list_shares_for_user",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	query := `SELECT id, user_id, repo_owner, repo_name, shared_with, expires_at, view_limit, view_count, is_active, created_at
	          FROM shares
	          WHERE user_id = $1
	          ORDER BY created_at DESC
	          LIMIT 50`

	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	defer rows.Close()

	shares := make([]models.Share, 0)
	for rows.Next() {
		var share models.Share
		err := rows.Scan(
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
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		shares = append(shares, share)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shares: %w", err)
	}

	return shares, nil
}

// ShareLimitsUpdate describes a partial edit of a share's quota knobs.
// Nil fields are left unchanged; the Clear flags set a column back to NULL
// (never expires / unlimited) and win over the corresponding value.
type ShareLimitsUpdate struct {
	ExpiresAt      *time.Time
	ViewLimit      *int
	ClearExpiry    bool
	ClearViewLimit bool
}

// UpdateShareLimits edits a share's expiry and view limit. The update is
// keyed by id AND owner so overlapping owner edits cannot clobber someone
// else's record; 0 affected rows means not found or not the owner. Lowering
// the view limit below the current count is allowed: existing sessions keep
// access, new handshakes are denied.
func (db *DB) UpdateShareLimits(ctx context.Context, shareID string, ownerID int64, update ShareLimitsUpdate) (*models.Share, error) {
	ctx, span := tracer.Start(ctx, "db.update_share_limits",
		trace.WithAttributes(
			attribute.String("share.id", shareID),
			attribute.Int64("user.id", ownerID),
		))
	defer span.End()

	query := `
		UPDATE shares SET
			expires_at = CASE WHEN $1 THEN NULL WHEN $2::timestamptz IS NOT NULL THEN $2 ELSE expires_at END,
			view_limit = CASE WHEN $3 THEN NULL WHEN $4::integer IS NOT NULL THEN $4 ELSE view_limit END
		WHERE id = $5 AND user_id = $6
		RETURNING id, user_id, repo_owner, repo_name, shared_with, expires_at, view_limit, view_count, is_active, created_at`

	var share models.Share
	err := db.conn.QueryRowContext(ctx, query,
		update.ClearExpiry, update.ExpiresAt,
		update.ClearViewLimit, update.ViewLimit,
		shareID, ownerID,
	).Scan(
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
		if err == sql.ErrNoRows || isInvalidUUIDError(err) {
			// Could be either not found or not the owner - keeping combined error for security
			return nil, ErrUnauthorized
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to update share: %w", err)
	}

	return &share, nil
}

// RevokeShare deactivates a share. Ownership is enforced in the WHERE
// clause; the transition is a single atomic update so every subsequent
// issuer/validator call observes the inactive state immediately.
func (db *DB) RevokeShare(ctx context.Context, shareID string, ownerID int64) error {
	ctx, span := tracer.Start(ctx, "db.revoke_share",
		trace.WithAttributes(
			attribute.String("share.id", shareID),
			attribute.Int64("user.id", ownerID),
		))
	defer span.End()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE shares SET is_active = false WHERE id = $1 AND user_id = $2`,
		shareID, ownerID)
	if err != nil {
		if isInvalidUUIDError(err) {
			return ErrUnauthorized
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to revoke share: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Could be either not found or not the owner - keeping combined error for security
		return ErrUnauthorized
	}

	return nil
}

// execer is the subset of *sql.DB and *sql.Tx that bulk updates need, so the
// same statement can run standalone or inside a caller's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// revokeAllShares deactivates every active share the user owns in one
// statement. Already-inactive shares are untouched, so concurrent calls
// converge.
func revokeAllShares(ctx context.Context, ex execer, ownerID int64) (int64, error) {
	result, err := ex.ExecContext(ctx,
		`UPDATE shares SET is_active = false WHERE user_id = $1 AND is_active`,
		ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke shares: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}

// RevokeAllForUser deactivates every share the user owns. Also runs as part
// of DisconnectGitHub, where it shares the disconnect transaction.
func (db *DB) RevokeAllForUser(ctx context.Context, ownerID int64) (int64, error) {
	ctx, span := tracer.Start(ctx, "db.revoke_all_for_user",
		trace.WithAttributes(attribute.Int64("user.id", ownerID)))
	defer span.End()

	rows, err := revokeAllShares(ctx, db.conn, ownerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	span.SetAttributes(attribute.Int64("shares.revoked", rows))
	return rows, nil
}
