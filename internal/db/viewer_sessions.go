package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/repolens-dev/repolens-web/internal/models"
)

// IssueViewerSession atomically consumes one view slot on a share and
// records a new viewer session expiring at expiresAt.
//
// The increment and the limit check are a single guarded UPDATE, so the
// storage engine serializes concurrent handshakes: for a share with one
// remaining slot, two simultaneous calls yield exactly one success and one
// ErrShareLimitReached. When the guard rejects the update, the share row is
// re-read inside the same transaction to report which precondition failed
// (not found, revoked, expired, or over the limit). A transient database
// failure is returned as a wrapped error, never as one of the share
// sentinels.
//
// Either both the counter bump and the session insert commit, or neither.
func (db *DB) IssueViewerSession(ctx context.Context, shareID, sessionID string, expiresAt time.Time) (*models.ViewerSession, error) {
	ctx, span := tracer.Start(ctx, "db.issue_viewer_session",
		trace.WithAttributes(attribute.String("share.id", shareID)))
	defer span.End()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Guarded increment: the WHERE clause re-checks active state, time
	// expiry, and remaining view budget at update time.
	var viewCount int
	err = tx.QueryRowContext(ctx, `
		UPDATE shares
		SET view_count = view_count + 1
		WHERE id = $1
		  AND is_active
		  AND (expires_at IS NULL OR expires_at > NOW())
		  AND (view_limit IS NULL OR view_count < view_limit)
		RETURNING view_count
	`, shareID).Scan(&viewCount)

	if err == sql.ErrNoRows {
		// Guard rejected the increment. Classify why, in precondition order.
		denial, cerr := classifyShareDenial(ctx, tx, shareID)
		if cerr != nil {
			return nil, cerr
		}
		return nil, denial
	}
	if err != nil {
		if isInvalidUUIDError(err) {
			return nil, ErrShareNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to increment view count: %w", err)
	}

	session := models.ViewerSession{
		ID:      sessionID,
		ShareID: shareID,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO viewer_sessions (id, share_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at, expires_at
	`, sessionID, shareID, expiresAt).Scan(&session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create viewer session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	span.SetAttributes(attribute.Int("share.view_count", viewCount))
	return &session, nil
}

// classifyShareDenial reads the share row and returns the sentinel for the
// first failing handshake precondition. Runs inside the issuer's transaction
// so it observes the same snapshot that rejected the increment.
func classifyShareDenial(ctx context.Context, tx *sql.Tx, shareID string) (error, error) {
	var isActive bool
	var expiresAt *time.Time
	var viewLimit *int
	var viewCount int

	err := tx.QueryRowContext(ctx,
		`SELECT is_active, expires_at, view_limit, view_count FROM shares WHERE id = $1`,
		shareID).Scan(&isActive, &expiresAt, &viewLimit, &viewCount)
	if err != nil {
		if err == sql.ErrNoRows || isInvalidUUIDError(err) {
			return ErrShareNotFound, nil
		}
		return nil, fmt.Errorf("failed to classify share denial: %w", err)
	}

	switch {
	case !isActive:
		return ErrShareRevoked, nil
	case expiresAt != nil && !expiresAt.After(time.Now().UTC()):
		return ErrShareExpired, nil
	case viewLimit != nil && viewCount >= *viewLimit:
		return ErrShareLimitReached, nil
	default:
		// The guard failed but the row now looks valid; surface as a
		// transient error so the caller retries instead of denying.
		return nil, fmt.Errorf("share %s rejected increment but passes all checks", shareID)
	}
}

// CheckShareUsable verifies the share exists, is active, and unexpired.
// Read-only; used by the validator on every protected request so revocation
// takes effect immediately.
//
// The view limit is deliberately not re-checked here. Only the issuer spends
// view slots, so a session minted on the last slot stays valid for its full
// TTL even though the share is now fully consumed. Owners cut viewers off by
// revoking, not by the counter catching up with them.
func (db *DB) CheckShareUsable(ctx context.Context, shareID string) error {
	share, err := db.GetShare(ctx, shareID)
	if err != nil {
		return err
	}

	if !share.IsActive {
		return ErrShareRevoked
	}
	if share.ExpiresAt != nil && !share.ExpiresAt.After(time.Now().UTC()) {
		return ErrShareExpired
	}

	return nil
}

// GetViewerSession retrieves a viewer session by id, regardless of expiry.
// Expiry is checked by the caller so it can report SessionExpired distinctly
// from a missing credential.
func (db *DB) GetViewerSession(ctx context.Context, sessionID string) (*models.ViewerSession, error) {
	query := `SELECT id, share_id, created_at, expires_at FROM viewer_sessions WHERE id = $1`

	var session models.ViewerSession
	err := db.conn.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.ShareID,
		&session.CreatedAt,
		&session.ExpiresAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrViewerSessionNotFound
		}
		return nil, fmt.Errorf("failed to get viewer session: %w", err)
	}

	return &session, nil
}

// DeleteExpiredViewerSessions garbage-collects sessions whose TTL lapsed.
// Expired rows already fail validation, so this is lazy housekeeping, not a
// correctness requirement.
func (db *DB) DeleteExpiredViewerSessions(ctx context.Context) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM viewer_sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired viewer sessions: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows, nil
}
