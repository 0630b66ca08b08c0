package db

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/repolens-dev/repolens-web/internal/models"
)

// UpsertUserFromGitHub creates or updates a user after a GitHub OAuth
// exchange. The access token is stored server-side only; it never appears in
// the User model or any API response.
func (db *DB) UpsertUserFromGitHub(ctx context.Context, githubID, login, email string, name, avatarURL *string, accessToken string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "db.upsert_user_from_github",
		trace.WithAttributes(attribute.String("user.login", login)))
	defer span.End()

	query := `
		INSERT INTO users (github_id, login, email, name, avatar_url, github_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (github_id) DO UPDATE SET
			login = EXCLUDED.login,
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			avatar_url = EXCLUDED.avatar_url,
			github_token = EXCLUDED.github_token,
			revoked_at = NULL,
			updated_at = NOW()
		RETURNING id, github_id, login, email, name, avatar_url, revoked_at, created_at, updated_at`

	var user models.User
	err := db.conn.QueryRowContext(ctx, query, githubID, login, email, name, avatarURL, accessToken).Scan(
		&user.ID,
		&user.GitHubID,
		&user.Login,
		&user.Email,
		&user.Name,
		&user.AvatarURL,
		&user.RevokedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return &user, nil
}

// GetUserByID retrieves a user by ID
func (db *DB) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "db.get_user_by_id",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	query := `SELECT id, github_id, login, email, name, avatar_url, revoked_at, created_at, updated_at FROM users WHERE id = $1`

	var user models.User
	err := db.conn.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.GitHubID,
		&user.Login,
		&user.Email,
		&user.Name,
		&user.AvatarURL,
		&user.RevokedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetUserGitHubToken returns the stored GitHub access token for a user.
// Returns ErrUserNotFound if the user doesn't exist or has disconnected.
func (db *DB) GetUserGitHubToken(ctx context.Context, userID int64) (string, error) {
	ctx, span := tracer.Start(ctx, "db.get_user_github_token",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	var token sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT github_token FROM users WHERE id = $1 AND revoked_at IS NULL`,
		userID).Scan(&token)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrUserNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to get github token: %w", err)
	}
	if !token.Valid || token.String == "" {
		return "", ErrUserNotFound
	}

	return token.String, nil
}

// DisconnectGitHub severs a user's GitHub link: the stored token is cleared
// and every active share the user owns is revoked, in one transaction. Once
// it commits, no viewer can reach the user's repositories through any share.
func (db *DB) DisconnectGitHub(ctx context.Context, userID int64) (int64, error) {
	ctx, span := tracer.Start(ctx, "db.disconnect_github",
		trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE users SET github_token = NULL, revoked_at = NOW(), updated_at = NOW() WHERE id = $1`,
		userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to clear github token: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return 0, ErrUserNotFound
	}

	revoked, err := revokeAllShares(ctx, tx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	span.SetAttributes(attribute.Int64("shares.revoked", revoked))
	return revoked, nil
}
