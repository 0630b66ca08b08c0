// Package access implements viewer session issuance and per-request access
// validation for share links. The handshake consumes one view slot and mints
// a short-lived session; every subsequent request re-validates both the
// session and the share it belongs to, so revocation and expiry take effect
// immediately rather than at session rollover.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/repolens-dev/repolens-web/internal/db"
	"github.com/repolens-dev/repolens-web/internal/models"
)

var tracer = otel.Tracer("repolens/access")

// SessionTTL is the viewer session lifetime. Sessions are never extended;
// after the TTL the viewer must complete a fresh handshake, which consumes
// another view slot.
const SessionTTL = 30 * time.Minute

// Reason identifies why access was denied. The set is closed: handlers map
// each value to an HTTP status and clients switch on the string form.
type Reason string

const (
	ReasonNotFound       Reason = "not_found"
	ReasonRevoked        Reason = "revoked"
	ReasonExpired        Reason = "expired"
	ReasonLimitReached   Reason = "limit_reached"
	ReasonUnauthorized   Reason = "unauthorized"
	ReasonInvalidSession Reason = "invalid_session"
	ReasonSessionExpired Reason = "session_expired"
)

// DeniedError is returned by Service methods when access is denied for a
// classifiable reason. Any other error from the Service is infrastructure
// failure and must not be presented to viewers as a denial.
type DeniedError struct {
	Reason Reason
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Reason)
}

// Denied unwraps err as a DeniedError, returning the reason and true on
// success.
func Denied(err error) (Reason, bool) {
	var d *DeniedError
	if errors.As(err, &d) {
		return d.Reason, true
	}
	return "", false
}

// Grant is the result of a successful handshake.
type Grant struct {
	SessionID string
	ShareID   string
	ExpiresAt time.Time
}

// Service issues viewer sessions and validates access against the store.
type Service struct {
	db *db.DB
}

func NewService(database *db.DB) *Service {
	return &Service{db: database}
}

// IssueSession performs the handshake for a share link: it atomically checks
// the share's preconditions, consumes one view slot, and mints a session.
// On denial the share's counters are untouched and the error is a
// DeniedError carrying one of ReasonNotFound, ReasonRevoked, ReasonExpired,
// or ReasonLimitReached.
func (s *Service) IssueSession(ctx context.Context, shareID string) (*Grant, error) {
	ctx, span := tracer.Start(ctx, "access.issue_session",
		trace.WithAttributes(attribute.String("share.id", shareID)))
	defer span.End()

	sessionID := uuid.New().String()
	expiresAt := time.Now().UTC().Add(SessionTTL)

	session, err := s.db.IssueViewerSession(ctx, shareID, sessionID, expiresAt)
	if err != nil {
		if reason, ok := shareDenialReason(err); ok {
			span.SetAttributes(attribute.String("access.denied", string(reason)))
			return nil, &DeniedError{Reason: reason}
		}
		return nil, err
	}

	return &Grant{
		SessionID: session.ID,
		ShareID:   session.ShareID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// CheckAccess validates a session credential against a share. It is
// read-only and idempotent: calling it any number of times never changes
// view counts or session state.
//
// Checks run in a fixed order so the reported reason is deterministic: the
// share's own preconditions first, then credential presence, then session
// resolution and expiry. Share state wins when both have gone bad, so a
// revoked share polled with a dead cookie still reports the revocation. A
// nil return means access is granted.
func (s *Service) CheckAccess(ctx context.Context, shareID, sessionID string) error {
	ctx, span := tracer.Start(ctx, "access.check_access",
		trace.WithAttributes(attribute.String("share.id", shareID)))
	defer span.End()

	if err := s.db.CheckShareUsable(ctx, shareID); err != nil {
		if reason, ok := shareDenialReason(err); ok {
			span.SetAttributes(attribute.String("access.denied", string(reason)))
			return &DeniedError{Reason: reason}
		}
		return err
	}

	if sessionID == "" {
		return &DeniedError{Reason: ReasonUnauthorized}
	}

	session, err := s.db.GetViewerSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, db.ErrViewerSessionNotFound) {
			return &DeniedError{Reason: ReasonInvalidSession}
		}
		return err
	}

	// A session is a credential for exactly one share.
	if session.ShareID != shareID {
		return &DeniedError{Reason: ReasonInvalidSession}
	}

	if !session.ExpiresAt.After(time.Now().UTC()) {
		return &DeniedError{Reason: ReasonSessionExpired}
	}

	return nil
}

// shareDenialReason maps store sentinels for share preconditions onto
// denial reasons. Unmapped errors are infrastructure failures.
func shareDenialReason(err error) (Reason, bool) {
	switch {
	case errors.Is(err, db.ErrShareNotFound):
		return ReasonNotFound, true
	case errors.Is(err, db.ErrShareRevoked):
		return ReasonRevoked, true
	case errors.Is(err, db.ErrShareExpired):
		return ReasonExpired, true
	case errors.Is(err, db.ErrShareLimitReached):
		return ReasonLimitReached, true
	default:
		return "", false
	}
}

// Status reports whether the given session currently has access to the
// share, for the client's poll loop. Infrastructure errors are returned as
// errors; denials are folded into the response.
func (s *Service) Status(ctx context.Context, shareID, sessionID string) (*models.StatusResponse, error) {
	err := s.CheckAccess(ctx, shareID, sessionID)
	if err == nil {
		return &models.StatusResponse{HasAccess: true}, nil
	}
	if reason, ok := Denied(err); ok {
		return &models.StatusResponse{HasAccess: false, Reason: string(reason)}, nil
	}
	return nil, err
}
