package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/repolens-dev/repolens-web/internal/access"
	"github.com/repolens-dev/repolens-web/internal/auth"
	"github.com/repolens-dev/repolens-web/internal/db"
	"github.com/repolens-dev/repolens-web/internal/logger"
	"github.com/repolens-dev/repolens-web/internal/models"
	"github.com/repolens-dev/repolens-web/internal/validation"
)

const viewerCookieName = "viewer_session"

// viewerCookiePath scopes the session cookie to one share, so a browser
// holding sessions for several shares sends each one only where it belongs.
func viewerCookiePath(shareID string) string {
	return "/api/share/" + shareID
}

func setViewerCookie(w http.ResponseWriter, shareID, sessionID string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     viewerCookieName,
		Value:    sessionID,
		Path:     viewerCookiePath(shareID),
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   auth.CookieSecure(),
		SameSite: http.SameSiteLaxMode,
	})
}

func clearViewerCookie(w http.ResponseWriter, shareID string) {
	http.SetCookie(w, &http.Cookie{
		Name:   viewerCookieName,
		Value:  "",
		Path:   viewerCookiePath(shareID),
		MaxAge: -1,
	})
}

func viewerSessionID(r *http.Request) string {
	cookie, err := r.Cookie(viewerCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// handleHandshake grants a viewer session for a share. Each successful
// handshake consumes one view slot; a denied handshake consumes nothing.
func (s *Server) handleHandshake(w http.ResponseWriter, r *http.Request) {
	// Session grants must never be cached by intermediaries.
	w.Header().Set("Cache-Control", "no-store")

	shareID := chi.URLParam(r, "shareID")
	if err := validation.ValidateShareID(shareID); err != nil {
		respondJSON(w, http.StatusNotFound, models.HandshakeResponse{
			Success: false,
			Reason:  string(access.ReasonNotFound),
		})
		return
	}

	grant, err := s.access.IssueSession(r.Context(), shareID)
	if err != nil {
		if reason, ok := access.Denied(err); ok {
			clearViewerCookie(w, shareID)
			respondJSON(w, denialStatus(reason), models.HandshakeResponse{
				Success: false,
				Reason:  string(reason),
			})
			return
		}
		logger.Ctx(r.Context()).Error("handshake failed", "error", err, "share_id", shareID)
		respondError(w, http.StatusInternalServerError, "Failed to create view session")
		return
	}

	setViewerCookie(w, shareID, grant.SessionID, grant.ExpiresAt)
	respondJSON(w, http.StatusOK, models.HandshakeResponse{
		Success:          true,
		SessionExpiresAt: &grant.ExpiresAt,
	})
}

// handleStatus reports whether the caller's session still has access. The
// client polls this to notice revocation or expiry mid-view. Read-only: it
// never changes counters or session state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	shareID := chi.URLParam(r, "shareID")
	if err := validation.ValidateShareID(shareID); err != nil {
		respondJSON(w, http.StatusForbidden, models.StatusResponse{
			HasAccess: false,
			Reason:    string(access.ReasonNotFound),
		})
		return
	}

	status, err := s.access.Status(r.Context(), shareID, viewerSessionID(r))
	if err != nil {
		logger.Ctx(r.Context()).Error("status check failed", "error", err, "share_id", shareID)
		respondError(w, http.StatusInternalServerError, "Failed to check status")
		return
	}

	if !status.HasAccess {
		// A dead session's cookie is useless; drop it so the next
		// handshake starts clean.
		clearViewerCookie(w, shareID)
		respondJSON(w, http.StatusForbidden, status)
		return
	}

	respondJSON(w, http.StatusOK, status)
}

// requireViewerAccess validates the caller's viewer session for the share in
// the URL. On success it returns the share; on denial it writes the error
// response and returns nil.
func (s *Server) requireViewerAccess(w http.ResponseWriter, r *http.Request) *models.Share {
	shareID := chi.URLParam(r, "shareID")
	if err := validation.ValidateShareID(shareID); err != nil {
		respondError(w, http.StatusNotFound, "Share not found")
		return nil
	}

	if err := s.access.CheckAccess(r.Context(), shareID, viewerSessionID(r)); err != nil {
		if reason, ok := access.Denied(err); ok {
			clearViewerCookie(w, shareID)
			respondJSON(w, denialStatus(reason), map[string]string{"error": string(reason)})
			return nil
		}
		logger.Ctx(r.Context()).Error("access check failed", "error", err, "share_id", shareID)
		respondError(w, http.StatusInternalServerError, "Failed to verify access")
		return nil
	}

	share, err := s.db.GetShare(r.Context(), shareID)
	if err != nil {
		if errors.Is(err, db.ErrShareNotFound) {
			respondError(w, http.StatusNotFound, "Share not found")
			return nil
		}
		logger.Ctx(r.Context()).Error("failed to load share", "error", err, "share_id", shareID)
		respondError(w, http.StatusInternalServerError, "Failed to load share")
		return nil
	}

	return share
}

// ownerToken resolves the GitHub token of the share's owner. Viewers never
// present their own credentials; all upstream reads run as the owner.
func (s *Server) ownerToken(w http.ResponseWriter, r *http.Request, share *models.Share) (string, bool) {
	token, err := s.db.GetUserGitHubToken(r.Context(), share.UserID)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			// Owner disconnected after this share was created.
			respondJSON(w, http.StatusForbidden, map[string]string{"error": string(access.ReasonRevoked)})
			return "", false
		}
		logger.Ctx(r.Context()).Error("failed to resolve owner token", "error", err, "share_id", share.ID)
		respondError(w, http.StatusInternalServerError, "Failed to load repository")
		return "", false
	}
	return token, true
}

// shareMetaResponse is the viewer-facing description of a share. It exposes
// only what the landing page needs; owner identity and counters stay private.
type shareMetaResponse struct {
	RepoOwner string     `json:"repoOwner"`
	RepoName  string     `json:"repoName"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// handleGetShareMeta returns the repository a share points at. The landing
// page renders this before the handshake, so no session is required; the
// repository contents themselves stay behind the gate.
func (s *Server) handleGetShareMeta(w http.ResponseWriter, r *http.Request) {
	shareID := chi.URLParam(r, "shareID")
	if err := validation.ValidateShareID(shareID); err != nil {
		respondError(w, http.StatusNotFound, "Share not found")
		return
	}

	share, err := s.db.GetShare(r.Context(), shareID)
	if err != nil {
		if errors.Is(err, db.ErrShareNotFound) {
			respondError(w, http.StatusNotFound, "Share not found")
			return
		}
		logger.Ctx(r.Context()).Error("failed to load share", "error", err, "share_id", shareID)
		respondError(w, http.StatusInternalServerError, "Failed to load share")
		return
	}

	respondJSON(w, http.StatusOK, shareMetaResponse{
		RepoOwner: share.RepoOwner,
		RepoName:  share.RepoName,
		CreatedAt: share.CreatedAt,
		ExpiresAt: share.ExpiresAt,
	})
}

// handleGetTree returns the recursive file tree of the shared repository.
func (s *Server) handleGetTree(w http.ResponseWriter, r *http.Request) {
	share := s.requireViewerAccess(w, r)
	if share == nil {
		return
	}

	token, ok := s.ownerToken(w, r, share)
	if !ok {
		return
	}

	tree, err := s.proxy.Tree(r.Context(), token, share.RepoOwner, share.RepoName, r.URL.Query().Get("branch"))
	if err != nil {
		logger.Ctx(r.Context()).Error("failed to fetch tree", "error", err, "share_id", share.ID)
		respondError(w, http.StatusBadGateway, "Failed to fetch repository tree")
		return
	}

	respondJSON(w, http.StatusOK, tree)
}

// handleGetFile returns one file's contents from the shared repository.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	share := s.requireViewerAccess(w, r)
	if share == nil {
		return
	}

	path := r.URL.Query().Get("path")
	if err := validation.ValidateFilePath(path); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, ok := s.ownerToken(w, r, share)
	if !ok {
		return
	}

	file, err := s.proxy.File(r.Context(), token, share.RepoOwner, share.RepoName, path)
	if err != nil {
		logger.Ctx(r.Context()).Error("failed to fetch file", "error", err, "share_id", share.ID, "path", path)
		respondError(w, http.StatusBadGateway, "Failed to fetch file")
		return
	}

	respondJSON(w, http.StatusOK, file)
}

// handleGetCommits returns a page of the shared repository's history.
func (s *Server) handleGetCommits(w http.ResponseWriter, r *http.Request) {
	share := s.requireViewerAccess(w, r)
	if share == nil {
		return
	}

	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 30)
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 30
	}

	token, ok := s.ownerToken(w, r, share)
	if !ok {
		return
	}

	commits, err := s.proxy.Commits(r.Context(), token, share.RepoOwner, share.RepoName, page, perPage)
	if err != nil {
		logger.Ctx(r.Context()).Error("failed to fetch commits", "error", err, "share_id", share.ID)
		respondError(w, http.StatusBadGateway, "Failed to fetch commits")
		return
	}

	respondJSON(w, http.StatusOK, commits)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
