package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/repolens-dev/repolens-web/internal/auth"
	"github.com/repolens-dev/repolens-web/internal/db"
	"github.com/repolens-dev/repolens-web/internal/logger"
	"github.com/repolens-dev/repolens-web/internal/validation"
)

// createShareRequest is the owner's request to mint a share link.
// ExpirationDays 0 means no time expiry; ViewLimit nil means unlimited.
type createShareRequest struct {
	RepoOwner      string `json:"repoOwner"`
	RepoName       string `json:"repoName"`
	SharedWith     string `json:"sharedWith,omitempty"`
	ExpirationDays int    `json:"expirationDays,omitempty"`
	ViewLimit      *int   `json:"viewLimit,omitempty"`
}

// updateShareRequest adjusts the quota knobs of an existing share.
// Omitted fields are left unchanged.
type updateShareRequest struct {
	ExpirationDays *int `json:"expirationDays,omitempty"`
	ViewLimit      *int `json:"viewLimit,omitempty"`
	ClearExpiry    bool `json:"clearExpiry,omitempty"`
	ClearViewLimit bool `json:"clearViewLimit,omitempty"`
}

// handleCreateShare mints a new share link for one of the owner's repos.
func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validation.ValidateRepoName("repoOwner", req.RepoOwner); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.ValidateRepoName("repoName", req.RepoName); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.ValidateSharedWith(req.SharedWith); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.ValidateExpirationDays(req.ExpirationDays); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	// An explicit zero means unlimited, same as omitting the field.
	if req.ViewLimit != nil && *req.ViewLimit == 0 {
		req.ViewLimit = nil
	}
	if err := validation.ValidateViewLimit(req.ViewLimit); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var sharedWith *string
	if req.SharedWith != "" {
		sharedWith = &req.SharedWith
	}
	var expiresAt *time.Time
	if req.ExpirationDays > 0 {
		t := time.Now().UTC().AddDate(0, 0, req.ExpirationDays)
		expiresAt = &t
	}

	share, err := s.db.CreateShare(r.Context(), userID, req.RepoOwner, req.RepoName, sharedWith, expiresAt, req.ViewLimit)
	if err != nil {
		logger.Error("failed to create share", "error", err, "user_id", userID)
		respondError(w, http.StatusInternalServerError, "Failed to create share")
		return
	}

	respondJSON(w, http.StatusCreated, share)
}

// handleListShares lists the owner's shares, newest first.
func (s *Server) handleListShares(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	shares, err := s.db.ListSharesForUser(r.Context(), userID)
	if err != nil {
		logger.Error("failed to list shares", "error", err, "user_id", userID)
		respondError(w, http.StatusInternalServerError, "Failed to list shares")
		return
	}

	respondJSON(w, http.StatusOK, shares)
}

// handleUpdateShare adjusts a share's expiry or view limit. The new limit
// may be below the current view count; existing sessions survive, new
// handshakes are denied.
func (s *Server) handleUpdateShare(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	shareID := chi.URLParam(r, "shareID")
	if err := validation.ValidateShareID(shareID); err != nil {
		respondError(w, http.StatusNotFound, "Share not found")
		return
	}

	var req updateShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	update := db.ShareLimitsUpdate{
		ClearExpiry:    req.ClearExpiry,
		ClearViewLimit: req.ClearViewLimit,
	}
	if req.ExpirationDays != nil {
		if *req.ExpirationDays == 0 {
			// Zero means never expires, same as clearExpiry.
			update.ClearExpiry = true
		} else {
			if err := validation.ValidateExpirationDays(*req.ExpirationDays); err != nil {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			t := time.Now().UTC().AddDate(0, 0, *req.ExpirationDays)
			update.ExpiresAt = &t
		}
	}
	if req.ViewLimit != nil {
		if *req.ViewLimit == 0 {
			update.ClearViewLimit = true
		} else {
			if err := validation.ValidateViewLimit(req.ViewLimit); err != nil {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			update.ViewLimit = req.ViewLimit
		}
	}

	share, err := s.db.UpdateShareLimits(r.Context(), shareID, userID, update)
	if err != nil {
		if errors.Is(err, db.ErrUnauthorized) || errors.Is(err, db.ErrShareNotFound) {
			// Same response whether the share is missing or owned by someone
			// else; owners can't probe other owners' share IDs.
			respondError(w, http.StatusNotFound, "Share not found")
			return
		}
		logger.Error("failed to update share", "error", err, "share_id", shareID)
		respondError(w, http.StatusInternalServerError, "Failed to update share")
		return
	}

	respondJSON(w, http.StatusOK, share)
}

// handleRevokeShare deactivates a share. Takes effect on the next access
// check; in-flight viewer sessions lose access immediately after.
func (s *Server) handleRevokeShare(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	shareID := chi.URLParam(r, "shareID")
	if err := validation.ValidateShareID(shareID); err != nil {
		respondError(w, http.StatusNotFound, "Share not found")
		return
	}

	if err := s.db.RevokeShare(r.Context(), shareID, userID); err != nil {
		if errors.Is(err, db.ErrUnauthorized) || errors.Is(err, db.ErrShareNotFound) {
			respondError(w, http.StatusNotFound, "Share not found")
			return
		}
		logger.Error("failed to revoke share", "error", err, "share_id", shareID)
		respondError(w, http.StatusInternalServerError, "Failed to revoke share")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleRevokeAll disconnects the owner's GitHub account and revokes every
// active share they own in one transaction.
func (s *Server) handleRevokeAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	revoked, err := s.db.DisconnectGitHub(r.Context(), userID)
	if err != nil {
		logger.Error("failed to revoke github access", "error", err, "user_id", userID)
		respondError(w, http.StatusInternalServerError, "Failed to revoke access")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"sharesRevoked": revoked,
	})
}
