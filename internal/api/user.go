package api

import (
	"errors"
	"net/http"

	"github.com/repolens-dev/repolens-web/internal/auth"
	"github.com/repolens-dev/repolens-web/internal/db"
	"github.com/repolens-dev/repolens-web/internal/logger"
)

// handleGetMe returns the authenticated user's profile
func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := s.db.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			respondError(w, http.StatusNotFound, "User not found")
			return
		}
		logger.Error("failed to get user", "error", err, "user_id", userID)
		respondError(w, http.StatusInternalServerError, "Failed to get user")
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// repoResponse is the repo picker entry for the share creation UI.
type repoResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	FullName    string  `json:"fullName"`
	Description *string `json:"description"`
	Language    *string `json:"language"`
	Private     bool    `json:"private"`
}

// handleListRepos lists the repositories the owner can share.
func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	token, err := s.db.GetUserGitHubToken(r.Context(), userID)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			respondError(w, http.StatusUnauthorized, "GitHub account not connected")
			return
		}
		logger.Error("failed to get github token", "error", err, "user_id", userID)
		respondError(w, http.StatusInternalServerError, "Failed to list repositories")
		return
	}

	repos, err := s.github.ListUserRepos(r.Context(), token)
	if err != nil {
		logger.Error("failed to list repos", "error", err, "user_id", userID)
		respondError(w, http.StatusBadGateway, "Failed to list repositories")
		return
	}

	out := make([]repoResponse, 0, len(repos))
	for _, repo := range repos {
		out = append(out, repoResponse{
			ID:          repo.ID,
			Name:        repo.Name,
			FullName:    repo.FullName,
			Description: repo.Description,
			Language:    repo.Language,
			Private:     repo.Private,
		})
	}

	respondJSON(w, http.StatusOK, out)
}
