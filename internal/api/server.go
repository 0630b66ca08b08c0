package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/csrf"

	"github.com/repolens-dev/repolens-web/internal/access"
	"github.com/repolens-dev/repolens-web/internal/auth"
	"github.com/repolens-dev/repolens-web/internal/clientip"
	"github.com/repolens-dev/repolens-web/internal/db"
	"github.com/repolens-dev/repolens-web/internal/github"
	"github.com/repolens-dev/repolens-web/internal/logger"
	"github.com/repolens-dev/repolens-web/internal/ratelimit"
)

// Server holds dependencies for API handlers
type Server struct {
	db          *db.DB
	access      *access.Service
	github      *github.Client
	proxy       *github.Proxy
	oauthConfig auth.OAuthConfig
	config      Config
	version     string
}

// Config holds HTTP-surface configuration
type Config struct {
	AllowedOrigins []string
	CSRFSecretKey  string
	// HandshakeRPS bounds handshake attempts per client IP. Handshakes
	// consume view slots, so they get a tighter limit than reads.
	HandshakeRPS   float64
	HandshakeBurst int
}

// NewServer creates a new API server
func NewServer(database *db.DB, accessSvc *access.Service, ghClient *github.Client, proxy *github.Proxy, oauthConfig auth.OAuthConfig, config Config, version string) *Server {
	return &Server{
		db:          database,
		access:      accessSvc,
		github:      ghClient,
		proxy:       proxy,
		oauthConfig: oauthConfig,
		config:      config,
		version:     version,
	}
}

// SetupRoutes configures HTTP routes
func (s *Server) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(clientip.Middleware)
	r.Use(logger.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleRoot)

	// OAuth routes (public)
	r.Get("/auth/github/login", auth.HandleGitHubLogin(s.oauthConfig))
	r.Get("/auth/github/callback", auth.HandleGitHubCallback(s.oauthConfig, s.db))
	r.Get("/auth/logout", auth.HandleLogout(s.db))

	// Viewer routes. No login; access is granted per share by handshake.
	handshakeLimiter := ratelimit.NewInMemoryRateLimiter(s.config.HandshakeRPS, s.config.HandshakeBurst)
	r.Route("/api/share/{shareID}", func(r chi.Router) {
		r.With(ratelimit.Middleware(handshakeLimiter)).Post("/handshake", s.handleHandshake)
		r.Get("/status", s.handleStatus)
		r.Get("/", s.handleGetShareMeta)
		r.Get("/tree", s.handleGetTree)
		r.Get("/file", s.handleGetFile)
		r.Get("/commits", s.handleGetCommits)
	})

	// Owner routes (require web session). State-changing requests also
	// carry a CSRF token since auth rides on a cookie.
	csrfProtect := csrf.Protect(
		[]byte(s.config.CSRFSecretKey),
		csrf.Secure(auth.CookieSecure()),
		csrf.Path("/"),
	)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.SessionMiddleware(s.db))
		r.Use(csrfProtect)

		r.Get("/csrf-token", s.handleCSRFToken)
		r.Get("/me", s.handleGetMe)
		r.Get("/repos", s.handleListRepos)

		r.Post("/shares", s.handleCreateShare)
		r.Get("/shares", s.handleListShares)
		r.Patch("/shares/{shareID}", s.handleUpdateShare)
		r.Delete("/shares/{shareID}", s.handleRevokeShare)

		r.Post("/user/revoke", s.handleRevokeAll)
	})

	return r
}

// handleCSRFToken hands the SPA a token for state-changing requests.
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	token := csrf.Token(r)
	w.Header().Set("X-CSRF-Token", token)
	respondJSON(w, http.StatusOK, map[string]string{
		"csrf_token": token,
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleRoot returns API info
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"service": "repolens-backend",
		"version": s.version,
	})
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error JSON response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// denialStatus maps a denial reason to its HTTP status. Missing things are
// 404, missing or dead credentials are 401, everything else that is known
// but not permitted is 403.
func denialStatus(reason access.Reason) int {
	switch reason {
	case access.ReasonNotFound:
		return http.StatusNotFound
	case access.ReasonUnauthorized, access.ReasonInvalidSession, access.ReasonSessionExpired:
		return http.StatusUnauthorized
	default:
		return http.StatusForbidden
	}
}
