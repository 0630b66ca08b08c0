package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/sethvargo/go-envconfig"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/repolens-dev/repolens-web/internal/access"
	"github.com/repolens-dev/repolens-web/internal/api"
	"github.com/repolens-dev/repolens-web/internal/auth"
	"github.com/repolens-dev/repolens-web/internal/db"
	"github.com/repolens-dev/repolens-web/internal/github"
	"github.com/repolens-dev/repolens-web/internal/logger"
)

var version string

// Config is loaded from the environment at startup.
type Config struct {
	Port         int           `env:"PORT, default=8080"`
	DatabaseURL  string        `env:"DATABASE_URL, required"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT, default=30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT, default=30s"`

	GitHubClientID     string `env:"GITHUB_CLIENT_ID, required"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET, required"`
	GitHubRedirectURL  string `env:"GITHUB_REDIRECT_URL, required"`

	CSRFSecretKey  string `env:"CSRF_SECRET_KEY, required"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS, required"`

	HandshakeRPS   float64       `env:"HANDSHAKE_RATE_LIMIT_RPS, default=2"`
	HandshakeBurst int           `env:"HANDSHAKE_RATE_LIMIT_BURST, default=5"`
	ProxyCacheTTL  time.Duration `env:"PROXY_CACHE_TTL, default=60s"`

	EnablePprof bool `env:"ENABLE_PPROF"`
}

func main() {
	// Check for sweeper mode
	if len(os.Args) > 1 && os.Args[1] == "sweeper" {
		runSweeper()
		return
	}

	// Initialize OpenTelemetry (sends traces to Honeycomb)
	// Configured via env vars: OTEL_SERVICE_NAME, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_HEADERS
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry()
	if err != nil {
		logger.Warn("failed to configure OpenTelemetry", "error", err)
		// Non-fatal: continue without tracing if OTEL env vars not set
	} else {
		defer otelShutdown()
	}

	config := loadConfig()

	if config.EnablePprof {
		go startPprofServer()
	}

	// Initialize database connection
	// Note: Migrations are run separately via CLI before starting the server
	// See: migrate -database "$DATABASE_URL" -path internal/db/migrations up
	database, err := db.Connect(config.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()

	accessSvc := access.NewService(database)
	ghClient := github.NewClient()
	proxy := github.NewProxy(ghClient, config.ProxyCacheTTL)

	oauthConfig := auth.OAuthConfig{
		GitHubClientID:     config.GitHubClientID,
		GitHubClientSecret: config.GitHubClientSecret,
		GitHubRedirectURL:  config.GitHubRedirectURL,
	}

	server := api.NewServer(database, accessSvc, ghClient, proxy, oauthConfig, api.Config{
		AllowedOrigins: splitOrigins(config.AllowedOrigins),
		CSRFSecretKey:  config.CSRFSecretKey,
		HandshakeRPS:   config.HandshakeRPS,
		HandshakeBurst: config.HandshakeBurst,
	}, version)
	router := server.SetupRoutes()

	// Wrap router with OpenTelemetry HTTP instrumentation
	handler := otelhttp.NewHandler(router, "repolens-backend")

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", config.Port, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}

func loadConfig() Config {
	var config Config
	if err := envconfig.Process(context.Background(), &config); err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}

	if len(config.CSRFSecretKey) < 32 {
		logger.Fatal("invalid env var", "var", "CSRF_SECRET_KEY", "error", "must be at least 32 characters")
	}

	return config
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// startPprofServer starts a pprof debug server on localhost:6060.
// Only accessible locally; use a port-forwarding proxy for remote debugging.
func startPprofServer() {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	mux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/debug/pprof/allocs", pprof.Handler("allocs"))

	addr := "127.0.0.1:6060"
	logger.Info("pprof debug server starting", "addr", addr)

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("pprof server failed", "error", err)
	}
}
