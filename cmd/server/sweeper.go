package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/sethvargo/go-envconfig"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/repolens-dev/repolens-web/internal/db"
	"github.com/repolens-dev/repolens-web/internal/logger"
)

var sweeperTracer = otel.Tracer("repolens/sweeper")

// SweeperConfig holds configuration for the background cleanup process.
type SweeperConfig struct {
	DatabaseURL  string        `env:"DATABASE_URL, required"`
	PollInterval time.Duration `env:"SWEEP_INTERVAL, default=10m"`
	DryRun       bool          `env:"SWEEP_DRY_RUN"`
}

// runSweeper is the entry point for the background cleanup process. It
// deletes expired viewer and web sessions. Expired rows already fail
// validation, so sweeping is housekeeping; correctness never depends on it.
func runSweeper() {
	logger.Info("starting session sweeper")

	otelShutdown, err := otelconfig.ConfigureOpenTelemetry()
	if err != nil {
		logger.Warn("failed to configure OpenTelemetry for sweeper", "error", err)
	} else {
		defer otelShutdown()
	}

	var config SweeperConfig
	if err := envconfig.Process(context.Background(), &config); err != nil {
		logger.Fatal("failed to load sweeper configuration", "error", err)
	}
	logger.Info("sweeper configuration loaded",
		"poll_interval", config.PollInterval,
		"dry_run", config.DryRun,
	)

	database, err := db.Connect(config.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("sweeper shutting down")
		cancel()
	}()

	ticker := time.NewTicker(config.PollInterval)
	defer ticker.Stop()

	// Sweep once on startup, then on every tick.
	sweep(ctx, database, config.DryRun)
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			sweep(ctx, database, config.DryRun)
		}
	}
}

func sweep(ctx context.Context, database *db.DB, dryRun bool) {
	ctx, span := sweeperTracer.Start(ctx, "sweeper.sweep")
	defer span.End()

	if dryRun {
		logger.Info("dry-run: skipping session cleanup")
		return
	}

	viewerDeleted, err := database.DeleteExpiredViewerSessions(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("failed to sweep viewer sessions", "error", err)
	}

	webDeleted, err := database.DeleteExpiredWebSessions(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("failed to sweep web sessions", "error", err)
	}

	span.SetAttributes(
		attribute.Int64("sweeper.viewer_sessions_deleted", viewerDeleted),
		attribute.Int64("sweeper.web_sessions_deleted", webDeleted),
	)
	if viewerDeleted > 0 || webDeleted > 0 {
		logger.Info("swept expired sessions",
			"viewer_sessions", viewerDeleted,
			"web_sessions", webDeleted,
		)
	}
}
