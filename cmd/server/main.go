// Package main is the entry point for the quantumfolio HTTP service.
//
// The service exposes the Black-Litterman optimization engine over a REST API,
// keeps a local daily price history fed from Yahoo Finance, stores every run
// in SQLite and optionally archives runs and database backups to Cloudflare R2.
//
// Startup sequence:
//  1. Load configuration from environment variables (.env supported)
//  2. Initialize logging
//  3. Wire databases, services and background jobs via the DI container
//  4. Start the scheduler and the HTTP server
//  5. Wait for SIGINT/SIGTERM and shut down gracefully
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/quantumfolio/internal/config"
	"github.com/aristath/quantumfolio/internal/di"
	optimizationhandlers "github.com/aristath/quantumfolio/internal/modules/optimization/handlers"
	"github.com/aristath/quantumfolio/internal/server"
	"github.com/aristath/quantumfolio/internal/version"
	"github.com/aristath/quantumfolio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Fallback logger so configuration errors are still reported
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("data_dir", cfg.DataDir).
		Msg("Starting quantumfolio")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	// All databases must be closed so WAL checkpoints are written
	defer container.Close()

	optimizationHandler := optimizationhandlers.NewHandler(
		container.RunService,
		container.RunRepo,
		container.SyncService,
		log,
	)

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		DataDir:   cfg.DataDir,
		Databases: container.Databases(),
		Jobs:      container.Scheduler,
		Modules:   []server.RouteRegistrar{optimizationHandler},
	})

	container.Scheduler.Start()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Block until SIGINT (Ctrl+C) or SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// In-flight requests get 10 seconds; the scheduler then waits for running jobs
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	container.Scheduler.Stop()

	log.Info().Msg("Server stopped")
}
