package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cyderes/check-export-service/internal/check"
	"github.com/cyderes/check-export-service/internal/config"
	"github.com/cyderes/check-export-service/internal/ingestion"
	"github.com/cyderes/check-export-service/internal/logging"
	"github.com/cyderes/check-export-service/internal/metrics"
	"github.com/cyderes/check-export-service/internal/server"
	"github.com/cyderes/check-export-service/internal/storage"
)

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run periodic ingestion and the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Check.RequireCheck(); err != nil {
		return err
	}

	logger := logging.New(cfg.Log)
	m := metrics.Get()

	// Initialize storage
	store, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize storage")
		return err
	}
	defer store.Close()

	// Initialize ingestion service
	client := check.NewClient(cfg.Ingestion, logger)
	ingestor := ingestion.NewService(cfg.Ingestion, cfg.Check, client, store, m, logger)

	// Initialize HTTP server for API endpoints
	httpServer := server.NewServer(cfg.Server, store, m, logger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server
	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting HTTP server")
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server error")
		}
	}()

	// Start ingestion service
	go func() {
		logger.WithFields(logrus.Fields{
			"team":     cfg.Check.Team,
			"interval": cfg.Ingestion.Interval.String(),
			"storage":  cfg.Storage.Type,
		}).Info("Starting ingestion service")
		if err := ingestor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("Ingestion service error")
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	logger.Info("Shutdown signal received, gracefully shutting down...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown services
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown error")
	}

	cancel() // Cancel ingestion context
	logger.Info("Shutdown complete")
	return nil
}
