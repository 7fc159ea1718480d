package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/advent-arcade/internal/auth"
	"github.com/advent-arcade/internal/config"
	"github.com/advent-arcade/internal/games"
	"github.com/advent-arcade/internal/handler"
	"github.com/advent-arcade/internal/kafka"
	"github.com/advent-arcade/internal/scores"
	"github.com/advent-arcade/internal/service"
	"github.com/advent-arcade/internal/storage"
	"github.com/advent-arcade/internal/users"
	"github.com/advent-arcade/internal/websocket"
	"github.com/advent-arcade/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the primary document store
	logger.Info("opening document store", "backend", cfg.Storage.Backend)
	primary, err := storage.Open(ctx, cfg.Storage, cfg, logger)
	if err != nil {
		logger.Error("failed to open document store", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer primary.Close()

	// Open the optional backup store and restore missing documents from it
	var snapshotWorker *worker.SnapshotWorker
	if cfg.Backup.Backend != "" {
		backup, err := storage.Open(ctx, cfg.Backup, cfg, logger)
		if err != nil {
			logger.Error("failed to open backup store", "backend", cfg.Backup.Backend, "error", err)
			os.Exit(1)
		}
		defer backup.Close()

		snapshotWorker = worker.NewSnapshotWorker(primary, backup, &cfg.Snapshot, logger)
		restored, err := snapshotWorker.Restore(ctx)
		if err != nil {
			logger.Warn("failed to restore documents from backup", "error", err)
		} else if restored > 0 {
			logger.Info("restored documents from backup", "count", restored)
		}

		if cfg.Snapshot.Enabled {
			if err := snapshotWorker.Start(ctx); err != nil {
				logger.Error("failed to start snapshot worker", "error", err)
				os.Exit(1)
			}
		}
	}

	// Initialize stores
	scoreStore := scores.NewStore(primary, logger)
	userStore := users.NewStore(primary, scoreStore, &cfg.Auth, &cfg.Calendar, logger)
	catalog := games.NewCatalog(primary, logger)
	tokens := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	arcadeService := service.NewArcadeService(
		scoreStore,
		userStore,
		catalog,
		tokens,
		wsHub,
		&cfg.Leaderboard,
		logger,
	)

	// Initialize Kafka consumer for bulk score ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, arcadeService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
			if err := kafkaConsumer.Start(startCtx); err != nil {
				logger.Warn("Kafka consumer not ready yet, it keeps retrying in the background", "error", err)
			}
			startCancel()
		}
	}

	httpHandler := handler.NewHandler(arcadeService, wsHub, tokens, cfg.Server.AllowedOrigins, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "storage", primary.Name())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop accepting requests before the stores go away
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	wsHub.Stop()

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	// A final snapshot so the backup holds the last accepted scores
	if snapshotWorker != nil {
		if err := snapshotWorker.Stop(); err != nil {
			logger.Error("failed to stop snapshot worker", "error", err)
		}
		if _, err := snapshotWorker.RunOnce(shutdownCtx); err != nil {
			logger.Error("final snapshot failed", "error", err)
		}
	}

	logger.Info("server stopped")
}
