package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/qritwik/n8n-saas/internal/config"
	"github.com/qritwik/n8n-saas/internal/database"
	"github.com/qritwik/n8n-saas/internal/googleauth"
	"github.com/qritwik/n8n-saas/internal/n8n"
	"github.com/qritwik/n8n-saas/internal/repository"
	"github.com/qritwik/n8n-saas/internal/server"
	"github.com/qritwik/n8n-saas/internal/service"
	"github.com/qritwik/n8n-saas/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	logger.Info("database connected")

	if err := database.RunMigrations(sqlDB); err != nil {
		return err
	}
	logger.Info("migrations completed")

	// Repositories
	userRepo := repository.NewUserRepository(db)
	credRepo := repository.NewCredentialRepository(sqlDB)
	workflowRepo := repository.NewWorkflowRepository(sqlDB)

	// Remote clients
	googleClient := googleauth.NewClient(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.RedirectURI)
	n8nClient := n8n.NewClient(n8n.Config{
		BaseURL:            cfg.N8NURL,
		APIKey:             cfg.N8NAPIKey,
		GoogleClientID:     cfg.GoogleClientID,
		GoogleClientSecret: cfg.GoogleClientSecret,
		TelegramChatID:     cfg.TelegramChatID,
		TelegramCredID:     cfg.TelegramCredID,
		Timeout:            cfg.N8NTimeout,
	}, logger)

	// Orchestrator and HTTP layer
	provisioner := service.NewProvisioner(credRepo, workflowRepo, googleClient, n8nClient, logger)
	srv := server.New(provisioner, userRepo, googleClient, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run-status reconciler
	w := watcher.New(cfg.ReconcileInterval, workflowRepo, n8nClient, logger)
	watcherErr := make(chan error, 1)
	go func() {
		watcherErr <- w.Start(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.ListenAddr)
		serverErr <- httpServer.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case err := <-watcherErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: lvl})
	}
	return slog.New(handler)
}
