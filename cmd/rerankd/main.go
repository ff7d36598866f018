package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/knoguchi/rerankd/internal/auth"
	"github.com/knoguchi/rerankd/internal/backend"
	"github.com/knoguchi/rerankd/internal/config"
	"github.com/knoguchi/rerankd/internal/rerank"
	"github.com/knoguchi/rerankd/internal/server"
)

func main() {
	// Set up structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting rerank service",
		"http_port", cfg.HTTPPort,
		"backend_url", cfg.BackendURL,
		"api_type", cfg.BackendAPIType,
		"environment", cfg.Environment,
	)

	// Backend client and orchestrator
	client := backend.New(cfg.BackendURL)
	orchestrator := rerank.New(client)

	// Auth
	jwtManager := auth.NewJWTManager(&auth.JWTConfig{
		Secret: cfg.JWTSecret,
		Expiry: cfg.JWTExpiry,
		Issuer: "rerankd",
	})
	authenticator := auth.NewAuthenticator(cfg.APIKeys, jwtManager)
	if !authenticator.Enabled() {
		slog.Warn("no API keys configured, authentication disabled")
	}

	handler := server.NewRerankHandler(orchestrator, client, authenticator, jwtManager, cfg, slog.Default())

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		Logger:         slog.Default(),
		AllowedOrigins: cfg.AllowedOrigins,
		Authenticator:  authenticator,
		Handler:        handler,
		Client:         client,
	})

	// Start server
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
