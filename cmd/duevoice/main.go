package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duevoice/duevoice/internal/agent"
	"github.com/duevoice/duevoice/internal/api"
	"github.com/duevoice/duevoice/internal/bridge"
	"github.com/duevoice/duevoice/internal/config"
	"github.com/duevoice/duevoice/internal/database"
	"github.com/duevoice/duevoice/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting duevoice",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"engine_url", cfg.EngineURL,
	)

	if cfg.EngineURL == "" {
		slog.Warn("no engine-url configured, incoming calls cannot be bridged")
	}

	// Open database and run migrations.
	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Voice engine dialer used by every bridge.
	dialer := &bridge.Dialer{
		URL:            cfg.EngineURL,
		APIKey:         cfg.EngineAPIKey,
		VoiceID:        cfg.EngineVoiceID,
		ConnectTimeout: cfg.EngineConnectTimeout,
		ReadTimeout:    cfg.BridgeReadTimeout,
		Logger:         logger,
	}

	registry := bridge.NewRegistry()
	sessions := agent.NewStore()

	collector := metrics.NewCollector(registry, sessions, database.NewCallRepository(db), time.Now())

	handler, err := api.NewServer(cfg, db, dialer, registry, sessions, metrics.Handler(collector), logger)
	if err != nil {
		slog.Error("failed to create http server", "error", err)
		os.Exit(1)
	}
	defer handler.Close()
	collector.SetVerificationStats(handler.Verifier())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout. Active media streams are closed by
	// the server shutting down their websockets.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("duevoice stopped")
}
