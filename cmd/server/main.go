package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/tendant/simple-news/pkg/simplenews"
	"github.com/tendant/simple-news/pkg/simplenews/config"
	"github.com/tendant/simple-news/pkg/simplenews/metrics"
	"github.com/tendant/simple-news/pkg/simplenews/sweep"
)

func main() {
	serverConfig, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load server configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(serverConfig)
	slog.SetDefault(logger)

	ctx := context.Background()
	collector := metrics.NewCollector()

	svc, closeService, err := serverConfig.BuildService(ctx,
		simplenews.WithLogger(logger),
		simplenews.WithMetrics(collector),
		simplenews.WithEventSink(simplenews.NewLoggingEventSink(logger)),
	)
	if err != nil {
		logger.Error("Failed to build service", "error", err)
		os.Exit(1)
	}
	defer closeService()

	var sweeper *sweep.Job
	if serverConfig.OrphanSweepSchedule != "" {
		sweeper, err = sweep.New(svc, serverConfig.OrphanSweepSchedule, serverConfig.OrphanSweepGrace, sweep.WithLogger(logger))
		if err != nil {
			logger.Error("Failed to schedule orphan sweep", "error", err)
			os.Exit(1)
		}
		sweeper.Start()
	}

	if serverConfig.JWTSecret == "" {
		logger.Warn("JWT_SECRET is not set; mutating routes are unauthenticated in development")
	}

	server := NewHTTPServer(svc, serverConfig, collector)

	httpServer := &http.Server{
		Addr:              ":" + serverConfig.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Simple News Server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType,
			"storage", serverConfig.Storage.Type)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if sweeper != nil {
		if err := sweeper.Stop(shutdownCtx); err != nil {
			logger.Warn("Orphan sweep did not stop cleanly", "error", err)
		}
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exiting")
}

// newLogger writes colored text in development and JSON everywhere else
func newLogger(cfg *config.ServerConfig) *slog.Logger {
	if cfg.IsDevelopment() {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      cfg.SlogLevel(),
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}
