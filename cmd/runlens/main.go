// Package main is the entry point for the runlens viewer service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/runlens/runlens/internal/api"
	"github.com/runlens/runlens/internal/config"
	"github.com/runlens/runlens/internal/cursorstore"
	"github.com/runlens/runlens/internal/session"
	"github.com/runlens/runlens/internal/tracing"
	"github.com/runlens/runlens/internal/transport"
	"github.com/runlens/runlens/internal/wire"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("starting runlens",
		slog.String("port", cfg.Port),
		slog.String("source_url", cfg.SourceURL),
		slog.String("log_level", cfg.LogLevel),
	)

	// Initialize tracing
	tracerProvider, err := tracing.Init(context.Background(), &tracing.Config{
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.TracingEndpoint,
		Enabled:      cfg.TracingEnabled,
		SampleRate:   1.0,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Initialize checkpoint store based on configuration
	var checkpoints cursorstore.Store
	switch cfg.CursorStoreType {
	case "redis":
		redisCfg := &cursorstore.RedisConfig{
			URL:      cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CursorTTL,
		}
		redisStore, err := cursorstore.NewRedisStore(redisCfg)
		if err != nil {
			logger.Error("failed to connect to Redis, falling back to memory store", "error", err)
			checkpoints = cursorstore.NewMemoryStore()
		} else {
			checkpoints = redisStore
			logger.Info("using Redis cursor store", slog.String("url", cfg.RedisURL))
		}
	default:
		checkpoints = cursorstore.NewMemoryStore()
		logger.Info("using in-memory cursor store")
	}
	defer checkpoints.Close()

	// Initialize wire decoder and upstream source
	decoder, err := wire.NewDecoder(logger)
	if err != nil {
		logger.Error("failed to compile wire schemas", "error", err)
		os.Exit(1)
	}
	source := transport.NewHTTPSource(cfg.SourceURL, decoder, logger)

	// Initialize session manager
	sessCfg := session.Config{
		RingLimit:          cfg.ChunkRingLimit,
		SeekDebounce:       cfg.SeekDebounce,
		AdvanceTick:        cfg.AdvanceTick,
		CheckpointInterval: cfg.CheckpointInterval,
		Transport: transport.Config{
			PollInterval:       cfg.PollInterval,
			BackupPollInterval: cfg.BackupPollInterval,
			ReadyGrace:         cfg.ReadyGrace,
			MaxReconnectWait:   cfg.MaxReconnectWait,
		},
	}
	manager := session.NewManager(source, checkpoints, sessCfg, logger)

	// Initialize API handlers
	handlers := api.NewHandlers(manager, cfg, logger)
	server := api.NewServer(handlers)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown: stop accepting requests, then close sessions so
	// their cursors are checkpointed.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	manager.Close()

	if err := tracerProvider.Shutdown(ctx); err != nil {
		logger.Error("tracer shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
