package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/therealutkarshpriyadarshi/lensconv/internal/cache"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/config"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/conversion"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/converter"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/database"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/logging"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/monitoring"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/queue"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/scheduler"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/storage"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/tracing"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	_, closer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer closer.Close()

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		logger.Fatalf("Failed to prepare database schema: %v", err)
	}

	repo := database.NewRepository(db)

	// Initialize storage
	stor, err := storage.New(cfg.Storage, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// Initialize queue
	q, err := queue.New(cfg.Queue, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := monitoring.NewMonitor(repo, q, logger)
	monitor.Start(ctx)

	api := &API{
		repo:     repo,
		storage:  stor,
		queue:    q,
		monitor:  monitor,
		pipeline: conversion.NewPipeline(logger, converter.WithStrictInvariants(cfg.Converter.StrictInvariants)),
		cfg:      cfg,
		log:      logger,
		health: map[string]func(context.Context) error{
			"database": db.Health,
			"storage":  stor.Ping,
		},
		stop: make(chan struct{}),
	}
	defer close(api.stop)

	// Pending jobs are republished once the broker accepts them again
	if cfg.Scheduler.Enabled {
		sched := scheduler.NewScheduler(repo, q, cfg.Scheduler.BatchSize, logger)
		if err := sched.Start(); err != nil {
			logger.Fatalf("Failed to start scheduler: %v", err)
		}
		defer sched.Stop()
		api.scheduler = sched
	}

	// Cache is optional
	if cfg.Converter.EnableCache {
		c, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, running without cache")
		} else {
			defer c.Close()
			api.cache = c
			api.health["redis"] = c.Ping
		}
	}

	// Setup router
	router := setupRouter(api)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server stopped")
}
