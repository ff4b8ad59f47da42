package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/lensconv/internal/cache"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/config"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/conversion"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/converter"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/database"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/logging"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/metrics"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/monitoring"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/queue"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/storage"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/tracing"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/webhook"
	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
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

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}
	logger = logger.WithWorkerID(workerID)

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

	if err := q.SetupDeadLetterQueue(); err != nil {
		logger.Fatalf("Failed to set up dead letter queue: %v", err)
	}

	var resultCache conversion.ResultCache
	if cfg.Converter.EnableCache {
		c, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, running without cache")
		} else {
			defer c.Close()
			resultCache = c
		}
	}

	pipeline := conversion.NewPipeline(logger, converter.WithStrictInvariants(cfg.Converter.StrictInvariants))
	service := conversion.NewService(pipeline, stor, repo, resultCache, conversion.ServiceConfig{
		WorkerID:    workerID,
		Parallelism: cfg.Converter.Parallelism,
		CacheTTL:    cfg.Converter.CacheTTL,
	}, logger)

	notifier := webhook.NewService(cfg.Webhook, logger)
	service.SetNotifier(notifier)

	// Metrics server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker gracefully...")
		cancel()
	}()

	monitor := monitoring.NewMonitor(repo, q, logger)
	monitor.Start(ctx)
	go heartbeat(ctx, monitor, workerID)

	// Jobs that exhausted their retries are recorded as failed
	dlqHandler := func(job *models.Job, reason string) error {
		stored, err := repo.GetJob(ctx, job.ID)
		if err != nil {
			return err
		}
		if stored.Status == models.JobStatusCompleted || stored.Status == models.JobStatusFailed {
			return nil
		}
		now := time.Now()
		stored.Status = models.JobStatusFailed
		stored.ErrorMsg = reason
		stored.CompletedAt = &now
		if err := repo.UpdateJob(ctx, stored); err != nil {
			return err
		}
		metrics.RecordJobCompleted(models.JobStatusFailed, 0)
		logger.WithJobID(job.ID).Warnf("Job failed after retries: %s", reason)
		notifier.NotifyJobFailed(ctx, stored)
		return nil
	}
	if err := q.ConsumeDLQ(ctx, dlqHandler); err != nil {
		logger.Fatalf("Failed to consume dead letter queue: %v", err)
	}

	// Start consuming jobs
	logger.Info("Worker started, waiting for jobs...")
	handler := func(ctx context.Context, job *models.Job, retryCount int) error {
		monitor.RegisterWorkerHeartbeat(workerID, job.ID)
		defer func() {
			monitor.IncrementWorkerJobCount(workerID)
			monitor.RegisterWorkerHeartbeat(workerID, "")
		}()
		return service.ProcessJob(ctx, job, retryCount)
	}
	if err := q.ConsumeJobs(ctx, cfg.Converter.Parallelism, handler); err != nil {
		logger.Fatalf("Failed to consume jobs: %v", err)
	}

	// Wait for shutdown
	<-ctx.Done()
	notifier.Wait()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsServer.Shutdown(shutdownCtx)
	}
	logger.Info("Worker stopped")
}

// heartbeat keeps the worker marked healthy between and during jobs
func heartbeat(ctx context.Context, monitor *monitoring.Monitor, workerID string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	monitor.Heartbeat(workerID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			monitor.Heartbeat(workerID)
		}
	}
}
