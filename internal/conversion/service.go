package conversion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/therealutkarshpriyadarshi/lensconv/internal/logging"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/metrics"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/storage"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/tracing"
	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

const lockTTL = 10 * time.Minute

// ObjectStore holds uploaded scenes and exported files.
type ObjectStore interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, objectName string) (io.ReadCloser, error)
	GetURL(ctx context.Context, objectName string) (string, error)
}

// Repository persists scene files, jobs and outputs.
type Repository interface {
	GetSceneFile(ctx context.Context, id string) (*models.SceneFile, error)
	UpdateSceneFileStatus(ctx context.Context, id, status string) error
	UpdateJob(ctx context.Context, job *models.Job) error
	CreateOutput(ctx context.Context, output *models.Output) error
	DeleteOutputsByJobID(ctx context.Context, jobID string) error
}

// ResultCache caches conversion results and coordinates workers.
type ResultCache interface {
	SetConversion(ctx context.Context, result *models.ConversionResult, ttl time.Duration) error
	SetJobProgress(ctx context.Context, jobID string, progress float64, ttl time.Duration) error
	DeleteOutputs(ctx context.Context, sceneID string) error
	AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, resource string) error
}

// Notifier tells interested parties about job lifecycle changes.
type Notifier interface {
	NotifyJobStarted(ctx context.Context, job *models.Job)
	NotifyJobCompleted(ctx context.Context, job *models.Job)
	NotifyJobFailed(ctx context.Context, job *models.Job)
}

// ServiceConfig tunes job processing.
type ServiceConfig struct {
	WorkerID    string
	Parallelism int
	CacheTTL    time.Duration
}

// Service processes queued conversion jobs.
type Service struct {
	pipeline *Pipeline
	store    ObjectStore
	repo     Repository
	cache    ResultCache
	notifier Notifier
	cfg      ServiceConfig
	log      *logging.Logger
	now      func() time.Time
}

// NewService creates a job service. cache may be nil.
func NewService(pipeline *Pipeline, store ObjectStore, repo Repository, cache ResultCache, cfg ServiceConfig, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	return &Service{
		pipeline: pipeline,
		store:    store,
		repo:     repo,
		cache:    cache,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// SetNotifier registers n to receive job lifecycle events.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// ProcessJob converts the scene file of job and stores its exports. Errors
// worth retrying are returned. Jobs that can never succeed are marked failed
// and nil is returned.
func (s *Service) ProcessJob(ctx context.Context, job *models.Job, retryCount int) error {
	span, ctx := tracing.StartSpan(ctx, "conversion.process_job")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "job_id", job.ID)

	log := s.log.WithJobID(job.ID).WithSceneID(job.SceneID)
	if s.cfg.WorkerID != "" {
		log = log.WithWorkerID(s.cfg.WorkerID)
	}

	lock := "job:" + job.ID
	if s.cache != nil {
		ok, err := s.cache.AcquireLock(ctx, lock, lockTTL)
		if err != nil {
			log.WithError(err).Warn("Failed to acquire job lock, continuing without it")
		} else if !ok {
			log.Info("Job already being processed by another worker")
			return nil
		} else {
			defer s.cache.ReleaseLock(context.Background(), lock)
		}
	}

	scene, err := s.repo.GetSceneFile(ctx, job.SceneID)
	if err != nil {
		tracing.LogError(span, err)
		return fmt.Errorf("failed to load scene file: %w", err)
	}

	start := s.now()
	job.Status = models.JobStatusProcessing
	job.StartedAt = &start
	job.WorkerID = s.cfg.WorkerID
	job.RetryCount = retryCount
	job.ErrorMsg = ""
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	if err := s.repo.UpdateSceneFileStatus(ctx, scene.ID, models.SceneStatusConverting); err != nil {
		log.WithError(err).Warn("Failed to update scene status")
	}
	log.LogJobEvent(job.ID, "started", job.Status, map[string]interface{}{"retry": retryCount})
	if s.notifier != nil && retryCount == 0 {
		s.notifier.NotifyJobStarted(ctx, job)
	}

	rc, err := s.store.Download(ctx, scene.StorageKey)
	if err != nil {
		tracing.LogError(span, err)
		return s.retry(ctx, job, fmt.Errorf("failed to download scene: %w", err))
	}
	result, err := s.pipeline.Run(ctx, Request{
		Source:      rc,
		SourcePath:  scene.Filename,
		Destination: job.Config.Destination,
		Exporters:   job.Config.Exporters,
		TimeList:    job.Config.TimeList,
		NodeName:    job.Config.NodeName,
		Parallelism: s.cfg.Parallelism,
	})
	rc.Close()
	if err != nil {
		tracing.LogError(span, err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return s.retry(ctx, job, err)
		}
		return s.fail(ctx, job, scene, err)
	}

	job.Warnings = job.Warnings[:0]
	for _, f := range result.Conversion.Failures {
		job.Warnings = append(job.Warnings, fmt.Sprintf("camera %q (%d): %s", f.Name, f.Index, f.Error))
	}
	if len(result.Conversion.Cameras) == 0 {
		return s.fail(ctx, job, scene, errors.New("no camera could be converted"))
	}

	if err := s.storeArtifacts(ctx, job, scene, result.Artifacts, log); err != nil {
		tracing.LogError(span, err)
		return s.retry(ctx, job, err)
	}

	completed := s.now()
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	job.CompletedAt = &completed
	if err := s.repo.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	if err := s.repo.UpdateSceneFileStatus(ctx, scene.ID, models.SceneStatusConverted); err != nil {
		log.WithError(err).Warn("Failed to update scene status")
	}

	if s.cache != nil {
		if err := s.cache.SetConversion(ctx, result.Conversion, s.cfg.CacheTTL); err != nil {
			log.WithError(err).Warn("Failed to cache conversion result")
		}
		if err := s.cache.DeleteOutputs(ctx, scene.ID); err != nil {
			log.WithError(err).Warn("Failed to invalidate cached outputs")
		}
	}

	metrics.RecordJobCompleted(models.JobStatusCompleted, completed.Sub(start).Seconds())
	if s.notifier != nil {
		s.notifier.NotifyJobCompleted(ctx, job)
	}
	log.LogJobEvent(job.ID, "completed", job.Status, map[string]interface{}{
		"cameras":  len(result.Conversion.Cameras),
		"outputs":  len(result.Artifacts),
		"warnings": len(job.Warnings),
	})
	return nil
}

// storeArtifacts replaces the outputs of job with artifacts. Records left by
// an earlier attempt of the same job are dropped first.
func (s *Service) storeArtifacts(ctx context.Context, job *models.Job, scene *models.SceneFile, artifacts []Artifact, log *logging.Logger) error {
	if err := s.repo.DeleteOutputsByJobID(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to clear previous outputs: %w", err)
	}

	for i, a := range artifacts {
		key := storage.OutputKey(scene.ID, job.ID, a.Filename)
		if err := s.store.Upload(ctx, key, bytes.NewReader(a.Data), int64(len(a.Data)), a.ContentType); err != nil {
			return fmt.Errorf("failed to upload %s: %w", a.Filename, err)
		}

		url, err := s.store.GetURL(ctx, key)
		if err != nil {
			log.WithError(err).Warnf("Failed to presign %s", key)
		}

		output := &models.Output{
			JobID:       job.ID,
			SceneID:     scene.ID,
			CameraName:  a.CameraName,
			CameraIndex: a.CameraIndex,
			Exporter:    a.Exporter,
			Application: job.Config.Destination,
			Filename:    a.Filename,
			Size:        int64(len(a.Data)),
			Static:      a.Static,
			URL:         url,
			Path:        key,
		}
		if err := s.repo.CreateOutput(ctx, output); err != nil {
			return fmt.Errorf("failed to record output %s: %w", a.Filename, err)
		}

		job.Progress = float64(i+1) / float64(len(artifacts)) * 100
		if s.cache != nil {
			if err := s.cache.SetJobProgress(ctx, job.ID, job.Progress, time.Hour); err != nil {
				log.WithError(err).Debug("Failed to cache job progress")
			}
		}
	}
	return nil
}

// retry records err on job and hands it back to the caller for another attempt.
func (s *Service) retry(ctx context.Context, job *models.Job, err error) error {
	job.Status = models.JobStatusQueued
	job.ErrorMsg = err.Error()
	if uerr := s.repo.UpdateJob(ctx, job); uerr != nil {
		s.log.WithJobID(job.ID).WithError(uerr).Warn("Failed to record job error")
	}
	metrics.RecordError("conversion", "transient")
	return err
}

// fail marks job and its scene permanently failed.
func (s *Service) fail(ctx context.Context, job *models.Job, scene *models.SceneFile, err error) error {
	completed := s.now()
	job.Status = models.JobStatusFailed
	job.ErrorMsg = err.Error()
	job.CompletedAt = &completed
	if uerr := s.repo.UpdateJob(ctx, job); uerr != nil {
		return fmt.Errorf("failed to mark job failed: %w", uerr)
	}
	if uerr := s.repo.UpdateSceneFileStatus(ctx, scene.ID, models.SceneStatusFailed); uerr != nil {
		s.log.WithSceneID(scene.ID).WithError(uerr).Warn("Failed to update scene status")
	}

	var duration float64
	if job.StartedAt != nil {
		duration = completed.Sub(*job.StartedAt).Seconds()
	}
	metrics.RecordJobCompleted(models.JobStatusFailed, duration)
	s.log.WithJobID(job.ID).WithError(err).Error("Job failed")
	if s.notifier != nil {
		s.notifier.NotifyJobFailed(ctx, job)
	}
	return nil
}
