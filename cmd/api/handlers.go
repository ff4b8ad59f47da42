package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/lensconv/internal/config"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/conversion"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/database"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/exporter"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/logging"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/metrics"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/monitoring"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/rzml"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/storage"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/webhook"
	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

const (
	sceneFormField = "scene"
	outputsTTL     = 10 * time.Minute
)

// Repository is the persistence the API needs
type Repository interface {
	CreateSceneFile(ctx context.Context, scene *models.SceneFile) error
	GetSceneFile(ctx context.Context, id string) (*models.SceneFile, error)
	GetSceneFileByChecksum(ctx context.Context, checksum string) (*models.SceneFile, error)
	ListSceneFiles(ctx context.Context, limit, offset int) ([]*models.SceneFile, error)
	DeleteSceneFile(ctx context.Context, id string) error
	CreateJob(ctx context.Context, job *models.Job) error
	MarkJobQueued(ctx context.Context, jobID string) (bool, error)
	ResetFailedJob(ctx context.Context, jobID string) (bool, error)
	GetJob(ctx context.Context, id string) (*models.Job, error)
	GetJobsBySceneID(ctx context.Context, sceneID string) ([]*models.Job, error)
	GetOutputsBySceneID(ctx context.Context, sceneID string) ([]*models.Output, error)
	GetOutputsByJobID(ctx context.Context, jobID string) ([]*models.Output, error)
}

// ObjectStore holds uploaded scenes and exported files
type ObjectStore interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, objectName string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// JobPublisher hands jobs to the workers
type JobPublisher interface {
	PublishJob(ctx context.Context, job *models.Job) error
	RetryFromDLQ(ctx context.Context, job *models.Job) error
}

// JobScheduler takes over jobs the broker refused
type JobScheduler interface {
	ScheduleJob(job *models.Job) error
}

// ResultCache is the Redis cache as seen by the API
type ResultCache interface {
	GetConversion(ctx context.Context, checksum string, dest models.Application) (*models.ConversionResult, error)
	SetConversion(ctx context.Context, result *models.ConversionResult, ttl time.Duration) error
	GetJobProgress(ctx context.Context, jobID string) (float64, error)
	GetOutputs(ctx context.Context, sceneID string) ([]*models.Output, error)
	SetOutputs(ctx context.Context, sceneID string, outputs []*models.Output, ttl time.Duration) error
	DeleteOutputs(ctx context.Context, sceneID string) error
}

// API serves the conversion HTTP endpoints
type API struct {
	repo      Repository
	storage   ObjectStore
	queue     JobPublisher
	scheduler JobScheduler
	cache     ResultCache
	monitor   *monitoring.Monitor
	pipeline  *conversion.Pipeline
	cfg       *config.Config
	log       *logging.Logger
	health    map[string]func(context.Context) error
	stop      chan struct{}
}

type convertRequest struct {
	Destination string   `json:"destination" form:"destination"`
	Exporters   []string `json:"exporters" form:"-"`
	TimeList    string   `json:"time_list" form:"time_list"`
	NodeName    string   `json:"node_name" form:"node_name"`
	Priority    int      `json:"priority"`
	CallbackURL string   `json:"callback_url" form:"-"`
}

type artifactResponse struct {
	Camera      string `json:"camera"`
	CameraIndex int    `json:"camera_index"`
	Exporter    string `json:"exporter"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Static      bool   `json:"static"`
	Content     string `json:"content"`
}

// withDefaults fills unset fields from the converter configuration and validates the result
func (r convertRequest) withDefaults(cfg config.ConverterConfig) (models.ConvertConfig, error) {
	dest := r.Destination
	if dest == "" {
		dest = cfg.Destination
	}
	app, err := models.ParseApplication(dest)
	if err != nil {
		return models.ConvertConfig{}, err
	}

	exporters := r.Exporters
	if exporters == nil {
		exporters = cfg.Exporters
	}
	if _, err := exporter.NewAll(exporters); err != nil {
		return models.ConvertConfig{}, err
	}
	if _, err := exporter.ParseFrameList(r.TimeList); err != nil {
		return models.ConvertConfig{}, err
	}
	if err := webhook.ValidateCallbackURL(r.CallbackURL); err != nil {
		return models.ConvertConfig{}, err
	}

	timeList := r.TimeList
	if timeList == "" {
		timeList = cfg.TimeList
	}
	nodeName := r.NodeName
	if nodeName == "" {
		nodeName = cfg.NukeNodeName
	}

	return models.ConvertConfig{
		Destination: app,
		Exporters:   exporters,
		TimeList:    timeList,
		NodeName:    nodeName,
		CallbackURL: r.CallbackURL,
	}, nil
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true
	for name, check := range api.health {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "checks": checks})
}

// readScene reads the uploaded scene from the "scene" form field or, failing
// that, from the raw request body
func (api *API) readScene(c *gin.Context) ([]byte, string, error) {
	if limit := api.cfg.Server.MaxUploadBytes; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, err := c.FormFile(sceneFormField)
		if err != nil {
			return nil, "", fmt.Errorf("no scene file provided: %w", err)
		}
		f, err := file.Open()
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		return data, file.Filename, err
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty request body")
	}
	name := c.Query("filename")
	if name == "" {
		name = "scene.rzml"
	}
	return data, name, nil
}

// One-shot conversion endpoint. Without exporters the converted cameras are
// served from cache when the same document was converted before.
func (api *API) convert(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if c.Query("exporters") == "" {
		req.Exporters = []string{}
	} else {
		req.Exporters = strings.Split(c.Query("exporters"), ",")
	}

	convCfg, err := req.withDefaults(api.cfg.Converter)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, filename, err := api.readScene(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	checksum := conversion.Checksum(data)
	if api.cache != nil && len(convCfg.Exporters) == 0 {
		if cached, err := api.cache.GetConversion(ctx, checksum, convCfg.Destination); err == nil {
			metrics.RecordCacheAccess("conversion", true)
			c.JSON(http.StatusOK, gin.H{"result": cached, "cached": true})
			return
		}
		metrics.RecordCacheAccess("conversion", false)
	}

	result, err := api.pipeline.Run(ctx, conversion.Request{
		Source:      bytes.NewReader(data),
		SourcePath:  filename,
		Destination: convCfg.Destination,
		Exporters:   convCfg.Exporters,
		TimeList:    convCfg.TimeList,
		NodeName:    convCfg.NodeName,
		Parallelism: api.cfg.Converter.Parallelism,
	})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if api.cache != nil {
		if err := api.cache.SetConversion(ctx, result.Conversion, api.cfg.Converter.CacheTTL); err != nil {
			api.log.WithError(err).Warn("Failed to cache conversion result")
		}
	}

	artifacts := make([]artifactResponse, 0, len(result.Artifacts))
	for _, a := range result.Artifacts {
		artifacts = append(artifacts, artifactResponse{
			Camera:      a.CameraName,
			CameraIndex: a.CameraIndex,
			Exporter:    a.Exporter,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Static:      a.Static,
			Content:     string(a.Data),
		})
	}

	c.JSON(http.StatusOK, gin.H{"result": result.Conversion, "artifacts": artifacts, "cached": false})
}

// Upload scene endpoint
func (api *API) uploadScene(c *gin.Context) {
	data, filename, err := api.readScene(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	parsed, err := rzml.NewReader(api.log).Read(bytes.NewReader(data), filename)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	checksum := conversion.Checksum(data)

	// Identical documents share one scene record and stored object
	existing, err := api.repo.GetSceneFileByChecksum(ctx, checksum)
	switch {
	case err == nil:
		api.log.WithSceneID(existing.ID).Debugf("Upload of %s matches stored scene", filename)
		c.JSON(http.StatusOK, existing)
		return
	case !errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to look up scene: %v", err)})
		return
	}

	scene := &models.SceneFile{
		ID:          uuid.New().String(),
		Filename:    filename,
		Checksum:    checksum,
		Size:        int64(len(data)),
		Application: parsed.Application,
		CameraCount: len(parsed.Cameras),
		FrameRange:  parsed.FrameRange,
		Metadata: models.Metadata{
			"sequences": len(parsed.Sequences),
		},
		Status: models.SceneStatusUploaded,
	}
	scene.StorageKey = storage.SceneKey(scene.ID, filename)

	if err := api.storage.Upload(ctx, scene.StorageKey, bytes.NewReader(data), scene.Size, "application/xml"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to upload: %v", err)})
		return
	}

	if err := api.repo.CreateSceneFile(ctx, scene); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create scene: %v", err)})
		return
	}

	metrics.RecordSceneUpload(scene.Size)
	c.JSON(http.StatusCreated, scene)
}

// Get scene endpoint
func (api *API) getScene(c *gin.Context) {
	scene, err := api.repo.GetSceneFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.notFoundOrError(c, "Scene", err)
		return
	}

	c.JSON(http.StatusOK, scene)
}

// List scenes endpoint
func (api *API) listScenes(c *gin.Context) {
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	scenes, err := api.repo.ListSceneFiles(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scenes": scenes,
		"limit":  limit,
		"offset": offset,
	})
}

// Delete scene endpoint
func (api *API) deleteScene(c *gin.Context) {
	sceneID := c.Param("id")
	ctx := c.Request.Context()

	scene, err := api.repo.GetSceneFile(ctx, sceneID)
	if err != nil {
		api.notFoundOrError(c, "Scene", err)
		return
	}

	if err := api.storage.DeletePrefix(ctx, storage.OutputPrefix(sceneID)); err != nil {
		api.log.WithSceneID(sceneID).WithError(err).Warn("Failed to delete output files")
	}
	if err := api.storage.Delete(ctx, scene.StorageKey); err != nil {
		api.log.WithSceneID(sceneID).WithError(err).Warn("Failed to delete scene file")
	}

	if err := api.repo.DeleteSceneFile(ctx, sceneID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to delete scene: %v", err)})
		return
	}
	if api.cache != nil {
		_ = api.cache.DeleteOutputs(ctx, sceneID)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Scene deleted successfully", "scene_id": sceneID})
}

// Create conversion job endpoint
func (api *API) createConvertJob(c *gin.Context) {
	sceneID := c.Param("id")

	var req convertRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	convCfg, err := req.withDefaults(api.cfg.Converter)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if _, err := api.repo.GetSceneFile(ctx, sceneID); err != nil {
		api.notFoundOrError(c, "Scene", err)
		return
	}

	job := &models.Job{
		SceneID:  sceneID,
		Status:   models.JobStatusPending,
		Priority: req.Priority,
		Config:   convCfg,
	}
	if job.Priority == 0 {
		job.Priority = models.JobPriorityNormal
	}

	if err := api.repo.CreateJob(ctx, job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create job: %v", err)})
		return
	}
	metrics.RecordJobCreated(string(convCfg.Destination))

	api.enqueue(c, job, api.queue.PublishJob, http.StatusCreated)
}

// Retry failed job endpoint
func (api *API) retryJob(c *gin.Context) {
	jobID := c.Param("id")
	ctx := c.Request.Context()

	job, err := api.repo.GetJob(ctx, jobID)
	if err != nil {
		api.notFoundOrError(c, "Job", err)
		return
	}

	reset, err := api.repo.ResetFailedJob(ctx, jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to reset job: %v", err)})
		return
	}
	if !reset {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("Job is %s, only failed jobs can be retried", job.Status)})
		return
	}

	if job, err = api.repo.GetJob(ctx, jobID); err != nil {
		api.notFoundOrError(c, "Job", err)
		return
	}
	api.log.LogJobEvent(job.ID, "retried", job.Status, nil)
	api.enqueue(c, job, api.queue.RetryFromDLQ, http.StatusAccepted)
}

// enqueue hands a pending job to the broker through publish, falling back to
// the scheduler, and writes the job as the response
func (api *API) enqueue(c *gin.Context, job *models.Job, publish func(context.Context, *models.Job) error, status int) {
	ctx := c.Request.Context()

	if err := publish(ctx, job); err != nil {
		log := api.log.WithJobID(job.ID).WithError(err)
		if api.scheduler == nil || api.scheduler.ScheduleJob(job) != nil {
			log.Error("Failed to queue job")
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to queue job: %v", err)})
			return
		}
		// Stays pending; the scheduler publishes it once the broker is back
		log.Warn("Broker refused job, deferred to scheduler")
		c.JSON(http.StatusAccepted, job)
		return
	}

	queued, err := api.repo.MarkJobQueued(ctx, job.ID)
	switch {
	case err != nil:
		api.log.WithJobID(job.ID).WithError(err).Warn("Failed to mark job queued")
	case queued:
		job.Status = models.JobStatusQueued
	default:
		// A worker consumed the job before it was marked; report its state
		if current, err := api.repo.GetJob(ctx, job.ID); err == nil {
			job = current
		}
	}
	c.JSON(status, job)
}

// Monitoring endpoint
func (api *API) getMonitoring(c *gin.Context) {
	if api.monitor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "monitoring disabled"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"health":  api.monitor.GetSystemHealth(),
		"alerts":  api.monitor.GetAlerts(),
		"metrics": api.monitor.GetMetrics(),
	})
}

// Get job endpoint
func (api *API) getJob(c *gin.Context) {
	ctx := c.Request.Context()
	job, err := api.repo.GetJob(ctx, c.Param("id"))
	if err != nil {
		api.notFoundOrError(c, "Job", err)
		return
	}

	if api.cache != nil && job.Status == models.JobStatusProcessing {
		if progress, err := api.cache.GetJobProgress(ctx, job.ID); err == nil {
			job.Progress = progress
		}
	}

	c.JSON(http.StatusOK, job)
}

// Get scene jobs endpoint
func (api *API) getSceneJobs(c *gin.Context) {
	jobs, err := api.repo.GetJobsBySceneID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// Get scene outputs endpoint
func (api *API) getSceneOutputs(c *gin.Context) {
	sceneID := c.Param("id")
	ctx := c.Request.Context()

	if api.cache != nil {
		if outputs, err := api.cache.GetOutputs(ctx, sceneID); err == nil {
			metrics.RecordCacheAccess("outputs", true)
			c.JSON(http.StatusOK, gin.H{"outputs": outputs})
			return
		}
		metrics.RecordCacheAccess("outputs", false)
	}

	outputs, err := api.repo.GetOutputsBySceneID(ctx, sceneID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if api.cache != nil {
		if err := api.cache.SetOutputs(ctx, sceneID, outputs, outputsTTL); err != nil {
			api.log.WithSceneID(sceneID).WithError(err).Debug("Failed to cache outputs")
		}
	}

	c.JSON(http.StatusOK, gin.H{"outputs": outputs})
}

// Get job outputs endpoint
func (api *API) getJobOutputs(c *gin.Context) {
	outputs, err := api.repo.GetOutputsByJobID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"outputs": outputs})
}

func (api *API) notFoundOrError(c *gin.Context, what string, err error) {
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
