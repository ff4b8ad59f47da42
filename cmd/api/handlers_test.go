package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/lensconv/internal/cache"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/config"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/conversion"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/database"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/logging"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/monitoring"
	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

const sampleScene = `<?xml version="1.0" encoding="UTF-8"?>
<RZML v="1.4.3">
  <TRNG t="1" d="10" f="24"/>
  <CINF i="1" n="camera01" sw="1920" sh="1080" fbh="24" a="1"/>
  <SHOT i="1" n="plate" ci="1" w="1920" h="1080">
    <TRNG t="1" d="3" f="24"/>
    <CFRM t="1" fovx="60" rd="-0.05"/>
    <CFRM t="2" fovx="60" rd="-0.08"/>
    <CFRM t="3" fovx="60" rd="-0.05"/>
  </SHOT>
</RZML>
`

type fakeRepo struct {
	mu      sync.Mutex
	scenes  map[string]*models.SceneFile
	jobs    map[string]*models.Job
	outputs []*models.Output
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		scenes: make(map[string]*models.SceneFile),
		jobs:   make(map[string]*models.Job),
	}
}

func (r *fakeRepo) CreateSceneFile(ctx context.Context, scene *models.SceneFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scenes[scene.ID] = scene
	return nil
}

func (r *fakeRepo) GetSceneFile(ctx context.Context, id string) (*models.SceneFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	scene, ok := r.scenes[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return scene, nil
}

func (r *fakeRepo) GetSceneFileByChecksum(ctx context.Context, checksum string) (*models.SceneFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.scenes {
		if s.Checksum == checksum {
			return s, nil
		}
	}
	return nil, database.ErrNotFound
}

func (r *fakeRepo) ListSceneFiles(ctx context.Context, limit, offset int) ([]*models.SceneFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var scenes []*models.SceneFile
	for _, s := range r.scenes {
		scenes = append(scenes, s)
	}
	return scenes, nil
}

func (r *fakeRepo) DeleteSceneFile(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scenes, id)
	return nil
}

func (r *fakeRepo) CreateJob(ctx context.Context, job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job.ID = uuid.New().String()
	r.jobs[job.ID] = job
	return nil
}

func (r *fakeRepo) MarkJobQueued(ctx context.Context, jobID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok || job.Status != models.JobStatusPending {
		return false, nil
	}
	job.Status = models.JobStatusQueued
	return true, nil
}

func (r *fakeRepo) ResetFailedJob(ctx context.Context, jobID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok || job.Status != models.JobStatusFailed {
		return false, nil
	}
	job.Status = models.JobStatusPending
	job.ErrorMsg = ""
	job.RetryCount = 0
	job.Progress = 0
	job.CompletedAt = nil
	return true, nil
}

func (r *fakeRepo) setJobStatus(jobID, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[jobID].Status = status
}

func (r *fakeRepo) GetJob(ctx context.Context, id string) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return job, nil
}

func (r *fakeRepo) GetJobsBySceneID(ctx context.Context, sceneID string) ([]*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var jobs []*models.Job
	for _, j := range r.jobs {
		if j.SceneID == sceneID {
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

func (r *fakeRepo) GetOutputsBySceneID(ctx context.Context, sceneID string) ([]*models.Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var outputs []*models.Output
	for _, o := range r.outputs {
		if o.SceneID == sceneID {
			outputs = append(outputs, o)
		}
	}
	return outputs, nil
}

func (r *fakeRepo) GetOutputsByJobID(ctx context.Context, jobID string) ([]*models.Output, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var outputs []*models.Output
	for _, o := range r.outputs {
		if o.JobID == jobID {
			outputs = append(outputs, o)
		}
	}
	return outputs, nil
}

type fakeStore struct {
	objects map[string][]byte
	deleted []string
}

func (s *fakeStore) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.objects[objectName] = data
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, objectName string) error {
	delete(s.objects, objectName)
	s.deleted = append(s.deleted, objectName)
	return nil
}

func (s *fakeStore) DeletePrefix(ctx context.Context, prefix string) error {
	s.deleted = append(s.deleted, prefix)
	return nil
}

type fakeQueue struct {
	published []*models.Job
	retried   []*models.Job
	err       error
	// consumed runs as if a worker received the job right after publishing
	consumed func(job *models.Job)
}

func (q *fakeQueue) PublishJob(ctx context.Context, job *models.Job) error {
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, job)
	if q.consumed != nil {
		q.consumed(job)
	}
	return nil
}

func (q *fakeQueue) RetryFromDLQ(ctx context.Context, job *models.Job) error {
	if q.err != nil {
		return q.err
	}
	q.retried = append(q.retried, job)
	return nil
}

type fakeScheduler struct {
	scheduled []*models.Job
}

func (s *fakeScheduler) ScheduleJob(job *models.Job) error {
	s.scheduled = append(s.scheduled, job)
	return nil
}

type fakeQueueDepth struct{}

func (fakeQueueDepth) GetQueueDepth() (int, error) { return 2, nil }
func (fakeQueueDepth) GetDLQDepth() (int, error)   { return 0, nil }

type fakeMonitoringRepo struct{}

func (fakeMonitoringRepo) GetJobStats(ctx context.Context) (int64, int64, int64, int64, error) {
	return 4, 3, 0, 0, nil
}

func (fakeMonitoringRepo) GetJobsByStatus(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{models.JobStatusCompleted: 3, models.JobStatusProcessing: 1}, nil
}

func (fakeMonitoringRepo) GetAverageProcessTime(ctx context.Context) (float64, error) {
	return 0.25, nil
}

func (fakeMonitoringRepo) GetRecentFailedJobs(ctx context.Context, limit int) ([]*database.FailedJob, error) {
	return nil, nil
}

type testEnv struct {
	router *gin.Engine
	api    *API
	repo   *fakeRepo
	store  *fakeStore
	queue  *fakeQueue
	cache  *cache.Cache
}

func setupTestAPI(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.RateLimit.RequestsPerSecond = 0

	mr := miniredis.RunT(t)
	c, err := cache.NewCache(mr.Host(), mr.Server().Addr().Port, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	env := &testEnv{
		repo:  newFakeRepo(),
		store: &fakeStore{objects: make(map[string][]byte)},
		queue: &fakeQueue{},
		cache: c,
	}
	env.api = &API{
		repo:     env.repo,
		storage:  env.store,
		queue:    env.queue,
		cache:    c,
		pipeline: conversion.NewPipeline(nil),
		cfg:      cfg,
		log:      logging.NewNopLogger(),
		health: map[string]func(context.Context) error{
			"redis": c.Ping,
		},
	}
	env.router = setupRouter(env.api)
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func multipartScene(t *testing.T, url, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(sceneFormField, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealthCheck(t *testing.T) {
	env := setupTestAPI(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	env.api.health["database"] = func(context.Context) error { return errors.New("down") }
	w = env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "down")
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestAPI(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestConvertSync(t *testing.T) {
	env := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert?destination=tde&exporters=lens,nuke&filename=shot010.rzml",
		bytes.NewBufferString(sampleScene))
	req.Header.Set("Content-Type", "application/xml")
	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Result    models.ConversionResult `json:"result"`
		Artifacts []artifactResponse      `json:"artifacts"`
		Cached    bool                    `json:"cached"`
	}
	decode(t, w, &resp)

	assert.False(t, resp.Cached)
	assert.Equal(t, models.ApplicationEqualizer, resp.Result.Destination)
	require.Len(t, resp.Result.Cameras, 1)
	require.Len(t, resp.Artifacts, 2)
	assert.Equal(t, "shot010_camera01_3deLens.txt", resp.Artifacts[0].Filename)
	assert.NotEmpty(t, resp.Artifacts[0].Content)
}

func TestConvertSyncCached(t *testing.T) {
	env := setupTestAPI(t)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/convert", bytes.NewBufferString(sampleScene))
		req.Header.Set("Content-Type", "application/xml")
		return env.do(req)
	}

	first := send()
	require.Equal(t, http.StatusOK, first.Code)
	assert.Contains(t, first.Body.String(), `"cached":false`)

	second := send()
	require.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), `"cached":true`)

	cached, err := env.cache.GetConversion(context.Background(), conversion.Checksum([]byte(sampleScene)), models.ApplicationEqualizer)
	require.NoError(t, err)
	assert.Len(t, cached.Cameras, 1)
}

func TestConvertSyncErrors(t *testing.T) {
	env := setupTestAPI(t)

	tests := []struct {
		name string
		url  string
		body string
		want int
	}{
		{"unknown destination", "/api/v1/convert?destination=maya", sampleScene, http.StatusBadRequest},
		{"unknown exporter", "/api/v1/convert?exporters=fbx", sampleScene, http.StatusBadRequest},
		{"bad time list", "/api/v1/convert?time_list=x", sampleScene, http.StatusBadRequest},
		{"empty body", "/api/v1/convert", "", http.StatusBadRequest},
		{"invalid document", "/api/v1/convert", "<RZML/>", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.url, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/xml")
			w := env.do(req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func uploadSample(t *testing.T, env *testEnv) *models.SceneFile {
	t.Helper()
	w := env.do(multipartScene(t, "/api/v1/scenes/upload", "shot010.rzml", sampleScene))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var scene models.SceneFile
	decode(t, w, &scene)
	return &scene
}

func TestUploadScene(t *testing.T) {
	env := setupTestAPI(t)
	scene := uploadSample(t, env)

	assert.NotEmpty(t, scene.ID)
	assert.Equal(t, "shot010.rzml", scene.Filename)
	assert.Equal(t, models.ApplicationMatchMover, scene.Application)
	assert.Equal(t, 1, scene.CameraCount)
	assert.Equal(t, models.FrameRange{Start: 1, End: 10, FPS: 24}, scene.FrameRange)
	assert.Equal(t, conversion.Checksum([]byte(sampleScene)), scene.Checksum)
	assert.Equal(t, models.SceneStatusUploaded, scene.Status)
	assert.Equal(t, []byte(sampleScene), env.store.objects[scene.StorageKey])

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/scenes/"+scene.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/scenes", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), scene.ID)
}

func TestUploadSceneDeduplicatesByChecksum(t *testing.T) {
	env := setupTestAPI(t)
	first := uploadSample(t, env)

	w := env.do(multipartScene(t, "/api/v1/scenes/upload", "shot010_v2.rzml", sampleScene))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var second models.SceneFile
	decode(t, w, &second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "shot010.rzml", second.Filename)
	assert.Len(t, env.store.objects, 1)
	assert.Len(t, env.repo.scenes, 1)
}

func TestUploadSceneRejectsInvalidDocument(t *testing.T) {
	env := setupTestAPI(t)

	w := env.do(multipartScene(t, "/api/v1/scenes/upload", "bad.rzml", "<RZML/>"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, env.store.objects)
}

func TestGetSceneNotFound(t *testing.T) {
	env := setupTestAPI(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/scenes/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateConvertJob(t *testing.T) {
	env := setupTestAPI(t)
	scene := uploadSample(t, env)

	body := `{"destination":"tde","exporters":["nuke"],"time_list":"1-2","priority":8,"callback_url":"https://hooks.example.com/done"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scenes/"+scene.ID+"/convert", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := env.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var job models.Job
	decode(t, w, &job)
	assert.Equal(t, scene.ID, job.SceneID)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, 8, job.Priority)
	assert.Equal(t, []string{"nuke"}, job.Config.Exporters)
	assert.Equal(t, "1-2", job.Config.TimeList)
	assert.Equal(t, "https://hooks.example.com/done", job.Config.CallbackURL)

	require.Len(t, env.queue.published, 1)
	assert.Equal(t, job.ID, env.queue.published[0].ID)

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/scenes/"+scene.ID+"/jobs", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), job.ID)
}

func TestCreateConvertJobDefaults(t *testing.T) {
	env := setupTestAPI(t)
	scene := uploadSample(t, env)

	w := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/scenes/"+scene.ID+"/convert", nil))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var job models.Job
	decode(t, w, &job)
	assert.Equal(t, models.ApplicationEqualizer, job.Config.Destination)
	assert.Equal(t, []string{"lens", "nuke"}, job.Config.Exporters)
	assert.Equal(t, models.JobPriorityNormal, job.Priority)
}

func TestCreateConvertJobErrors(t *testing.T) {
	env := setupTestAPI(t)
	scene := uploadSample(t, env)

	w := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/scenes/missing/convert", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scenes/"+scene.ID+"/convert", bytes.NewBufferString(`{"exporters":["fbx"]}`))
	req.Header.Set("Content-Type", "application/json")
	w = env.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/scenes/"+scene.ID+"/convert", bytes.NewBufferString(`{"callback_url":"ftp://example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	w = env.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.queue.err = errors.New("broker down")
	w = env.do(httptest.NewRequest(http.MethodPost, "/api/v1/scenes/"+scene.ID+"/convert", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCreateConvertJobDeferredToScheduler(t *testing.T) {
	env := setupTestAPI(t)
	scene := uploadSample(t, env)
	sched := &fakeScheduler{}
	env.api.scheduler = sched
	env.queue.err = errors.New("broker down")

	w := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/scenes/"+scene.ID+"/convert", nil))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var job models.Job
	decode(t, w, &job)
	assert.Equal(t, models.JobStatusPending, job.Status)
	require.Len(t, sched.scheduled, 1)
	assert.Equal(t, job.ID, sched.scheduled[0].ID)
}

func TestCreateConvertJobKeepsWorkerStatus(t *testing.T) {
	env := setupTestAPI(t)
	scene := uploadSample(t, env)
	env.queue.consumed = func(job *models.Job) {
		env.repo.setJobStatus(job.ID, models.JobStatusProcessing)
	}

	w := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/scenes/"+scene.ID+"/convert", nil))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var job models.Job
	decode(t, w, &job)
	assert.Equal(t, models.JobStatusProcessing, job.Status)

	stored, err := env.repo.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, stored.Status)
}

func TestRetryJob(t *testing.T) {
	env := setupTestAPI(t)
	ctx := context.Background()

	job := &models.Job{SceneID: "scene-1", Status: models.JobStatusFailed, ErrorMsg: "no camera could be converted", RetryCount: 3}
	require.NoError(t, env.repo.CreateJob(ctx, job))

	w := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+job.ID+"/retry", nil))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var got models.Job
	decode(t, w, &got)
	assert.Equal(t, models.JobStatusQueued, got.Status)
	assert.Empty(t, got.ErrorMsg)
	assert.Equal(t, 0, got.RetryCount)
	require.Len(t, env.queue.retried, 1)
	assert.Equal(t, job.ID, env.queue.retried[0].ID)
	assert.Empty(t, env.queue.published)

	// Only failed jobs go back on the queue
	w = env.do(httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+job.ID+"/retry", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Len(t, env.queue.retried, 1)

	w = env.do(httptest.NewRequest(http.MethodPost, "/api/v1/jobs/missing/retry", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRetryJobDeferredToScheduler(t *testing.T) {
	env := setupTestAPI(t)
	sched := &fakeScheduler{}
	env.api.scheduler = sched
	env.queue.err = errors.New("broker down")

	job := &models.Job{SceneID: "scene-1", Status: models.JobStatusFailed}
	require.NoError(t, env.repo.CreateJob(context.Background(), job))

	w := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+job.ID+"/retry", nil))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var got models.Job
	decode(t, w, &got)
	assert.Equal(t, models.JobStatusPending, got.Status)
	require.Len(t, sched.scheduled, 1)
	assert.Equal(t, job.ID, sched.scheduled[0].ID)
}

func TestMonitoring(t *testing.T) {
	env := setupTestAPI(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/monitoring", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	env.api.monitor = monitoring.NewMonitor(fakeMonitoringRepo{}, fakeQueueDepth{}, nil)
	require.NoError(t, env.api.monitor.UpdateMetrics(context.Background()))

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/monitoring", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Health  string             `json:"health"`
		Alerts  []string           `json:"alerts"`
		Metrics monitoring.Metrics `json:"metrics"`
	}
	decode(t, w, &resp)
	assert.Equal(t, monitoring.HealthHealthy, resp.Health)
	assert.Empty(t, resp.Alerts)
	assert.Equal(t, 2, resp.Metrics.QueueDepth)
	assert.Equal(t, int64(4), resp.Metrics.TotalJobs)
}

func TestGetJobProgressFromCache(t *testing.T) {
	env := setupTestAPI(t)
	ctx := context.Background()

	job := &models.Job{SceneID: "scene-1", Status: models.JobStatusProcessing, Progress: 0}
	require.NoError(t, env.repo.CreateJob(ctx, job))
	require.NoError(t, env.cache.SetJobProgress(ctx, job.ID, 50, 0))

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Job
	decode(t, w, &got)
	assert.Equal(t, 50.0, got.Progress)
}

func TestGetOutputs(t *testing.T) {
	env := setupTestAPI(t)
	env.repo.outputs = []*models.Output{
		{ID: "o1", JobID: "job-1", SceneID: "scene-1", Exporter: "lens", Filename: "a_cam_3deLens.txt"},
		{ID: "o2", JobID: "job-2", SceneID: "scene-1", Exporter: "nuke", Filename: "a_cam_nukeWetaNode.nk"},
	}

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/scenes/scene-1/outputs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "o1")
	assert.Contains(t, w.Body.String(), "o2")

	cached, err := env.cache.GetOutputs(context.Background(), "scene-1")
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-2/outputs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"o1"`)
	assert.Contains(t, w.Body.String(), `"o2"`)
}

func TestDeleteScene(t *testing.T) {
	env := setupTestAPI(t)
	scene := uploadSample(t, env)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/scenes/"+scene.ID, nil)
	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	assert.NotContains(t, env.store.objects, scene.StorageKey)
	assert.Contains(t, env.store.deleted, "outputs/"+scene.ID+"/")

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/scenes/"+scene.ID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
