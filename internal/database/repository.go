package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

// ErrNotFound is returned when a looked up record does not exist
var ErrNotFound = errors.New("record not found")

// Repository provides database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Scene files

const sceneFileColumns = `id, filename, storage_key, checksum, size, application, camera_count,
		       frame_range, metadata, status, created_at, updated_at`

func scanSceneFile(row pgx.Row) (*models.SceneFile, error) {
	var scene models.SceneFile
	err := row.Scan(
		&scene.ID, &scene.Filename, &scene.StorageKey, &scene.Checksum, &scene.Size,
		&scene.Application, &scene.CameraCount, &scene.FrameRange, &scene.Metadata,
		&scene.Status, &scene.CreatedAt, &scene.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &scene, nil
}

// CreateSceneFile creates a new scene file record
func (r *Repository) CreateSceneFile(ctx context.Context, scene *models.SceneFile) error {
	if scene.ID == "" {
		scene.ID = uuid.New().String()
	}
	if scene.Metadata == nil {
		scene.Metadata = models.Metadata{}
	}

	query := `
		INSERT INTO scene_files (id, filename, storage_key, checksum, size, application,
		                         camera_count, frame_range, metadata, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		scene.ID, scene.Filename, scene.StorageKey, scene.Checksum, scene.Size,
		string(scene.Application), scene.CameraCount, scene.FrameRange, scene.Metadata, scene.Status,
	).Scan(&scene.CreatedAt, &scene.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create scene file: %w", err)
	}

	return nil
}

// GetSceneFile retrieves a scene file by ID
func (r *Repository) GetSceneFile(ctx context.Context, id string) (*models.SceneFile, error) {
	query := `SELECT ` + sceneFileColumns + ` FROM scene_files WHERE id = $1`

	scene, err := scanSceneFile(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scene file %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scene file: %w", err)
	}

	return scene, nil
}

// GetSceneFileByChecksum returns the most recent upload with the given content hash
func (r *Repository) GetSceneFileByChecksum(ctx context.Context, checksum string) (*models.SceneFile, error) {
	query := `SELECT ` + sceneFileColumns + `
		FROM scene_files
		WHERE checksum = $1
		ORDER BY created_at DESC
		LIMIT 1`

	scene, err := scanSceneFile(r.db.Pool.QueryRow(ctx, query, checksum))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scene file with checksum %s: %w", checksum, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scene file: %w", err)
	}

	return scene, nil
}

// UpdateSceneFileStatus sets the status of a scene file
func (r *Repository) UpdateSceneFileStatus(ctx context.Context, id, status string) error {
	query := `UPDATE scene_files SET status = $2, updated_at = NOW() WHERE id = $1`

	if _, err := r.db.Pool.Exec(ctx, query, id, status); err != nil {
		return fmt.Errorf("failed to update scene file status: %w", err)
	}

	return nil
}

// ListSceneFiles retrieves scene files with pagination
func (r *Repository) ListSceneFiles(ctx context.Context, limit, offset int) ([]*models.SceneFile, error) {
	query := `SELECT ` + sceneFileColumns + `
		FROM scene_files
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list scene files: %w", err)
	}
	defer rows.Close()

	var scenes []*models.SceneFile
	for rows.Next() {
		scene, err := scanSceneFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scene file: %w", err)
		}
		scenes = append(scenes, scene)
	}

	return scenes, rows.Err()
}

// DeleteSceneFile removes a scene file and, by cascade, its jobs and outputs
func (r *Repository) DeleteSceneFile(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM scene_files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scene file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scene file %s: %w", id, ErrNotFound)
	}
	return nil
}

// Jobs

const jobColumns = `id, scene_id, status, priority, progress, error_msg, warnings, retry_count,
		       worker_id, started_at, completed_at, created_at, updated_at, config`

func scanJob(row pgx.Row) (*models.Job, error) {
	var job models.Job
	err := row.Scan(
		&job.ID, &job.SceneID, &job.Status, &job.Priority, &job.Progress,
		&job.ErrorMsg, &job.Warnings, &job.RetryCount, &job.WorkerID, &job.StartedAt,
		&job.CompletedAt, &job.CreatedAt, &job.UpdatedAt, &job.Config,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJob creates a new job record
func (r *Repository) CreateJob(ctx context.Context, job *models.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Warnings == nil {
		job.Warnings = []string{}
	}

	query := `
		INSERT INTO jobs (id, scene_id, status, priority, progress, retry_count, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		job.ID, job.SceneID, job.Status, job.Priority, job.Progress, job.RetryCount, job.Config,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by ID
func (r *Repository) GetJob(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// UpdateJob updates a job record
func (r *Repository) UpdateJob(ctx context.Context, job *models.Job) error {
	if job.Warnings == nil {
		job.Warnings = []string{}
	}

	query := `
		UPDATE jobs
		SET status = $2, priority = $3, progress = $4, error_msg = $5, warnings = $6,
		    retry_count = $7, worker_id = $8, started_at = $9, completed_at = $10, config = $11,
		    updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Pool.Exec(ctx, query,
		job.ID, job.Status, job.Priority, job.Progress, job.ErrorMsg, job.Warnings,
		job.RetryCount, job.WorkerID, job.StartedAt, job.CompletedAt, job.Config,
	)

	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	return nil
}

// MarkJobQueued moves a pending job to queued once the broker accepted it.
// It reports false when the job already left the pending state, so a worker
// that picked the job up is never moved back.
func (r *Repository) MarkJobQueued(ctx context.Context, jobID string) (bool, error) {
	query := `UPDATE jobs SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`

	tag, err := r.db.Pool.Exec(ctx, query, jobID, models.JobStatusQueued, models.JobStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark job queued: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ResetFailedJob returns a failed job to pending with a fresh retry budget.
// It reports false when the job is not in the failed state.
func (r *Repository) ResetFailedJob(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE jobs
		SET status = $2, progress = 0, error_msg = '', retry_count = 0, worker_id = '',
		    started_at = NULL, completed_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`

	tag, err := r.db.Pool.Exec(ctx, query, jobID, models.JobStatusPending, models.JobStatusFailed)
	if err != nil {
		return false, fmt.Errorf("failed to reset job: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// GetJobsBySceneID retrieves all jobs for a scene file
func (r *Repository) GetJobsBySceneID(ctx context.Context, sceneID string) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE scene_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, sceneID)
	if err != nil {
		return nil, fmt.Errorf("failed to get jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// GetPendingJobs returns jobs that were stored but never reached the broker,
// highest priority first. Jobs touched in the last minute are left to the
// request that created them.
func (r *Repository) GetPendingJobs(ctx context.Context, limit int) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = $1
		AND updated_at < NOW() - INTERVAL '1 minute'
		ORDER BY priority DESC, created_at ASC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, models.JobStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// Outputs

const outputColumns = `id, job_id, scene_id, camera_name, camera_index, exporter, application,
		       filename, size, static, url, path, created_at`

func scanOutput(row pgx.Row) (*models.Output, error) {
	var output models.Output
	err := row.Scan(
		&output.ID, &output.JobID, &output.SceneID, &output.CameraName, &output.CameraIndex,
		&output.Exporter, &output.Application, &output.Filename, &output.Size, &output.Static,
		&output.URL, &output.Path, &output.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &output, nil
}

// CreateOutput creates a new output record
func (r *Repository) CreateOutput(ctx context.Context, output *models.Output) error {
	if output.ID == "" {
		output.ID = uuid.New().String()
	}

	query := `
		INSERT INTO outputs (id, job_id, scene_id, camera_name, camera_index, exporter,
		                     application, filename, size, static, url, path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (job_id, filename) DO UPDATE
		SET camera_name = EXCLUDED.camera_name, camera_index = EXCLUDED.camera_index,
		    exporter = EXCLUDED.exporter, size = EXCLUDED.size, static = EXCLUDED.static,
		    url = EXCLUDED.url, path = EXCLUDED.path, created_at = NOW()
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		output.ID, output.JobID, output.SceneID, output.CameraName, output.CameraIndex,
		output.Exporter, string(output.Application), output.Filename, output.Size, output.Static,
		output.URL, output.Path,
	).Scan(&output.ID, &output.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}

	return nil
}

// DeleteOutputsByJobID removes the output records of a job
func (r *Repository) DeleteOutputsByJobID(ctx context.Context, jobID string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM outputs WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to delete outputs: %w", err)
	}
	return nil
}

// GetOutputsByJobID retrieves all outputs for a job
func (r *Repository) GetOutputsByJobID(ctx context.Context, jobID string) ([]*models.Output, error) {
	return r.queryOutputs(ctx, `SELECT `+outputColumns+`
		FROM outputs
		WHERE job_id = $1
		ORDER BY camera_index, exporter`, jobID)
}

// GetOutputsBySceneID retrieves all outputs for a scene file
func (r *Repository) GetOutputsBySceneID(ctx context.Context, sceneID string) ([]*models.Output, error) {
	return r.queryOutputs(ctx, `SELECT `+outputColumns+`
		FROM outputs
		WHERE scene_id = $1
		ORDER BY created_at DESC, camera_index, exporter`, sceneID)
}

func (r *Repository) queryOutputs(ctx context.Context, query string, arg string) ([]*models.Output, error) {
	rows, err := r.db.Pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to get outputs: %w", err)
	}
	defer rows.Close()

	var outputs []*models.Output
	for rows.Next() {
		output, err := scanOutput(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan output: %w", err)
		}
		outputs = append(outputs, output)
	}

	return outputs, rows.Err()
}
