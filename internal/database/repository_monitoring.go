package database

import (
	"context"
	"fmt"
)

// Monitoring-related repository methods

// GetJobStats returns statistics about jobs
func (r *Repository) GetJobStats(ctx context.Context) (total, completed, failed, cancelled int64, err error) {
	query := `
		SELECT
			COUNT(*) as total,
			COUNT(*) FILTER (WHERE status = 'completed') as completed,
			COUNT(*) FILTER (WHERE status = 'failed') as failed,
			COUNT(*) FILTER (WHERE status = 'cancelled') as cancelled
		FROM jobs
	`

	err = r.db.Pool.QueryRow(ctx, query).Scan(&total, &completed, &failed, &cancelled)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("failed to get job stats: %w", err)
	}

	return total, completed, failed, cancelled, nil
}

// GetAverageProcessTime returns the average conversion time of jobs finished in the last day
func (r *Repository) GetAverageProcessTime(ctx context.Context) (float64, error) {
	query := `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - started_at))), 0)
		FROM jobs
		WHERE started_at IS NOT NULL
		AND completed_at IS NOT NULL
		AND status = 'completed'
		AND created_at > NOW() - INTERVAL '24 hours'
	`

	var avgProcessTime float64
	err := r.db.Pool.QueryRow(ctx, query).Scan(&avgProcessTime)
	if err != nil {
		return 0, fmt.Errorf("failed to get average process time: %w", err)
	}

	return avgProcessTime, nil
}

// GetJobsByStatus returns count of jobs by status
func (r *Repository) GetJobsByStatus(ctx context.Context) (map[string]int64, error) {
	query := `
		SELECT status, COUNT(*)
		FROM jobs
		GROUP BY status
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get jobs by status: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		stats[status] = count
	}

	return stats, rows.Err()
}

// GetRecentFailedJobs returns the most recently failed jobs
func (r *Repository) GetRecentFailedJobs(ctx context.Context, limit int) ([]*FailedJob, error) {
	query := `
		SELECT id, scene_id, error_msg, retry_count, worker_id
		FROM jobs
		WHERE status = 'failed'
		ORDER BY updated_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent failed jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*FailedJob
	for rows.Next() {
		var job FailedJob
		if err := rows.Scan(&job.ID, &job.SceneID, &job.ErrorMsg, &job.RetryCount, &job.WorkerID); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}

// FailedJob is the monitoring view of a failed job
type FailedJob struct {
	ID         string `json:"id"`
	SceneID    string `json:"scene_id"`
	ErrorMsg   string `json:"error_msg"`
	RetryCount int    `json:"retry_count"`
	WorkerID   string `json:"worker_id"`
}
