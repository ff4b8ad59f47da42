package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/lensconv/internal/database"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/logging"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/metrics"
	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

// Health states reported by GetSystemHealth
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

const (
	dlqCritical        = 100
	queueWarning       = 1000
	failureRateWarning = 0.1
	heartbeatTimeout   = 2 * time.Minute
	recentFailureLimit = 10
)

// Metrics holds system metrics
type Metrics struct {
	QueueDepth         int                   `json:"queue_depth"`
	DLQDepth           int                   `json:"dlq_depth"`
	ActiveJobs         int                   `json:"active_jobs"`
	TotalJobs          int64                 `json:"total_jobs"`
	CompletedJobs      int64                 `json:"completed_jobs"`
	FailedJobs         int64                 `json:"failed_jobs"`
	CancelledJobs      int64                 `json:"cancelled_jobs"`
	JobsByStatus       map[string]int64      `json:"jobs_by_status"`
	AverageProcessTime float64               `json:"average_process_time_seconds"`
	WorkerCount        int                   `json:"worker_count"`
	HealthyWorkers     int                   `json:"healthy_workers"`
	RecentFailures     []*database.FailedJob `json:"recent_failures,omitempty"`
	LastUpdated        time.Time             `json:"last_updated"`
}

// WorkerHealth holds worker health information
type WorkerHealth struct {
	WorkerID      string    `json:"worker_id"`
	Status        string    `json:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	CurrentJob    string    `json:"current_job,omitempty"`
	ProcessedJobs int64     `json:"processed_jobs"`
}

// MetricsRepository is the job bookkeeping the monitor reads
type MetricsRepository interface {
	GetJobStats(ctx context.Context) (total, completed, failed, cancelled int64, err error)
	GetJobsByStatus(ctx context.Context) (map[string]int64, error)
	GetAverageProcessTime(ctx context.Context) (float64, error)
	GetRecentFailedJobs(ctx context.Context, limit int) ([]*database.FailedJob, error)
}

// QueueProvider reports broker queue depths
type QueueProvider interface {
	GetQueueDepth() (int, error)
	GetDLQDepth() (int, error)
}

// Monitor collects job and worker statistics for the conversion service
type Monitor struct {
	metrics       *Metrics
	workers       map[string]*WorkerHealth
	mu            sync.RWMutex
	repo          MetricsRepository
	queueProvider QueueProvider
	log           *logging.Logger
	interval      time.Duration
	now           func() time.Time
}

// NewMonitor creates a new monitoring service
func NewMonitor(repo MetricsRepository, queueProvider QueueProvider, log *logging.Logger) *Monitor {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Monitor{
		metrics: &Metrics{
			JobsByStatus: map[string]int64{},
			LastUpdated:  time.Now(),
		},
		workers:       make(map[string]*WorkerHealth),
		repo:          repo,
		queueProvider: queueProvider,
		log:           log,
		interval:      15 * time.Second,
		now:           time.Now,
	}
}

// Start collects metrics and expires stale workers until ctx is done
func (m *Monitor) Start(ctx context.Context) {
	go m.collectMetrics(ctx)
	go m.checkWorkerHealth(ctx)
}

func (m *Monitor) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.UpdateMetrics(ctx); err != nil {
				m.log.WithError(err).Warn("Failed to update monitoring metrics")
				metrics.RecordError("monitoring", "collect")
			}
		}
	}
}

// UpdateMetrics refreshes the snapshot and the Prometheus job gauges
func (m *Monitor) UpdateMetrics(ctx context.Context) error {
	queueDepth, err := m.queueProvider.GetQueueDepth()
	if err != nil {
		return fmt.Errorf("failed to get queue depth: %w", err)
	}

	dlqDepth, err := m.queueProvider.GetDLQDepth()
	if err != nil {
		return fmt.Errorf("failed to get DLQ depth: %w", err)
	}

	total, completed, failed, cancelled, err := m.repo.GetJobStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get job stats: %w", err)
	}

	byStatus, err := m.repo.GetJobsByStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to get jobs by status: %w", err)
	}

	avgProcess, err := m.repo.GetAverageProcessTime(ctx)
	if err != nil {
		m.log.WithError(err).Debug("Average process time unavailable")
	}

	recent, err := m.repo.GetRecentFailedJobs(ctx, recentFailureLimit)
	if err != nil {
		m.log.WithError(err).Debug("Recent failures unavailable")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.QueueDepth = queueDepth
	m.metrics.DLQDepth = dlqDepth
	m.metrics.TotalJobs = total
	m.metrics.CompletedJobs = completed
	m.metrics.FailedJobs = failed
	m.metrics.CancelledJobs = cancelled
	m.metrics.ActiveJobs = int(total - completed - failed - cancelled)
	m.metrics.JobsByStatus = byStatus
	m.metrics.AverageProcessTime = avgProcess
	m.metrics.RecentFailures = recent
	m.countWorkers()
	m.metrics.LastUpdated = m.now()

	metrics.UpdateJobMetrics(int(byStatus[models.JobStatusProcessing]), queueDepth)
	return nil
}

func (m *Monitor) checkWorkerHealth(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.updateWorkerHealth()
		}
	}
}

// updateWorkerHealth marks workers without a recent heartbeat as unhealthy
func (m *Monitor) updateWorkerHealth() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for workerID, worker := range m.workers {
		if worker.Status == HealthHealthy && now.Sub(worker.LastHeartbeat) > heartbeatTimeout {
			worker.Status = "unhealthy"
			m.log.WithWorkerID(workerID).Warn("Worker marked as unhealthy (no heartbeat)")
		}
	}
	m.countWorkers()
}

// countWorkers must be called with mu held
func (m *Monitor) countWorkers() {
	healthy := 0
	for _, worker := range m.workers {
		if worker.Status == HealthHealthy {
			healthy++
		}
	}
	m.metrics.WorkerCount = len(m.workers)
	m.metrics.HealthyWorkers = healthy
}

// RegisterWorkerHeartbeat records that workerID is alive and what it is converting
func (m *Monitor) RegisterWorkerHeartbeat(workerID, currentJob string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	worker, exists := m.workers[workerID]
	if !exists {
		worker = &WorkerHealth{WorkerID: workerID}
		m.workers[workerID] = worker
	}

	worker.LastHeartbeat = m.now()
	worker.CurrentJob = currentJob
	worker.Status = HealthHealthy
	m.countWorkers()
}

// Heartbeat refreshes workerID without changing its current job
func (m *Monitor) Heartbeat(workerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	worker, exists := m.workers[workerID]
	if !exists {
		worker = &WorkerHealth{WorkerID: workerID}
		m.workers[workerID] = worker
	}

	worker.LastHeartbeat = m.now()
	worker.Status = HealthHealthy
	m.countWorkers()
}

// IncrementWorkerJobCount increments processed job count for a worker
func (m *Monitor) IncrementWorkerJobCount(workerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if worker, exists := m.workers[workerID]; exists {
		worker.ProcessedJobs++
	}
}

// GetMetrics returns a copy of the current metrics
func (m *Monitor) GetMetrics() *Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := *m.metrics
	snapshot.JobsByStatus = make(map[string]int64, len(m.metrics.JobsByStatus))
	for k, v := range m.metrics.JobsByStatus {
		snapshot.JobsByStatus[k] = v
	}
	return &snapshot
}

// GetWorkerHealth returns health status of all workers
func (m *Monitor) GetWorkerHealth() []*WorkerHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	workers := make([]*WorkerHealth, 0, len(m.workers))
	for _, worker := range m.workers {
		w := *worker
		workers = append(workers, &w)
	}

	return workers
}

// GetSystemHealth returns overall system health
func (m *Monitor) GetSystemHealth() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.metrics.DLQDepth > dlqCritical {
		return HealthCritical
	}

	if m.metrics.WorkerCount > 0 {
		healthyRatio := float64(m.metrics.HealthyWorkers) / float64(m.metrics.WorkerCount)
		if healthyRatio < 0.5 {
			return HealthCritical
		}
		if healthyRatio < 0.8 {
			return HealthWarning
		}
	}

	if m.metrics.QueueDepth > queueWarning {
		return HealthWarning
	}

	if m.metrics.TotalJobs > 0 {
		failureRate := float64(m.metrics.FailedJobs) / float64(m.metrics.TotalJobs)
		if failureRate > failureRateWarning {
			return HealthWarning
		}
	}

	return HealthHealthy
}

// GetAlerts returns current system alerts
func (m *Monitor) GetAlerts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alerts := []string{}

	if m.metrics.DLQDepth > dlqCritical {
		alerts = append(alerts, fmt.Sprintf("High DLQ depth: %d messages", m.metrics.DLQDepth))
	}

	if m.metrics.QueueDepth > queueWarning {
		alerts = append(alerts, fmt.Sprintf("High queue depth: %d jobs pending", m.metrics.QueueDepth))
	}

	if m.metrics.WorkerCount > 0 {
		healthyRatio := float64(m.metrics.HealthyWorkers) / float64(m.metrics.WorkerCount)
		if healthyRatio < 0.8 {
			alerts = append(alerts, fmt.Sprintf("Unhealthy workers: %d/%d",
				m.metrics.WorkerCount-m.metrics.HealthyWorkers, m.metrics.WorkerCount))
		}
	}

	if m.metrics.TotalJobs > 0 {
		failureRate := float64(m.metrics.FailedJobs) / float64(m.metrics.TotalJobs)
		if failureRate > failureRateWarning {
			alerts = append(alerts, fmt.Sprintf("High failure rate: %.1f%%", failureRate*100))
		}
	}

	return alerts
}
