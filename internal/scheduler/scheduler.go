package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/lensconv/internal/logging"
	"github.com/therealutkarshpriyadarshi/lensconv/internal/metrics"
	"github.com/therealutkarshpriyadarshi/lensconv/pkg/models"
)

const pendingLoadLimit = 1000

// JobScheduler republishes conversion jobs that are stored as pending, in
// priority order, until the broker accepts them
type JobScheduler struct {
	queue     *PriorityQueue
	known     map[string]struct{}
	mu        sync.RWMutex
	batchSize int
	interval  time.Duration
	repo      Repository
	publisher JobPublisher
	log       *logging.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// Repository defines the interface for job persistence
type Repository interface {
	GetPendingJobs(ctx context.Context, limit int) ([]*models.Job, error)
	MarkJobQueued(ctx context.Context, jobID string) (bool, error)
}

// JobPublisher defines the interface for publishing jobs to queue
type JobPublisher interface {
	PublishJob(ctx context.Context, job *models.Job) error
}

// NewScheduler creates a scheduler publishing at most batchSize jobs per tick
func NewScheduler(repo Repository, publisher JobPublisher, batchSize int, log *logging.Logger) *JobScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if batchSize < 1 {
		batchSize = 1
	}
	if log == nil {
		log = logging.NewNopLogger()
	}

	pq := &PriorityQueue{}
	heap.Init(pq)

	return &JobScheduler{
		queue:     pq,
		known:     make(map[string]struct{}),
		batchSize: batchSize,
		interval:  5 * time.Second,
		repo:      repo,
		publisher: publisher,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start loads pending jobs and begins the scheduling loop
func (s *JobScheduler) Start() error {
	if err := s.loadPendingJobs(); err != nil {
		return fmt.Errorf("failed to load pending jobs: %w", err)
	}

	go s.scheduleLoop()

	s.log.Info("Job scheduler started")
	return nil
}

// Stop stops the scheduler
func (s *JobScheduler) Stop() {
	s.cancel()
	s.log.Info("Job scheduler stopped")
}

// ScheduleJob adds a job to the scheduling queue. Jobs already queued are ignored.
func (s *JobScheduler) ScheduleJob(job *models.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("cannot schedule job without an ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.known[job.ID]; ok {
		return nil
	}

	ts := job.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	heap.Push(s.queue, &QueueItem{
		Job:       job,
		Priority:  job.Priority,
		Timestamp: ts,
	})
	s.known[job.ID] = struct{}{}
	return nil
}

// loadPendingJobs loads pending jobs from the database
func (s *JobScheduler) loadPendingJobs() error {
	jobs, err := s.repo.GetPendingJobs(s.ctx, pendingLoadLimit)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if err := s.ScheduleJob(job); err != nil {
			s.log.WithJobID(job.ID).WithError(err).Warn("Failed to schedule job")
		}
	}

	if len(jobs) > 0 {
		s.log.Infof("Loaded %d pending jobs", len(jobs))
	}
	return nil
}

// scheduleLoop is the main scheduling loop
func (s *JobScheduler) scheduleLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.loadPendingJobs(); err != nil {
				s.log.WithError(err).Warn("Failed to load pending jobs")
				metrics.RecordError("scheduler", "load")
			}
			s.processQueue()
		}
	}
}

// processQueue publishes up to batchSize jobs and returns how many went out
func (s *JobScheduler) processQueue() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	published := 0
	for published < s.batchSize && s.queue.Len() > 0 {
		item := heap.Pop(s.queue).(*QueueItem)
		log := s.log.WithJobID(item.Job.ID)

		if err := s.publisher.PublishJob(s.ctx, item.Job); err != nil {
			log.WithError(err).Warn("Failed to publish job")
			metrics.RecordError("scheduler", "publish")
			heap.Push(s.queue, item)
			break
		}
		delete(s.known, item.Job.ID)

		// A worker may already own the job; its status is left alone then
		queued, err := s.repo.MarkJobQueued(s.ctx, item.Job.ID)
		if err != nil {
			log.WithError(err).Warn("Failed to update job status")
		} else if !queued {
			log.Debugf("Job left pending before it was marked queued (priority %d)", item.Priority)
		}

		published++
		log.WithField("priority", item.Priority).Info("Scheduled job")
	}

	return published
}

// GetQueueDepth returns the current queue depth
func (s *JobScheduler) GetQueueDepth() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queue.Len()
}

// PriorityQueue implements a priority queue for jobs
type PriorityQueue []*QueueItem

// QueueItem represents a job in the priority queue
type QueueItem struct {
	Job       *models.Job
	Priority  int
	Timestamp time.Time
	Index     int
}

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	// Higher priority first
	if pq[i].Priority != pq[j].Priority {
		return pq[i].Priority > pq[j].Priority
	}
	// If same priority, FIFO (earlier timestamp first)
	return pq[i].Timestamp.Before(pq[j].Timestamp)
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].Index = i
	pq[j].Index = j
}

func (pq *PriorityQueue) Push(x interface{}) {
	n := len(*pq)
	item := x.(*QueueItem)
	item.Index = n
	*pq = append(*pq, item)
}

func (pq *PriorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	*pq = old[0 : n-1]
	return item
}
