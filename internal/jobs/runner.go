// Package jobs executes indexing runs asynchronously on a fixed-size worker
// pool, so a request/response boundary is never held open for the duration
// of a run. The registry is an explicit, injectable object owned by the
// process composition root, not a global.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/plateindex/plateindex/internal/catalog"
	"github.com/plateindex/plateindex/internal/metrics"
)

// Status is the lifecycle state of a job.
type Status string

// Job status values.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task is the unit of work a job executes.
type Task func(ctx context.Context) (catalog.RunStats, error)

// Job is the registry record for one submitted run. Result is set on
// completion; Error carries the first fatal error message verbatim.
type Job struct {
	ID        string            `json:"id"`
	Label     string            `json:"label"`
	Status    Status            `json:"status"`
	Submitted time.Time         `json:"submitted_at"`
	Started   *time.Time        `json:"started_at,omitempty"`
	Finished  *time.Time        `json:"finished_at,omitempty"`
	Error     string            `json:"error,omitempty"`
	Result    *catalog.RunStats `json:"result,omitempty"`
}

// ErrQueueFull is returned when the job queue cannot accept more work.
var ErrQueueFull = errors.New("job queue full")

// ErrShutdown is returned when work is submitted after Shutdown.
var ErrShutdown = errors.New("job runner shut down")

type queued struct {
	id   string
	task Task
}

// Runner owns the worker pool and the job registry.
type Runner struct {
	workers int
	queue   chan queued
	ids     catalog.IDGenerator
	clock   catalog.Clock
	logger  *zap.Logger

	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string // submission order, oldest first
	shut  bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
	once   sync.Once
}

// Config sizes the Runner.
type Config struct {
	Workers    int
	QueueDepth int
}

const (
	defaultWorkers    = 3
	defaultQueueDepth = 16
)

// NewRunner constructs a Runner; call Start before enqueueing.
func NewRunner(ids catalog.IDGenerator, clock catalog.Clock, cfg Config, logger *zap.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		workers: cfg.Workers,
		queue:   make(chan queued, cfg.QueueDepth),
		ids:     ids,
		clock:   clock,
		logger:  logger,
		jobs:    make(map[string]*Job),
	}
}

// Start launches the worker pool. Workers run until Shutdown.
func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.work(ctx)
		}()
	}
}

// Enqueue registers a job and queues it for execution, returning the job id
// immediately. ErrQueueFull when the queue is at capacity, ErrShutdown after
// Shutdown has been called.
func (r *Runner) Enqueue(label string, task Task) (string, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return "", err
	}
	job := &Job{
		ID:        id,
		Label:     label,
		Status:    StatusPending,
		Submitted: r.clock.Now(),
	}

	// The queue send happens under the same lock that Shutdown closes the
	// channel under, so a late Enqueue fails cleanly instead of panicking.
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shut {
		return "", ErrShutdown
	}
	select {
	case r.queue <- queued{id: id, task: task}:
		r.jobs[id] = job
		r.order = append(r.order, id)
		metrics.IncActiveJobs()
		return id, nil
	default:
		return "", ErrQueueFull
	}
}

// Get returns a snapshot of a job by id.
func (r *Runner) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// All returns snapshots of every job, newest first.
func (r *Runner) All() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Job, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, *r.jobs[r.order[i]])
	}
	return out
}

// ActiveCount counts pending and running jobs, for admission control at the
// API boundary.
func (r *Runner) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, job := range r.jobs {
		if job.Status == StatusPending || job.Status == StatusRunning {
			n++
		}
	}
	return n
}

// Shutdown stops accepting new work and waits for in-flight jobs until the
// context expires, then abandons them.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.once.Do(func() {
		r.mu.Lock()
		r.shut = true
		close(r.queue)
		r.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if r.cancel != nil {
			r.cancel()
		}
		return ctx.Err()
	}
}

func (r *Runner) work(ctx context.Context) {
	for item := range r.queue {
		r.execute(ctx, item)
		metrics.DecActiveJobs()
	}
}

func (r *Runner) execute(ctx context.Context, item queued) {
	now := r.clock.Now()
	r.transition(item.id, func(job *Job) {
		job.Status = StatusRunning
		job.Started = &now
	})

	stats, err := item.task(ctx)

	finished := r.clock.Now()
	if err != nil {
		r.logger.Error("job failed", zap.String("job_id", item.id), zap.Error(err))
		metrics.ObserveRun(string(StatusFailed))
		r.transition(item.id, func(job *Job) {
			job.Status = StatusFailed
			job.Finished = &finished
			job.Error = err.Error()
			job.Result = &stats
		})
		return
	}

	metrics.ObserveRun(string(StatusCompleted))
	r.transition(item.id, func(job *Job) {
		job.Status = StatusCompleted
		job.Finished = &finished
		job.Result = &stats
	})
}

func (r *Runner) transition(id string, mutate func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		mutate(job)
	}
}
