package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Qaquka/aatm-qaquka/internal/domain"
)

var (
	// ErrNotFound is returned for identifiers the registry does not know (or has evicted).
	ErrNotFound = errors.New("unknown job")
	// ErrTerminal is returned when mutating a job that already completed or failed.
	ErrTerminal = errors.New("job already finished")
)

const initialProgress = 2

// RegistryConfig tunes retention of finished jobs.
type RegistryConfig struct {
	// Retention is how long a terminal job stays queryable. Zero keeps jobs forever.
	Retention time.Duration
	Logger    *logrus.Logger
}

// Registry is the single source of truth for job state. Every mutation goes
// through Update so callers never share a writable Job.
type Registry struct {
	cfg  RegistryConfig
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Registry{
		cfg:  cfg,
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

// Create registers a new running job built from seed's path fields.
func (r *Registry) Create(seed domain.Job) domain.Job {
	now := r.now().UTC()
	job := &domain.Job{
		ID:          uuid.NewString(),
		Status:      domain.JobStatusRunning,
		Progress:    initialProgress,
		Logs:        []string{"Job started"},
		SourcePath:  seed.SourcePath,
		OutputDir:   seed.OutputDir,
		TorrentPath: seed.TorrentPath,
		NFOPath:     seed.NFOPath,
		MediaType:   seed.MediaType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()
	return job.Clone()
}

func (r *Registry) Get(id string) (domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, ErrNotFound
	}
	return job.Clone(), nil
}

// Update applies fn to the stored job under the registry lock and returns the
// resulting copy.
func (r *Registry) Update(id string, fn func(*domain.Job)) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, ErrNotFound
	}
	if job.Status.Terminal() {
		return job.Clone(), ErrTerminal
	}

	before := job.Progress
	fn(job)
	if job.Progress < before {
		r.cfg.Logger.WithField("job_id", id).Warnf("progress went backwards: %d -> %d", before, job.Progress)
	}
	job.UpdatedAt = r.now().UTC()
	if job.Status.Terminal() {
		finished := job.UpdatedAt
		job.FinishedAt = &finished
	}
	return job.Clone(), nil
}

func (r *Registry) AppendLog(id, line string) (domain.Job, error) {
	return r.Update(id, func(j *domain.Job) {
		j.Logs = append(j.Logs, line)
	})
}

// Complete marks the job as successfully finished with progress 100.
func (r *Registry) Complete(id string) (domain.Job, error) {
	return r.Update(id, func(j *domain.Job) {
		j.Status = domain.JobStatusCompleted
		j.Progress = 100
		j.Error = ""
	})
}

// Fail marks the job as failed; msg is also appended to the logs.
func (r *Registry) Fail(id, msg string) (domain.Job, error) {
	if msg == "" {
		msg = "job failed"
	}
	return r.Update(id, func(j *domain.Job) {
		j.Status = domain.JobStatusFailed
		j.Error = msg
		j.Logs = append(j.Logs, msg)
	})
}

// Sweep evicts terminal jobs that finished more than Retention ago and returns
// how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	if r.cfg.Retention <= 0 {
		return 0
	}
	cutoff := now.Add(-r.cfg.Retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, job := range r.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.cfg.Retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(r.now()); n > 0 {
				r.cfg.Logger.Debugf("evicted %d finished jobs", n)
			}
		}
	}
}
