package export

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines persistence for export jobs.
//
// Mutations are narrow, per-transition operations rather than a generic
// update: every operation is a single conditional write that only succeeds
// from the status it is legal from, so an invalid field combination (say, a
// file path on a FAILED job) cannot be persisted. Operations that race a
// concurrent transition return ErrInvalidTransition.
type Repository interface {
	// Create persists a new job record.
	Create(ctx context.Context, job *Job) error

	// GetByID retrieves a job by ID.
	GetByID(ctx context.Context, id string) (*Job, error)

	// List retrieves jobs matching the filter, newest first, and the total
	// match count.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Job, int, error)

	// MarkProcessing transitions PENDING → PROCESSING and records the start
	// time. The attempt must match the generation the caller claimed.
	MarkProcessing(ctx context.Context, id string, attempt int) error

	// MarkCompleted transitions PROCESSING → COMPLETED with the artifact
	// result. Rejected if the job's attempt no longer matches (the job was
	// cancelled or retried meanwhile; the later state wins).
	MarkCompleted(ctx context.Context, id string, attempt int, res Result) error

	// MarkFailed transitions PROCESSING → FAILED with the failure message,
	// guarded by the same attempt check as MarkCompleted.
	MarkFailed(ctx context.Context, id string, attempt int, msg string) error

	// Cancel transitions PENDING or PROCESSING → FAILED with the
	// cancellation message.
	Cancel(ctx context.Context, id string, msg string) error

	// MarkExpired transitions COMPLETED → EXPIRED and clears the file path.
	MarkExpired(ctx context.Context, id string) error

	// ResetForRetry transitions FAILED → PENDING, clears error, file and
	// timing fields, and bumps the attempt generation. The expiry clock is
	// deliberately not reset: the window belongs to the original request.
	ResetForRetry(ctx context.Context, id string) error

	// FindExpired returns COMPLETED jobs whose expiry is before now.
	FindExpired(ctx context.Context, now time.Time) ([]*Job, error)

	// FindPending returns jobs in PENDING, for startup reconciliation.
	FindPending(ctx context.Context) ([]*Job, error)

	// FindProcessing returns jobs in PROCESSING, for startup reconciliation
	// after a crash mid-run.
	FindProcessing(ctx context.Context) ([]*Job, error)
}

// InMemoryRepository is an in-memory implementation of Repository, used in
// tests and for local development without Postgres.
type InMemoryRepository struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewInMemoryRepository creates a new in-memory export job repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{jobs: make(map[string]*Job)}
}

// Create persists a new job record.
func (r *InMemoryRepository) Create(_ context.Context, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[job.ID] = copyJob(job)
	return nil
}

// GetByID retrieves a job by ID.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(job), nil
}

// List retrieves jobs matching the filter, newest first.
func (r *InMemoryRepository) List(_ context.Context, f Filter, limit, offset int) ([]*Job, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Job
	for _, job := range r.jobs {
		if f.Status != nil && job.Status != *f.Status {
			continue
		}
		if f.Format != nil && job.Format != *f.Format {
			continue
		}
		if f.RequestedBy != "" && job.RequestedBy != f.RequestedBy {
			continue
		}
		matched = append(matched, job)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	items := make([]*Job, 0, len(matched))
	for _, job := range matched {
		items = append(items, copyJob(job))
	}
	return items, total, nil
}

// MarkProcessing transitions PENDING → PROCESSING.
func (r *InMemoryRepository) MarkProcessing(_ context.Context, id string, attempt int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusPending || job.Attempt != attempt {
		return ErrInvalidTransition
	}

	now := time.Now()
	job.Status = StatusProcessing
	job.StartedAt = &now
	job.UpdatedAt = now
	return nil
}

// MarkCompleted transitions PROCESSING → COMPLETED.
func (r *InMemoryRepository) MarkCompleted(_ context.Context, id string, attempt int, res Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusProcessing || job.Attempt != attempt {
		return ErrInvalidTransition
	}

	now := time.Now()
	job.Status = StatusCompleted
	job.FilePath = &res.FilePath
	job.FileSize = &res.FileSize
	job.RowCount = &res.RowCount
	job.Error = nil
	job.CompletedAt = &now
	job.UpdatedAt = now
	return nil
}

// MarkFailed transitions PROCESSING → FAILED.
func (r *InMemoryRepository) MarkFailed(_ context.Context, id string, attempt int, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusProcessing || job.Attempt != attempt {
		return ErrInvalidTransition
	}

	now := time.Now()
	job.Status = StatusFailed
	job.Error = &msg
	job.CompletedAt = &now
	job.UpdatedAt = now
	return nil
}

// Cancel transitions PENDING or PROCESSING → FAILED.
func (r *InMemoryRepository) Cancel(_ context.Context, id string, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusPending && job.Status != StatusProcessing {
		return ErrInvalidTransition
	}

	now := time.Now()
	job.Status = StatusFailed
	job.Error = &msg
	job.CompletedAt = &now
	job.UpdatedAt = now
	return nil
}

// MarkExpired transitions COMPLETED → EXPIRED.
func (r *InMemoryRepository) MarkExpired(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusCompleted {
		return ErrInvalidTransition
	}

	job.Status = StatusExpired
	job.FilePath = nil
	job.UpdatedAt = time.Now()
	return nil
}

// ResetForRetry transitions FAILED → PENDING for a fresh attempt.
func (r *InMemoryRepository) ResetForRetry(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusFailed {
		return ErrInvalidTransition
	}

	job.Status = StatusPending
	job.Error = nil
	job.FilePath = nil
	job.FileSize = nil
	job.RowCount = nil
	job.StartedAt = nil
	job.CompletedAt = nil
	job.Attempt++
	job.UpdatedAt = time.Now()
	return nil
}

// FindExpired returns COMPLETED jobs whose expiry is before now.
func (r *InMemoryRepository) FindExpired(_ context.Context, now time.Time) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var expired []*Job
	for _, job := range r.jobs {
		if job.Status == StatusCompleted && job.ExpiresAt != nil && job.ExpiresAt.Before(now) {
			expired = append(expired, copyJob(job))
		}
	}
	return expired, nil
}

// FindPending returns jobs in PENDING.
func (r *InMemoryRepository) FindPending(ctx context.Context) ([]*Job, error) {
	return r.findByStatus(StatusPending), nil
}

// FindProcessing returns jobs in PROCESSING.
func (r *InMemoryRepository) FindProcessing(ctx context.Context) ([]*Job, error) {
	return r.findByStatus(StatusProcessing), nil
}

func (r *InMemoryRepository) findByStatus(status Status) []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var jobs []*Job
	for _, job := range r.jobs {
		if job.Status == status {
			jobs = append(jobs, copyJob(job))
		}
	}
	return jobs
}

// copyJob creates a deep copy of a job.
func copyJob(j *Job) *Job {
	if j == nil {
		return nil
	}

	jobCopy := *j
	if j.Parameters != nil {
		params := make(map[string]any, len(j.Parameters))
		for k, v := range j.Parameters {
			params[k] = v
		}
		jobCopy.Parameters = params
	}
	jobCopy.ReportID = copyPtr(j.ReportID)
	jobCopy.FilePath = copyPtr(j.FilePath)
	jobCopy.FileSize = copyPtr(j.FileSize)
	jobCopy.RowCount = copyPtr(j.RowCount)
	jobCopy.Error = copyPtr(j.Error)
	jobCopy.ExpiresAt = copyPtr(j.ExpiresAt)
	jobCopy.StartedAt = copyPtr(j.StartedAt)
	jobCopy.CompletedAt = copyPtr(j.CompletedAt)
	return &jobCopy
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ensure InMemoryRepository implements Repository.
var _ Repository = (*InMemoryRepository)(nil)
