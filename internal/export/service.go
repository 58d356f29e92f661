package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler hands jobs to the background runner and aborts in-flight work.
type Scheduler interface {
	// Enqueue submits a job for processing. Returns false when the queue is
	// full; the job stays PENDING and is picked up by the requeue loop.
	Enqueue(id string) bool

	// CancelJob aborts the producer context of an in-flight job. A no-op for
	// jobs that are not currently running.
	CancelJob(id string)
}

// ServiceConfig holds configuration for the export service.
type ServiceConfig struct {
	Repository Repository
	Cache      Cache
	Producer   Producer
	Scheduler  Scheduler
	Logger     zerolog.Logger

	// Metrics records pipeline instrumentation. Optional; nil disables it.
	Metrics *Metrics

	// TempDir is where artifacts are written. Defaults to os.TempDir().
	TempDir string

	// ExpiryWindow is how long a completed artifact stays downloadable,
	// counted from job creation. Defaults to 24h.
	ExpiryWindow time.Duration

	// CacheTTL bounds how long terminal-state jobs stay cached.
	CacheTTL time.Duration

	// MaxRows caps the number of rows in any artifact.
	MaxRows int

	// ProduceTimeout bounds a single producer run. A run that exceeds it
	// fails the job.
	ProduceTimeout time.Duration
}

// Service manages the export job lifecycle.
type Service struct {
	repo      Repository
	cache     Cache
	producer  Producer
	scheduler Scheduler
	logger    zerolog.Logger
	metrics   *Metrics

	tempDir        string
	expiryWindow   time.Duration
	cacheTTL       time.Duration
	maxRows        int
	produceTimeout time.Duration
}

// NewService creates a new export service.
func NewService(cfg ServiceConfig) *Service {
	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	expiryWindow := cfg.ExpiryWindow
	if expiryWindow == 0 {
		expiryWindow = 24 * time.Hour
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Minute
	}
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 100_000
	}
	produceTimeout := cfg.ProduceTimeout
	if produceTimeout == 0 {
		produceTimeout = 5 * time.Minute
	}

	return &Service{
		repo:           cfg.Repository,
		cache:          cfg.Cache,
		producer:       cfg.Producer,
		scheduler:      cfg.Scheduler,
		logger:         cfg.Logger.With().Str("component", "export_service").Logger(),
		metrics:        cfg.Metrics,
		tempDir:        tempDir,
		expiryWindow:   expiryWindow,
		cacheTTL:       cacheTTL,
		maxRows:        maxRows,
		produceTimeout: produceTimeout,
	}
}

// CreateRequest holds the inputs for a new export job. Inputs are assumed
// valid; the transport layer enforces format membership and name bounds.
type CreateRequest struct {
	ReportID    *string
	Name        string
	Format      Format
	Parameters  map[string]any
	RequestedBy string
}

// Create persists a new PENDING job and schedules it for processing.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Job, error) {
	now := time.Now()
	expiresAt := now.Add(s.expiryWindow)

	job := &Job{
		ID:          NewJobID(),
		ReportID:    req.ReportID,
		Name:        req.Name,
		Format:      req.Format,
		Status:      StatusPending,
		Parameters:  req.Parameters,
		RequestedBy: req.RequestedBy,
		ExpiresAt:   &expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create export job: %w", err)
	}

	if !s.scheduler.Enqueue(job.ID) {
		s.logger.Warn().Str("job_id", job.ID).Msg("Export queue full, job deferred to requeue")
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("format", string(job.Format)).
		Str("requested_by", job.RequestedBy).
		Msg("Export job created")

	return job, nil
}

// Process runs one job through the producer. Called by the runner, never by
// handlers. A job that was cancelled or retried while producing loses the
// conditional completion write and its artifact is discarded.
func (s *Service) Process(ctx context.Context, id string) error {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load job %s: %w", id, err)
	}
	if job.Status != StatusPending {
		s.logger.Debug().Str("job_id", id).Str("status", string(job.Status)).
			Msg("Skipping job not in PENDING")
		return nil
	}

	attempt := job.Attempt
	started := time.Now()
	if err := s.repo.MarkProcessing(ctx, id, attempt); err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("mark processing %s: %w", id, err)
	}
	s.invalidate(ctx, id)

	produceCtx, cancel := context.WithTimeout(ctx, s.produceTimeout)
	defer cancel()

	artifact, err := s.producer.Produce(produceCtx, job.Format, job.Parameters, s.maxRows)
	if err != nil {
		return s.fail(ctx, id, attempt, started, err)
	}

	path := filepath.Join(s.tempDir, id+"."+job.Format.Extension())
	if err := os.WriteFile(path, artifact.Content, 0o644); err != nil {
		return s.fail(ctx, id, attempt, started, fmt.Errorf("write artifact: %w", err))
	}

	res := Result{
		FilePath: path,
		FileSize: int64(len(artifact.Content)),
		RowCount: artifact.Rows,
	}
	if err := s.repo.MarkCompleted(ctx, id, attempt, res); err != nil {
		// The job moved on while producing (cancel or retry). The later
		// state wins; drop the orphaned artifact.
		_ = os.Remove(path)
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
			s.logger.Info().Str("job_id", id).Int("attempt", attempt).
				Msg("Dropping stale completion, job moved on")
			return nil
		}
		return fmt.Errorf("mark completed %s: %w", id, err)
	}
	s.invalidate(ctx, id)
	s.metrics.RecordJob(ctx, StatusCompleted, time.Since(started))

	s.logger.Info().
		Str("job_id", id).
		Int("rows", artifact.Rows).
		Int64("bytes", res.FileSize).
		Msg("Export job completed")
	return nil
}

// fail records a producer failure. Stale failure writes are dropped the same
// way stale completions are. No artifact is retained for failed runs.
func (s *Service) fail(ctx context.Context, id string, attempt int, started time.Time, cause error) error {
	if err := s.repo.MarkFailed(ctx, id, attempt, cause.Error()); err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	s.invalidate(ctx, id)
	s.metrics.RecordJob(ctx, StatusFailed, time.Since(started))

	s.logger.Warn().Err(cause).Str("job_id", id).Int("attempt", attempt).
		Msg("Export job failed")
	return nil
}

// GetByID retrieves a job, cache-first. Only terminal-state jobs are cached;
// in-flight jobs always read fresh from the store. Ownership is enforced on
// both the cache-hit and cache-miss path.
func (s *Service) GetByID(ctx context.Context, id, requestedBy string) (*Job, error) {
	if cached, err := s.cache.Get(ctx, id); err == nil && cached != nil {
		if !cached.OwnedBy(requestedBy) {
			return nil, ErrForbidden
		}
		s.metrics.RecordCacheHit(ctx)
		return cached, nil
	}
	s.metrics.RecordCacheMiss(ctx)

	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.OwnedBy(requestedBy) {
		return nil, ErrForbidden
	}

	if job.Status.IsTerminal() {
		if err := s.cache.Set(ctx, job, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to cache export job")
		}
	}
	return job, nil
}

// List retrieves jobs matching the filter with the total match count.
func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Job, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// DownloadMeta describes a downloadable artifact.
type DownloadMeta struct {
	Filename    string
	ContentType string
	FilePath    string
	FileSize    int64
}

// DownloadMeta resolves the download for a completed job. Jobs that are not
// yet terminal or already failed are unprocessable; expired jobs are gone. A
// COMPLETED job whose artifact vanished from disk is healed to EXPIRED.
func (s *Service) DownloadMeta(ctx context.Context, id, requestedBy string) (*DownloadMeta, error) {
	job, err := s.GetByID(ctx, id, requestedBy)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case StatusExpired:
		return nil, ErrGone
	case StatusCompleted:
		// proceed
	default:
		return nil, &UnprocessableStateError{Action: "download", Status: job.Status}
	}

	if job.FilePath == nil || job.FileSize == nil {
		return nil, &InternalError{Reason: "completed job missing file metadata"}
	}

	if _, err := os.Stat(*job.FilePath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat artifact: %w", err)
		}
		// Artifact lost outside the sweep (disk cleanup, host restart).
		// Heal the record so the next read is consistent.
		s.logger.Warn().Str("job_id", id).Str("path", *job.FilePath).
			Msg("Artifact missing on disk, expiring job")
		if err := s.repo.MarkExpired(ctx, id); err != nil &&
			!errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("expire job %s: %w", id, err)
		}
		s.invalidate(ctx, id)
		return nil, ErrGone
	}

	return &DownloadMeta{
		Filename:    job.DownloadFilename(),
		ContentType: job.Format.MIMEType(),
		FilePath:    *job.FilePath,
		FileSize:    *job.FileSize,
	}, nil
}

// Cancel aborts a PENDING or PROCESSING job and returns the updated record.
// An in-flight producer run is interrupted; if its completion write loses the
// race anyway, the conditional update drops it.
func (s *Service) Cancel(ctx context.Context, id, requestedBy string) (*Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.OwnedBy(requestedBy) {
		return nil, ErrForbidden
	}
	if job.Status != StatusPending && job.Status != StatusProcessing {
		return nil, &UnprocessableStateError{Action: "cancel", Status: job.Status}
	}

	if err := s.repo.Cancel(ctx, id, CancelledMessage); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			job, getErr := s.repo.GetByID(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			return nil, &UnprocessableStateError{Action: "cancel", Status: job.Status}
		}
		return nil, fmt.Errorf("cancel job %s: %w", id, err)
	}

	s.scheduler.CancelJob(id)
	s.invalidate(ctx, id)

	s.logger.Info().Str("job_id", id).Msg("Export job cancelled")
	return s.repo.GetByID(ctx, id)
}

// Retry moves a FAILED job back to PENDING on a fresh attempt generation and
// schedules it. The original expiry window still applies.
func (s *Service) Retry(ctx context.Context, id, requestedBy string) (*Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.OwnedBy(requestedBy) {
		return nil, ErrForbidden
	}
	if job.Status != StatusFailed {
		return nil, &UnprocessableStateError{Action: "retry", Status: job.Status}
	}

	if err := s.repo.ResetForRetry(ctx, id); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			job, getErr := s.repo.GetByID(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			return nil, &UnprocessableStateError{Action: "retry", Status: job.Status}
		}
		return nil, fmt.Errorf("retry job %s: %w", id, err)
	}
	s.invalidate(ctx, id)

	if !s.scheduler.Enqueue(id) {
		s.logger.Warn().Str("job_id", id).Msg("Export queue full, retry deferred to requeue")
	}

	s.logger.Info().Str("job_id", id).Msg("Export job retried")
	return s.repo.GetByID(ctx, id)
}

// ExpireStale sweeps COMPLETED jobs past their expiry: the artifact file is
// deleted (a file already gone is fine) and the job moves to EXPIRED. Returns
// the number of jobs expired. Safe to run repeatedly.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	jobs, err := s.repo.FindExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("find expired jobs: %w", err)
	}

	expired := 0
	for _, job := range jobs {
		if job.FilePath != nil {
			if err := os.Remove(*job.FilePath); err != nil && !os.IsNotExist(err) {
				s.logger.Error().Err(err).Str("job_id", job.ID).Str("path", *job.FilePath).
					Msg("Failed to delete expired artifact")
				continue
			}
		}

		if err := s.repo.MarkExpired(ctx, job.ID); err != nil {
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
				continue
			}
			return expired, fmt.Errorf("expire job %s: %w", job.ID, err)
		}
		s.invalidate(ctx, job.ID)
		expired++
	}

	if expired > 0 {
		s.metrics.RecordExpired(ctx, expired)
		s.logger.Info().Int("count", expired).Msg("Expired stale export jobs")
	}
	return expired, nil
}

// invalidate drops the cached record after any mutation.
func (s *Service) invalidate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("job_id", id).Msg("Failed to invalidate export cache")
	}
}
