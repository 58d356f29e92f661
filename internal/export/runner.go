package export

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Processor executes one export job end to end.
type Processor interface {
	Process(ctx context.Context, id string) error
}

// RunnerConfig holds configuration for the export runner.
type RunnerConfig struct {
	Logger zerolog.Logger

	// Workers is the number of concurrent job processors. Defaults to 4.
	Workers int

	// QueueSize is the pending-job buffer. Enqueue on a full buffer is
	// rejected; the job stays PENDING until the requeue loop picks it up.
	// Defaults to 256.
	QueueSize int

	// RequeueInterval is how often RunRequeue re-enqueues PENDING jobs.
	// Defaults to 1m.
	RequeueInterval time.Duration
}

// Runner drives job processing with a bounded worker pool. Jobs are enqueued
// by ID; each in-flight job gets its own cancellable context so CancelJob can
// interrupt the producer mid-run.
type Runner struct {
	logger          zerolog.Logger
	workers         int
	queue           chan string
	requeueInterval time.Duration

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc

	wg sync.WaitGroup
}

// NewRunner creates a new export runner.
func NewRunner(cfg RunnerConfig) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	requeueInterval := cfg.RequeueInterval
	if requeueInterval <= 0 {
		requeueInterval = 1 * time.Minute
	}

	return &Runner{
		logger:          cfg.Logger.With().Str("component", "export_runner").Logger(),
		workers:         workers,
		queue:           make(chan string, queueSize),
		requeueInterval: requeueInterval,
		inFlight:        make(map[string]context.CancelFunc),
	}
}

// Start launches the worker pool. Workers drain the queue until ctx is
// cancelled; Wait blocks until in-flight jobs finish.
func (r *Runner) Start(ctx context.Context, processor Processor) {
	r.logger.Info().Int("workers", r.workers).Msg("Starting export runner")

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.work(ctx, processor)
	}
}

// Wait blocks until all workers have exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) work(ctx context.Context, processor Processor) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			r.run(ctx, processor, id)
		}
	}
}

func (r *Runner) run(ctx context.Context, processor Processor, id string) {
	jobCtx, cancel := context.WithCancel(ctx)
	r.track(id, cancel)
	defer func() {
		r.untrack(id)
		cancel()
	}()

	if err := processor.Process(jobCtx, id); err != nil {
		r.logger.Error().Err(err).Str("job_id", id).Msg("Export job processing error")
	}
}

// Enqueue submits a job ID for processing. Returns false if the queue is
// full.
func (r *Runner) Enqueue(id string) bool {
	select {
	case r.queue <- id:
		return true
	default:
		return false
	}
}

// CancelJob aborts the context of an in-flight job. Jobs still sitting in
// the queue are not removed; the processor skips them once their status is
// no longer PENDING.
func (r *Runner) CancelJob(id string) {
	r.mu.Lock()
	cancel, ok := r.inFlight[id]
	r.mu.Unlock()

	if ok {
		r.logger.Info().Str("job_id", id).Msg("Aborting in-flight export job")
		cancel()
	}
}

// Reconcile re-enqueues jobs left in PENDING or PROCESSING by a previous
// run. PROCESSING jobs are failed back first so they re-enter the lifecycle
// through retry semantics rather than resuming a half-finished run.
func (r *Runner) Reconcile(ctx context.Context, repo Repository) error {
	processing, err := repo.FindProcessing(ctx)
	if err != nil {
		return err
	}
	for _, job := range processing {
		if err := repo.MarkFailed(ctx, job.ID, job.Attempt, "Interrupted by restart"); err != nil {
			r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to reset interrupted job")
			continue
		}
		if err := repo.ResetForRetry(ctx, job.ID); err != nil {
			r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to requeue interrupted job")
		}
	}

	pending, err := repo.FindPending(ctx)
	if err != nil {
		return err
	}
	enqueued := 0
	for _, job := range pending {
		if r.Enqueue(job.ID) {
			enqueued++
		}
	}

	if len(pending) > 0 || len(processing) > 0 {
		r.logger.Info().
			Int("pending", len(pending)).
			Int("interrupted", len(processing)).
			Int("enqueued", enqueued).
			Msg("Reconciled export jobs")
	}
	return nil
}

// RunRequeue periodically re-enqueues PENDING jobs, picking up work that was
// rejected by a full buffer. Runs until ctx is cancelled. Double enqueues are
// harmless: MarkProcessing is conditional, so only one worker claims a job.
func (r *Runner) RunRequeue(ctx context.Context, repo Repository) {
	ticker := time.NewTicker(r.requeueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, err := repo.FindPending(ctx)
			if err != nil {
				r.logger.Warn().Err(err).Msg("Failed to list pending export jobs")
				continue
			}
			enqueued := 0
			for _, job := range pending {
				if r.Enqueue(job.ID) {
					enqueued++
				}
			}
			if enqueued > 0 {
				r.logger.Info().Int("enqueued", enqueued).Msg("Requeued pending export jobs")
			}
		}
	}
}

func (r *Runner) track(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight[id] = cancel
}

func (r *Runner) untrack(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, id)
}

// Ensure Runner satisfies the service's scheduling contract.
var _ Scheduler = (*Runner)(nil)
