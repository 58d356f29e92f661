package export

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Expirer expires stale completed jobs.
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// SweeperConfig holds configuration for the expiry sweeper.
type SweeperConfig struct {
	Service  Expirer
	Logger   zerolog.Logger
	Interval time.Duration // defaults to 15m
}

// ExpirySweeper periodically expires stale export artifacts. Transient store
// errors are retried with exponential backoff; a sweep that keeps failing is
// skipped until the next tick.
type ExpirySweeper struct {
	service  Expirer
	logger   zerolog.Logger
	interval time.Duration
}

// NewExpirySweeper creates a new expiry sweeper.
func NewExpirySweeper(cfg SweeperConfig) *ExpirySweeper {
	interval := cfg.Interval
	if interval == 0 {
		interval = 15 * time.Minute
	}

	return &ExpirySweeper{
		service:  cfg.Service,
		logger:   cfg.Logger.With().Str("component", "expiry_sweeper").Logger(),
		interval: interval,
	}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("Starting expiry sweeper")

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Stopping expiry sweeper")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Sweep runs a single sweep with retries. Used by the on-demand trigger.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	var expired int

	operation := func() error {
		n, err := s.service.ExpireStale(ctx)
		expired += n
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 1 * time.Second
	policy.MaxElapsedTime = 1 * time.Minute

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	return expired, err
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	expired, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Expiry sweep failed")
		return
	}
	if expired > 0 {
		s.logger.Info().Int("expired", expired).Msg("Expiry sweep finished")
	}
}
