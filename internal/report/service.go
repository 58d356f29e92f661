package report

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the report service.
type ServiceConfig struct {
	Repository Repository
	Cache      Cache
	Logger     zerolog.Logger

	// CacheTTL bounds how long reports stay cached. Defaults to 5m.
	CacheTTL time.Duration
}

// Service provides report CRUD with cache-aside reads.
type Service struct {
	repo     Repository
	cache    Cache
	logger   zerolog.Logger
	cacheTTL time.Duration
}

// NewService creates a new report service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	return &Service{
		repo:     cfg.Repository,
		cache:    cfg.Cache,
		logger:   cfg.Logger.With().Str("component", "report_service").Logger(),
		cacheTTL: cacheTTL,
	}
}

// CreateRequest holds the inputs for a new report.
type CreateRequest struct {
	OwnerID     string
	Name        string
	Description *string
	Query       map[string]any
}

// Create persists a new report.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Report, error) {
	now := time.Now()
	report := &Report{
		ID:          NewReportID(),
		OwnerID:     req.OwnerID,
		Name:        req.Name,
		Description: req.Description,
		Query:       req.Query,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	s.logger.Info().Str("report_id", report.ID).Str("owner_id", report.OwnerID).
		Msg("Report created")
	return report, nil
}

// GetByID retrieves a report, cache-first, with ownership enforced on both
// paths.
func (s *Service) GetByID(ctx context.Context, id, ownerID string) (*Report, error) {
	if cached, err := s.cache.Get(ctx, id); err == nil && cached != nil {
		if !cached.OwnedBy(ownerID) {
			return nil, ErrForbidden
		}
		return cached, nil
	}

	report, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !report.OwnedBy(ownerID) {
		return nil, ErrForbidden
	}

	if err := s.cache.Set(ctx, report, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("report_id", id).Msg("Failed to cache report")
	}
	return report, nil
}

// List retrieves a page of the caller's reports with the total count.
func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]*Report, int, error) {
	return s.repo.List(ctx, ownerID, limit, offset)
}

// UpdateRequest holds partial updates to a report. Nil fields are unchanged.
type UpdateRequest struct {
	Name        *string
	Description *string
	Query       map[string]any
}

// Update applies changes to an existing report.
func (s *Service) Update(ctx context.Context, id, ownerID string, req UpdateRequest) (*Report, error) {
	report, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !report.OwnedBy(ownerID) {
		return nil, ErrForbidden
	}

	if req.Name != nil {
		report.Name = *req.Name
	}
	if req.Description != nil {
		report.Description = req.Description
	}
	if req.Query != nil {
		report.Query = req.Query
	}
	report.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, report); err != nil {
		return nil, fmt.Errorf("update report %s: %w", id, err)
	}
	s.invalidate(ctx, id)

	return report, nil
}

// Delete removes a report.
func (s *Service) Delete(ctx context.Context, id, ownerID string) error {
	report, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !report.OwnedBy(ownerID) {
		return ErrForbidden
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete report %s: %w", id, err)
	}
	s.invalidate(ctx, id)

	s.logger.Info().Str("report_id", id).Msg("Report deleted")
	return nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("report_id", id).Msg("Failed to invalidate report cache")
	}
}
