package report

import (
	"context"
	"sort"
	"sync"
)

// Repository defines persistence for report definitions.
type Repository interface {
	// Create persists a new report.
	Create(ctx context.Context, report *Report) error

	// GetByID retrieves a report by ID.
	GetByID(ctx context.Context, id string) (*Report, error)

	// List retrieves a page of reports for an owner, newest first, with the
	// total match count. An empty owner lists across all owners.
	List(ctx context.Context, ownerID string, limit, offset int) ([]*Report, int, error)

	// Update persists changes to an existing report.
	Update(ctx context.Context, report *Report) error

	// Delete removes a report by ID.
	Delete(ctx context.Context, id string) error
}

// InMemoryRepository is an in-memory implementation of Repository, used in
// tests and for local development without Postgres.
type InMemoryRepository struct {
	mu      sync.RWMutex
	reports map[string]*Report
}

// NewInMemoryRepository creates a new in-memory report repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{reports: make(map[string]*Report)}
}

// Create persists a new report.
func (r *InMemoryRepository) Create(_ context.Context, report *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reports[report.ID] = copyReport(report)
	return nil
}

// GetByID retrieves a report by ID.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report, ok := r.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyReport(report), nil
}

// List retrieves a page of reports for an owner, newest first.
func (r *InMemoryRepository) List(_ context.Context, ownerID string, limit, offset int) ([]*Report, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Report
	for _, report := range r.reports {
		if ownerID != "" && report.OwnerID != ownerID {
			continue
		}
		matched = append(matched, report)
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

	items := make([]*Report, 0, len(matched))
	for _, report := range matched {
		items = append(items, copyReport(report))
	}
	return items, total, nil
}

// Update persists changes to an existing report.
func (r *InMemoryRepository) Update(_ context.Context, report *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reports[report.ID]; !ok {
		return ErrNotFound
	}
	r.reports[report.ID] = copyReport(report)
	return nil
}

// Delete removes a report by ID.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.reports[id]; !ok {
		return ErrNotFound
	}
	delete(r.reports, id)
	return nil
}

// copyReport creates a deep copy of a report.
func copyReport(r *Report) *Report {
	if r == nil {
		return nil
	}

	reportCopy := *r
	if r.Description != nil {
		desc := *r.Description
		reportCopy.Description = &desc
	}
	if r.Query != nil {
		query := make(map[string]any, len(r.Query))
		for k, v := range r.Query {
			query[k] = v
		}
		reportCopy.Query = query
	}
	return &reportCopy
}

// Ensure InMemoryRepository implements Repository.
var _ Repository = (*InMemoryRepository)(nil)
