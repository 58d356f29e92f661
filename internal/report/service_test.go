package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/report"
)

func newService(t *testing.T) (*report.Service, *report.InMemoryRepository, *report.MemoryCache) {
	t.Helper()

	repo := report.NewInMemoryRepository()
	cache := report.NewMemoryCache()
	service := report.NewService(report.ServiceConfig{
		Repository: repo,
		Cache:      cache,
		Logger:     zerolog.Nop(),
		CacheTTL:   1 * time.Minute,
	})
	return service, repo, cache
}

func createReport(t *testing.T, service *report.Service, owner string) *report.Report {
	t.Helper()

	rpt, err := service.Create(context.Background(), report.CreateRequest{
		OwnerID: owner,
		Name:    "Signups by week",
		Query:   map[string]any{"event": "signup"},
	})
	require.NoError(t, err)
	return rpt
}

func TestService_Create(t *testing.T) {
	service, _, _ := newService(t)

	rpt := createReport(t, service, "user-1")

	assert.Contains(t, rpt.ID, "rpt_")
	assert.Equal(t, "user-1", rpt.OwnerID)
	assert.Equal(t, "Signups by week", rpt.Name)
}

func TestService_GetByID(t *testing.T) {
	service, _, cache := newService(t)
	rpt := createReport(t, service, "user-1")

	t.Run("owner reads and populates cache", func(t *testing.T) {
		got, err := service.GetByID(context.Background(), rpt.ID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, rpt.ID, got.ID)

		cached, err := cache.Get(context.Background(), rpt.ID)
		require.NoError(t, err)
		assert.NotNil(t, cached)
	})

	t.Run("other user is forbidden on cache hit too", func(t *testing.T) {
		_, err := service.GetByID(context.Background(), rpt.ID, "user-2")
		assert.ErrorIs(t, err, report.ErrForbidden)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := service.GetByID(context.Background(), "rpt_missing", "user-1")
		assert.ErrorIs(t, err, report.ErrNotFound)
	})
}

func TestService_Update(t *testing.T) {
	service, _, cache := newService(t)
	rpt := createReport(t, service, "user-1")

	// Warm the cache so the update must invalidate it.
	_, err := service.GetByID(context.Background(), rpt.ID, "user-1")
	require.NoError(t, err)

	name := "Signups by month"
	updated, err := service.Update(context.Background(), rpt.ID, "user-1", report.UpdateRequest{
		Name:  &name,
		Query: map[string]any{"event": "signup", "granularity": "month"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Signups by month", updated.Name)
	assert.Equal(t, "month", updated.Query["granularity"])

	cached, err := cache.Get(context.Background(), rpt.ID)
	require.NoError(t, err)
	assert.Nil(t, cached)

	t.Run("other user is forbidden", func(t *testing.T) {
		_, err := service.Update(context.Background(), rpt.ID, "user-2", report.UpdateRequest{Name: &name})
		assert.ErrorIs(t, err, report.ErrForbidden)
	})
}

func TestService_Delete(t *testing.T) {
	service, repo, _ := newService(t)
	rpt := createReport(t, service, "user-1")

	t.Run("other user is forbidden", func(t *testing.T) {
		err := service.Delete(context.Background(), rpt.ID, "user-2")
		assert.ErrorIs(t, err, report.ErrForbidden)
	})

	require.NoError(t, service.Delete(context.Background(), rpt.ID, "user-1"))

	_, err := repo.GetByID(context.Background(), rpt.ID)
	assert.ErrorIs(t, err, report.ErrNotFound)
}

func TestService_List(t *testing.T) {
	service, _, _ := newService(t)

	createReport(t, service, "user-1")
	createReport(t, service, "user-1")
	createReport(t, service, "user-2")

	items, total, err := service.List(context.Background(), "user-1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	items, total, err = service.List(context.Background(), "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 3)
}
