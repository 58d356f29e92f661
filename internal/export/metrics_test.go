package export_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseboard/pulseboard/internal/export"
)

func TestNewMetrics(t *testing.T) {
	metrics, err := export.NewMetrics()
	require.NoError(t, err)
	assert.NotNil(t, metrics)
}

func TestMetrics_Record(t *testing.T) {
	metrics, err := export.NewMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	// Should not panic
	metrics.RecordJob(ctx, export.StatusCompleted, 150*time.Millisecond)
	metrics.RecordJob(ctx, export.StatusFailed, time.Second)
	metrics.RecordCacheHit(ctx)
	metrics.RecordCacheMiss(ctx)
	metrics.RecordExpired(ctx, 3)
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var metrics *export.Metrics
	ctx := context.Background()

	// Should not panic
	metrics.RecordJob(ctx, export.StatusCompleted, time.Second)
	metrics.RecordCacheHit(ctx)
	metrics.RecordCacheMiss(ctx)
	metrics.RecordExpired(ctx, 1)
}
