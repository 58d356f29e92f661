package export

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/pulseboard/pulseboard/internal/export"

// Metrics holds instruments for the export pipeline. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	jobDuration metric.Float64Histogram
	jobTotal    metric.Int64Counter
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
	expiredJobs metric.Int64Counter
}

// NewMetrics creates export pipeline metrics.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	jobDuration, err := meter.Float64Histogram(
		"export.job.duration",
		metric.WithDescription("Duration of export job processing in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	jobTotal, err := meter.Int64Counter(
		"export.job.total",
		metric.WithDescription("Total number of processed export jobs by outcome"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter(
		"export.cache.hit",
		metric.WithDescription("Number of export read cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMisses, err := meter.Int64Counter(
		"export.cache.miss",
		metric.WithDescription("Number of export read cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	expiredJobs, err := meter.Int64Counter(
		"export.job.expired",
		metric.WithDescription("Number of export jobs expired by the sweep"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		jobDuration: jobDuration,
		jobTotal:    jobTotal,
		cacheHits:   cacheHits,
		cacheMisses: cacheMisses,
		expiredJobs: expiredJobs,
	}, nil
}

// RecordJob records a finished processing run and its outcome status.
func (m *Metrics) RecordJob(ctx context.Context, outcome Status, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", string(outcome)))
	m.jobDuration.Record(ctx, duration.Seconds(), attrs)
	m.jobTotal.Add(ctx, 1, attrs)
}

// RecordCacheHit records a read served from the cache.
func (m *Metrics) RecordCacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.cacheHits.Add(ctx, 1)
}

// RecordCacheMiss records a read that fell through to the store.
func (m *Metrics) RecordCacheMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.cacheMisses.Add(ctx, 1)
}

// RecordExpired records jobs expired by a sweep.
func (m *Metrics) RecordExpired(ctx context.Context, count int) {
	if m == nil || count == 0 {
		return
	}
	m.expiredJobs.Add(ctx, int64(count))
}
