// Package storage defines the interface between the ingestion/query
// layers and the relational telemetry store.
package storage

import (
	"context"

	"github.com/fidde/otelstore/pkg/models"
)

// MetricInfo is a catalogue row for metric discovery.
type MetricInfo struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Unit        string            `json:"unit"`
	Type        models.MetricType `json:"type"`
}

// Storage persists normalized telemetry and serves analytical queries.
// Implementations must be safe for concurrent use; the dedup invariant
// (at most one row per content hash) must hold under concurrent
// writers.
type Storage interface {
	// Write operations. Each call is one transaction: either every
	// accepted unit of the call commits or none does. The returned
	// count is the number of elementary units actually persisted
	// (spans, data points, log records).
	WriteTraces(ctx context.Context, units []models.SpanUnit) (int, error)
	WriteMetrics(ctx context.Context, units []models.MetricUnit) (int, error)
	WriteLogs(ctx context.Context, units []models.LogUnit) (int, error)

	// Trace queries.
	GetTrace(ctx context.Context, traceID string, window models.TimeWindow) ([]models.StoredSpan, error)
	FindTraces(ctx context.Context, window models.TimeWindow, limit int) ([]models.TraceSummary, error)
	ServiceMap(ctx context.Context, window models.TimeWindow) ([]models.ServiceDependency, error)

	// Metric queries.
	ListMetrics(ctx context.Context) ([]MetricInfo, error)
	MetricSeries(ctx context.Context, name string, window models.TimeWindow, labels map[string]string) (*MetricSeries, error)
	MetricLabels(ctx context.Context, name string) (map[string][]string, error)

	// Log queries.
	SearchLogs(ctx context.Context, q models.LogQuery) ([]models.StoredLog, error)
	LogSeverityStats(ctx context.Context) ([]models.SeverityStat, error)

	// Service discovery.
	ListServices(ctx context.Context) ([]string, error)

	// Retention. Deletion cascades to owned child rows; identity rows
	// are only removed by PurgeUnreferencedIdentities.
	DeleteTracesBefore(ctx context.Context, cutoffUnixNano int64) (int64, error)
	DeleteMetricPointsBefore(ctx context.Context, cutoffUnixNano int64) (int64, error)
	DeleteLogsBefore(ctx context.Context, cutoffUnixNano int64) (int64, error)
	PurgeUnreferencedIdentities(ctx context.Context) (int64, error)

	Clear(ctx context.Context) error
	Close() error
}

// SeriesPoint is one uniform time-series sample. Which fields are set
// depends on the metric's shape.
type SeriesPoint struct {
	TimeUnixNano      int64             `json:"time_unix_nano"`
	StartTimeUnixNano int64             `json:"start_time_unix_nano,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`

	// Scalar shapes (gauge, sum): exactly one of the two is set.
	ValueDouble *float64 `json:"value_double,omitempty"`
	ValueInt    *int64   `json:"value_int,omitempty"`

	// Aggregate shapes.
	Count *uint64  `json:"count,omitempty"`
	Sum   *float64 `json:"sum,omitempty"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`

	// Explicit-bounds histogram.
	ExplicitBounds []float64 `json:"explicit_bounds,omitempty"`
	BucketCounts   []uint64  `json:"bucket_counts,omitempty"`

	// Exponential histogram.
	Scale          *int32    `json:"scale,omitempty"`
	ZeroCount      *uint64   `json:"zero_count,omitempty"`
	PositiveOffset *int32    `json:"positive_offset,omitempty"`
	PositiveCounts []uint64  `json:"positive_counts,omitempty"`
	NegativeOffset *int32    `json:"negative_offset,omitempty"`
	NegativeCounts []uint64  `json:"negative_counts,omitempty"`

	// Summary.
	Quantiles []models.QuantileValue `json:"quantiles,omitempty"`
}

// MetricSeries is a reconstructed time series for one metric name.
type MetricSeries struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Unit        string            `json:"unit"`
	Type        models.MetricType `json:"type"`
	Temporality string            `json:"temporality,omitempty"`
	IsMonotonic bool              `json:"is_monotonic,omitempty"`
	Points      []SeriesPoint     `json:"points"`
}
