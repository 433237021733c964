package models

import (
	"math"
)

// MetricType names the five metric shapes. A metric's shape is fixed at
// creation; points of a different shape are rejected.
type MetricType string

const (
	MetricTypeGauge                MetricType = "gauge"
	MetricTypeSum                  MetricType = "sum"
	MetricTypeHistogram            MetricType = "histogram"
	MetricTypeExponentialHistogram MetricType = "exponential_histogram"
	MetricTypeSummary              MetricType = "summary"
)

// Temporality is the aggregation temporality of sums and histograms.
type Temporality string

const (
	TemporalityUnspecified Temporality = "unspecified"
	TemporalityDelta       Temporality = "delta"
	TemporalityCumulative  Temporality = "cumulative"
)

// MetricData is the tagged union over the five data point shapes. One
// shape-dispatch at the persistence boundary picks the concrete table.
type MetricData interface {
	Type() MetricType
	PointCount() int
}

// Metric is one named metric with its shape-specific data points and
// its owning resource/scope descriptions.
type Metric struct {
	Name        string
	Description string
	Unit        string
	Data        MetricData
}

// MetricUnit pairs a metric with its owning resource and scope.
type MetricUnit struct {
	Resource *Resource
	Scope    *Scope
	Metric   *Metric
}

// Exemplar is a sampled raw measurement attached to a data point,
// optionally correlated to a span. Exactly one of ValueDouble/ValueInt
// is set.
type Exemplar struct {
	TimeUnixNano       int64
	ValueDouble        *float64
	ValueInt           *int64
	FilteredAttributes Attributes
	TraceID            string
	SpanID             string
}

// NumberDataPoint is a gauge or sum point. Exactly one of
// ValueDouble/ValueInt is set; the variants are never coerced.
type NumberDataPoint struct {
	StartTimeUnixNano int64
	TimeUnixNano      int64
	Flags             uint32
	Attributes        Attributes
	ValueDouble       *float64
	ValueInt          *int64
	Exemplar          *Exemplar
}

// Gauge is the gauge shape.
type Gauge struct {
	Points []NumberDataPoint
}

func (Gauge) Type() MetricType  { return MetricTypeGauge }
func (g Gauge) PointCount() int { return len(g.Points) }

// Sum is the sum shape: gauge points plus temporality and monotonicity.
type Sum struct {
	Points      []NumberDataPoint
	Temporality Temporality
	IsMonotonic bool
}

func (Sum) Type() MetricType  { return MetricTypeSum }
func (s Sum) PointCount() int { return len(s.Points) }

// HistogramDataPoint is an explicit-bounds histogram point. The bucket
// arrays satisfy len(BucketCounts) == len(ExplicitBounds)+1; the mapper
// validates this, storage does not.
type HistogramDataPoint struct {
	StartTimeUnixNano int64
	TimeUnixNano      int64
	Flags             uint32
	Attributes        Attributes
	Count             uint64
	Sum               *float64
	Min               *float64
	Max               *float64
	ExplicitBounds    []float64
	BucketCounts      []uint64
	Exemplar          *Exemplar
}

// Histogram is the explicit-bounds histogram shape.
type Histogram struct {
	Points      []HistogramDataPoint
	Temporality Temporality
}

func (Histogram) Type() MetricType  { return MetricTypeHistogram }
func (h Histogram) PointCount() int { return len(h.Points) }

// ExpBuckets is one signed side of an exponential histogram: bucket i
// holds Counts[i] observations in (ExpBucketLower(scale, Offset+i),
// ExpBucketLower(scale, Offset+i+1)].
type ExpBuckets struct {
	Offset int32
	Counts []uint64
}

// ExponentialHistogramDataPoint is a base-2^(2^-scale) histogram point.
type ExponentialHistogramDataPoint struct {
	StartTimeUnixNano int64
	TimeUnixNano      int64
	Flags             uint32
	Attributes        Attributes
	Count             uint64
	Sum               *float64
	Min               *float64
	Max               *float64
	Scale             int32
	ZeroCount         uint64
	Positive          ExpBuckets
	Negative          ExpBuckets
	Exemplar          *Exemplar
}

// ExponentialHistogram is the exponential histogram shape.
type ExponentialHistogram struct {
	Points      []ExponentialHistogramDataPoint
	Temporality Temporality
}

func (ExponentialHistogram) Type() MetricType  { return MetricTypeExponentialHistogram }
func (e ExponentialHistogram) PointCount() int { return len(e.Points) }

// QuantileValue is one (quantile, value) pair of a summary point, with
// quantile in [0, 1].
type QuantileValue struct {
	Quantile float64 `json:"quantile"`
	Value    float64 `json:"value"`
}

// SummaryDataPoint is a pre-aggregated quantile summary point.
type SummaryDataPoint struct {
	StartTimeUnixNano int64
	TimeUnixNano      int64
	Flags             uint32
	Attributes        Attributes
	Count             uint64
	Sum               float64
	Quantiles         []QuantileValue
	Exemplar          *Exemplar
}

// Summary is the summary shape.
type Summary struct {
	Points []SummaryDataPoint
}

func (Summary) Type() MetricType  { return MetricTypeSummary }
func (s Summary) PointCount() int { return len(s.Points) }

// ExpBucketLower returns the lower boundary of exponential histogram
// bucket index at the given scale: 2^(index * 2^-scale), the
// base-2^(2^-scale) growth formula. The mapping is reproducible from
// (scale, index) alone.
func ExpBucketLower(scale, index int32) float64 {
	return math.Exp2(float64(index) * math.Exp2(-float64(scale)))
}
