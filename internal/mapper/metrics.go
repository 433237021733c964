package mapper

import (
	"fmt"
	"log"

	"github.com/fidde/otelstore/pkg/models"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
)

// MetricsData is the normalized form of one metrics export request.
type MetricsData struct {
	Units []models.MetricUnit

	// Points counts accepted data points; Rejected counts points
	// dropped for malformed content.
	Points   int
	Rejected int
}

// Metrics maps a metrics export request. The elementary unit is the
// data point: a malformed point (or a whole metric missing its name)
// is dropped and counted, the rest of the request proceeds.
func Metrics(req *colmetricspb.ExportMetricsServiceRequest) (*MetricsData, error) {
	if req == nil {
		return nil, fmt.Errorf("metrics export request cannot be nil")
	}

	data := &MetricsData{}

	for _, rm := range req.ResourceMetrics {
		res := resource(rm.GetResource(), rm.GetSchemaUrl())

		for _, sm := range rm.ScopeMetrics {
			sc := scope(sm.GetScope(), sm.GetSchemaUrl())

			for _, metric := range sm.Metrics {
				mapped, accepted, rejected := mapMetric(metric)
				data.Points += accepted
				data.Rejected += rejected
				if mapped == nil || accepted == 0 {
					continue
				}
				data.Units = append(data.Units, models.MetricUnit{
					Resource: res,
					Scope:    sc,
					Metric:   mapped,
				})
			}
		}
	}

	return data, nil
}

// mapMetric converts one wire metric, returning the accepted and
// rejected point counts.
func mapMetric(metric *metricspb.Metric) (*models.Metric, int, int) {
	if metric == nil {
		return nil, 0, 0
	}
	if metric.Name == "" {
		n := wirePointCount(metric)
		if n > 0 {
			log.Printf("dropping %d data points: metric name is required", n)
		}
		return nil, 0, n
	}

	mapped := &models.Metric{
		Name:        metric.Name,
		Description: metric.Description,
		Unit:        metric.Unit,
	}

	var accepted, rejected int
	switch d := metric.Data.(type) {
	case *metricspb.Metric_Gauge:
		points := mapNumberPoints(metric.Name, d.Gauge.GetDataPoints())
		accepted = len(points)
		mapped.Data = models.Gauge{Points: points}

	case *metricspb.Metric_Sum:
		points := mapNumberPoints(metric.Name, d.Sum.GetDataPoints())
		accepted = len(points)
		mapped.Data = models.Sum{
			Points:      points,
			Temporality: temporality(d.Sum.GetAggregationTemporality()),
			IsMonotonic: d.Sum.GetIsMonotonic(),
		}

	case *metricspb.Metric_Histogram:
		points, dropped := mapHistogramPoints(metric.Name, d.Histogram.GetDataPoints())
		accepted, rejected = len(points), dropped
		mapped.Data = models.Histogram{
			Points:      points,
			Temporality: temporality(d.Histogram.GetAggregationTemporality()),
		}

	case *metricspb.Metric_ExponentialHistogram:
		points := mapExpHistogramPoints(d.ExponentialHistogram.GetDataPoints())
		accepted = len(points)
		mapped.Data = models.ExponentialHistogram{
			Points:      points,
			Temporality: temporality(d.ExponentialHistogram.GetAggregationTemporality()),
		}

	case *metricspb.Metric_Summary:
		points, dropped := mapSummaryPoints(metric.Name, d.Summary.GetDataPoints())
		accepted, rejected = len(points), dropped
		mapped.Data = models.Summary{Points: points}

	default:
		return nil, 0, 0
	}

	return mapped, accepted, rejected
}

func mapNumberPoints(metricName string, points []*metricspb.NumberDataPoint) []models.NumberDataPoint {
	out := make([]models.NumberDataPoint, 0, len(points))
	for _, p := range points {
		mapped := models.NumberDataPoint{
			StartTimeUnixNano: int64(p.GetStartTimeUnixNano()),
			TimeUnixNano:      int64(p.GetTimeUnixNano()),
			Flags:             p.GetFlags(),
			Attributes:        attributes(p.GetAttributes()),
			Exemplar:          mapExemplar(metricName, p.GetExemplars()),
		}
		switch v := p.GetValue().(type) {
		case *metricspb.NumberDataPoint_AsDouble:
			d := v.AsDouble
			mapped.ValueDouble = &d
		case *metricspb.NumberDataPoint_AsInt:
			i := v.AsInt
			mapped.ValueInt = &i
		}
		out = append(out, mapped)
	}
	return out
}

func mapHistogramPoints(metricName string, points []*metricspb.HistogramDataPoint) ([]models.HistogramDataPoint, int) {
	out := make([]models.HistogramDataPoint, 0, len(points))
	var dropped int
	for _, p := range points {
		// Bucket arrays must be parallel: counts has one more entry
		// than bounds. Storage does not re-validate this.
		if len(p.GetBucketCounts()) != len(p.GetExplicitBounds())+1 {
			log.Printf("dropping histogram point of %s: %d bounds with %d counts",
				metricName, len(p.GetExplicitBounds()), len(p.GetBucketCounts()))
			dropped++
			continue
		}
		out = append(out, models.HistogramDataPoint{
			StartTimeUnixNano: int64(p.GetStartTimeUnixNano()),
			TimeUnixNano:      int64(p.GetTimeUnixNano()),
			Flags:             p.GetFlags(),
			Attributes:        attributes(p.GetAttributes()),
			Count:             p.GetCount(),
			Sum:               p.Sum,
			Min:               p.Min,
			Max:               p.Max,
			ExplicitBounds:    p.GetExplicitBounds(),
			BucketCounts:      p.GetBucketCounts(),
			Exemplar:          mapExemplar(metricName, p.GetExemplars()),
		})
	}
	return out, dropped
}

func mapExpHistogramPoints(points []*metricspb.ExponentialHistogramDataPoint) []models.ExponentialHistogramDataPoint {
	out := make([]models.ExponentialHistogramDataPoint, 0, len(points))
	for _, p := range points {
		out = append(out, models.ExponentialHistogramDataPoint{
			StartTimeUnixNano: int64(p.GetStartTimeUnixNano()),
			TimeUnixNano:      int64(p.GetTimeUnixNano()),
			Flags:             p.GetFlags(),
			Attributes:        attributes(p.GetAttributes()),
			Count:             p.GetCount(),
			Sum:               p.Sum,
			Min:               p.Min,
			Max:               p.Max,
			Scale:             p.GetScale(),
			ZeroCount:         p.GetZeroCount(),
			Positive: models.ExpBuckets{
				Offset: p.GetPositive().GetOffset(),
				Counts: p.GetPositive().GetBucketCounts(),
			},
			Negative: models.ExpBuckets{
				Offset: p.GetNegative().GetOffset(),
				Counts: p.GetNegative().GetBucketCounts(),
			},
		})
	}
	return out
}

func mapSummaryPoints(metricName string, points []*metricspb.SummaryDataPoint) ([]models.SummaryDataPoint, int) {
	out := make([]models.SummaryDataPoint, 0, len(points))
	var dropped int
pointLoop:
	for _, p := range points {
		quantiles := make([]models.QuantileValue, 0, len(p.GetQuantileValues()))
		for _, q := range p.GetQuantileValues() {
			if q.GetQuantile() < 0 || q.GetQuantile() > 1 {
				log.Printf("dropping summary point of %s: quantile %v out of [0,1]",
					metricName, q.GetQuantile())
				dropped++
				continue pointLoop
			}
			quantiles = append(quantiles, models.QuantileValue{
				Quantile: q.GetQuantile(),
				Value:    q.GetValue(),
			})
		}
		out = append(out, models.SummaryDataPoint{
			StartTimeUnixNano: int64(p.GetStartTimeUnixNano()),
			TimeUnixNano:      int64(p.GetTimeUnixNano()),
			Flags:             p.GetFlags(),
			Attributes:        attributes(p.GetAttributes()),
			Count:             p.GetCount(),
			Sum:               p.GetSum(),
			Quantiles:         quantiles,
		})
	}
	return out, dropped
}

// mapExemplar picks the first well-formed exemplar of a point. An
// exemplar with a malformed correlation id is dropped on its own; the
// point survives.
func mapExemplar(metricName string, exemplars []*metricspb.Exemplar) *models.Exemplar {
	for _, e := range exemplars {
		mapped := &models.Exemplar{
			TimeUnixNano:       int64(e.GetTimeUnixNano()),
			FilteredAttributes: attributes(e.GetFilteredAttributes()),
		}

		if len(e.GetTraceId()) > 0 || len(e.GetSpanId()) > 0 {
			traceID, err := models.EncodeTraceID(e.GetTraceId())
			if err != nil {
				log.Printf("dropping exemplar of %s: %v", metricName, err)
				continue
			}
			spanID, err := models.EncodeSpanID(e.GetSpanId())
			if err != nil {
				log.Printf("dropping exemplar of %s: %v", metricName, err)
				continue
			}
			mapped.TraceID, mapped.SpanID = traceID, spanID
		}

		switch v := e.GetValue().(type) {
		case *metricspb.Exemplar_AsDouble:
			d := v.AsDouble
			mapped.ValueDouble = &d
		case *metricspb.Exemplar_AsInt:
			i := v.AsInt
			mapped.ValueInt = &i
		}
		return mapped
	}
	return nil
}

// wirePointCount counts the data points of a wire metric before mapping.
func wirePointCount(metric *metricspb.Metric) int {
	switch d := metric.Data.(type) {
	case *metricspb.Metric_Gauge:
		return len(d.Gauge.GetDataPoints())
	case *metricspb.Metric_Sum:
		return len(d.Sum.GetDataPoints())
	case *metricspb.Metric_Histogram:
		return len(d.Histogram.GetDataPoints())
	case *metricspb.Metric_ExponentialHistogram:
		return len(d.ExponentialHistogram.GetDataPoints())
	case *metricspb.Metric_Summary:
		return len(d.Summary.GetDataPoints())
	default:
		return 0
	}
}

func temporality(t metricspb.AggregationTemporality) models.Temporality {
	switch t {
	case metricspb.AggregationTemporality_AGGREGATION_TEMPORALITY_DELTA:
		return models.TemporalityDelta
	case metricspb.AggregationTemporality_AGGREGATION_TEMPORALITY_CUMULATIVE:
		return models.TemporalityCumulative
	default:
		return models.TemporalityUnspecified
	}
}
