package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fidde/otelstore/internal/storage"
	"github.com/fidde/otelstore/pkg/models"
)

// ListMetrics returns the metric catalogue: one entry per distinct
// metric name with its shape, unit and description.
func (s *Store) ListMetrics(ctx context.Context) ([]storage.MetricInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, MIN(description), MIN(unit), MIN(type)
		FROM metrics
		GROUP BY name
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying metrics: %w", err)
	}
	defer rows.Close()

	var infos []storage.MetricInfo
	for rows.Next() {
		var info storage.MetricInfo
		var typ string
		if err := rows.Scan(&info.Name, &info.Description, &info.Unit, &typ); err != nil {
			return nil, fmt.Errorf("scanning metric: %w", err)
		}
		info.Type = models.MetricType(typ)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// metricIdentity is the resolved shape of a metric name: the row ids
// sharing the name and shape, plus catalogue fields.
type metricIdentity struct {
	ids         []int64
	typ         models.MetricType
	description string
	unit        string
}

// resolveMetricName resolves a metric name to its fixed shape. Rows of
// the same name but a different shape (possible across resources) are
// excluded from the scan.
func (s *Store) resolveMetricName(ctx context.Context, name string) (*metricIdentity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, description, unit FROM metrics WHERE name = ? ORDER BY id
	`, name)
	if err != nil {
		return nil, fmt.Errorf("resolving metric %s: %w", name, err)
	}
	defer rows.Close()

	var ident *metricIdentity
	for rows.Next() {
		var id int64
		var typ, description, unit string
		if err := rows.Scan(&id, &typ, &description, &unit); err != nil {
			return nil, fmt.Errorf("scanning metric row: %w", err)
		}
		if ident == nil {
			ident = &metricIdentity{
				typ:         models.MetricType(typ),
				description: description,
				unit:        unit,
			}
		}
		if models.MetricType(typ) == ident.typ {
			ident.ids = append(ident.ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if ident == nil {
		return nil, models.ErrNotFound
	}
	return ident, nil
}

// pointTable maps a metric shape to its data point table.
func pointTable(typ models.MetricType) string {
	switch typ {
	case models.MetricTypeGauge:
		return "gauge_data_points"
	case models.MetricTypeSum:
		return "sum_data_points"
	case models.MetricTypeHistogram:
		return "histogram_data_points"
	case models.MetricTypeExponentialHistogram:
		return "exponential_histogram_data_points"
	case models.MetricTypeSummary:
		return "summary_data_points"
	default:
		return ""
	}
}

// idPlaceholders renders "?, ?, ?" and the matching args.
func idPlaceholders(ids []int64) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return strings.Join(marks, ", "), args
}

// pointWindowClause filters data points by [start, end) on their time.
func pointWindowClause(window models.TimeWindow, where []string, args []any) ([]string, []any) {
	if window.StartUnixNano != 0 {
		where = append(where, "time_unix_nano >= ?")
		args = append(args, window.StartUnixNano)
	}
	if window.EndUnixNano != 0 {
		where = append(where, "time_unix_nano < ?")
		args = append(args, window.EndUnixNano)
	}
	return where, args
}

// matchLabels applies a requested label filter against a point's
// attribute set: a post-filter, not an indexed predicate.
func matchLabels(attrs models.Attributes, labels map[string]string) bool {
	for k, want := range labels {
		v, ok := attrs[k]
		if !ok || v.AsString() != want {
			return false
		}
	}
	return true
}

func attrsToLabels(attrs models.Attributes) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	labels := make(map[string]string, len(attrs))
	for k, v := range attrs {
		labels[k] = v.AsString()
	}
	return labels
}

// MetricSeries reconstructs the time series for a metric name: the
// shape is resolved from the metric row, then the one matching data
// point table is scanned in time order.
func (s *Store) MetricSeries(ctx context.Context, name string, window models.TimeWindow, labels map[string]string) (*storage.MetricSeries, error) {
	ident, err := s.resolveMetricName(ctx, name)
	if err != nil {
		return nil, err
	}

	series := &storage.MetricSeries{
		Name:        name,
		Description: ident.description,
		Unit:        ident.unit,
		Type:        ident.typ,
	}

	marks, args := idPlaceholders(ident.ids)
	where := []string{fmt.Sprintf("metric_id IN (%s)", marks)}
	where, args = pointWindowClause(window, where, args)

	switch ident.typ {
	case models.MetricTypeGauge, models.MetricTypeSum:
		err = s.scanNumberSeries(ctx, series, ident.typ, where, args, labels)
	case models.MetricTypeHistogram:
		err = s.scanHistogramSeries(ctx, series, where, args, labels)
	case models.MetricTypeExponentialHistogram:
		err = s.scanExpHistogramSeries(ctx, series, where, args, labels)
	case models.MetricTypeSummary:
		err = s.scanSummarySeries(ctx, series, where, args, labels)
	default:
		err = fmt.Errorf("unknown metric type %q", ident.typ)
	}
	if err != nil {
		return nil, err
	}
	return series, nil
}

func (s *Store) scanNumberSeries(ctx context.Context, series *storage.MetricSeries, typ models.MetricType, where []string, args []any, labels map[string]string) error {
	table := pointTable(typ)
	cols := "time_unix_nano, start_time_unix_nano, attributes, value_double, value_int"
	if typ == models.MetricTypeSum {
		cols += ", temporality, is_monotonic"
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+cols+" FROM "+table+" WHERE "+joinAnd(where)+" ORDER BY time_unix_nano", args...)
	if err != nil {
		return fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var point storage.SeriesPoint
		var attrsDoc string
		dest := []any{&point.TimeUnixNano, &point.StartTimeUnixNano, &attrsDoc, &point.ValueDouble, &point.ValueInt}
		if typ == models.MetricTypeSum {
			var temporality string
			var monotonic bool
			dest = append(dest, &temporality, &monotonic)
			if err := rows.Scan(dest...); err != nil {
				return fmt.Errorf("scanning %s: %w", table, err)
			}
			series.Temporality = temporality
			series.IsMonotonic = monotonic
		} else {
			if err := rows.Scan(dest...); err != nil {
				return fmt.Errorf("scanning %s: %w", table, err)
			}
		}

		attrs, err := models.DecodeAttributes(attrsDoc)
		if err != nil {
			return err
		}
		if !matchLabels(attrs, labels) {
			continue
		}
		point.Labels = attrsToLabels(attrs)
		series.Points = append(series.Points, point)
	}
	return rows.Err()
}

func (s *Store) scanHistogramSeries(ctx context.Context, series *storage.MetricSeries, where []string, args []any, labels map[string]string) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time_unix_nano, start_time_unix_nano, attributes,
		       count, sum, min, max, explicit_bounds, bucket_counts, temporality
		FROM histogram_data_points
		WHERE `+joinAnd(where)+` ORDER BY time_unix_nano`, args...)
	if err != nil {
		return fmt.Errorf("querying histogram points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var point storage.SeriesPoint
		var attrsDoc, boundsDoc, countsDoc, temporality string
		var count uint64
		if err := rows.Scan(&point.TimeUnixNano, &point.StartTimeUnixNano, &attrsDoc,
			&count, &point.Sum, &point.Min, &point.Max, &boundsDoc, &countsDoc, &temporality); err != nil {
			return fmt.Errorf("scanning histogram point: %w", err)
		}
		point.Count = &count
		series.Temporality = temporality

		if err := decodeJSON(boundsDoc, &point.ExplicitBounds); err != nil {
			return err
		}
		if err := decodeJSON(countsDoc, &point.BucketCounts); err != nil {
			return err
		}

		attrs, err := models.DecodeAttributes(attrsDoc)
		if err != nil {
			return err
		}
		if !matchLabels(attrs, labels) {
			continue
		}
		point.Labels = attrsToLabels(attrs)
		series.Points = append(series.Points, point)
	}
	return rows.Err()
}

func (s *Store) scanExpHistogramSeries(ctx context.Context, series *storage.MetricSeries, where []string, args []any, labels map[string]string) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time_unix_nano, start_time_unix_nano, attributes,
		       count, sum, min, max, scale, zero_count,
		       positive_offset, positive_bucket_counts,
		       negative_offset, negative_bucket_counts, temporality
		FROM exponential_histogram_data_points
		WHERE `+joinAnd(where)+` ORDER BY time_unix_nano`, args...)
	if err != nil {
		return fmt.Errorf("querying exponential histogram points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var point storage.SeriesPoint
		var attrsDoc, posDoc, negDoc, temporality string
		var count, zeroCount uint64
		var scale, posOffset, negOffset int32
		if err := rows.Scan(&point.TimeUnixNano, &point.StartTimeUnixNano, &attrsDoc,
			&count, &point.Sum, &point.Min, &point.Max, &scale, &zeroCount,
			&posOffset, &posDoc, &negOffset, &negDoc, &temporality); err != nil {
			return fmt.Errorf("scanning exponential histogram point: %w", err)
		}
		point.Count = &count
		point.Scale = &scale
		point.ZeroCount = &zeroCount
		point.PositiveOffset = &posOffset
		point.NegativeOffset = &negOffset
		series.Temporality = temporality

		if err := decodeJSON(posDoc, &point.PositiveCounts); err != nil {
			return err
		}
		if err := decodeJSON(negDoc, &point.NegativeCounts); err != nil {
			return err
		}

		attrs, err := models.DecodeAttributes(attrsDoc)
		if err != nil {
			return err
		}
		if !matchLabels(attrs, labels) {
			continue
		}
		point.Labels = attrsToLabels(attrs)
		series.Points = append(series.Points, point)
	}
	return rows.Err()
}

func (s *Store) scanSummarySeries(ctx context.Context, series *storage.MetricSeries, where []string, args []any, labels map[string]string) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time_unix_nano, start_time_unix_nano, attributes, count, sum, quantile_values
		FROM summary_data_points
		WHERE `+joinAnd(where)+` ORDER BY time_unix_nano`, args...)
	if err != nil {
		return fmt.Errorf("querying summary points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var point storage.SeriesPoint
		var attrsDoc, quantilesDoc string
		var count uint64
		var sum float64
		if err := rows.Scan(&point.TimeUnixNano, &point.StartTimeUnixNano, &attrsDoc,
			&count, &sum, &quantilesDoc); err != nil {
			return fmt.Errorf("scanning summary point: %w", err)
		}
		point.Count = &count
		point.Sum = &sum

		if err := decodeJSON(quantilesDoc, &point.Quantiles); err != nil {
			return err
		}

		attrs, err := models.DecodeAttributes(attrsDoc)
		if err != nil {
			return err
		}
		if !matchLabels(attrs, labels) {
			continue
		}
		point.Labels = attrsToLabels(attrs)
		series.Points = append(series.Points, point)
	}
	return rows.Err()
}

// MetricLabels enumerates the unique attribute keys and their observed
// values across a metric's data points. Used for discovery and
// autocomplete, not query planning.
func (s *Store) MetricLabels(ctx context.Context, name string) (map[string][]string, error) {
	ident, err := s.resolveMetricName(ctx, name)
	if err != nil {
		return nil, err
	}

	marks, args := idPlaceholders(ident.ids)
	table := pointTable(ident.typ)
	rows, err := s.db.QueryContext(ctx,
		"SELECT attributes FROM "+table+" WHERE metric_id IN ("+marks+")", args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s attributes: %w", table, err)
	}
	defer rows.Close()

	seen := make(map[string]map[string]struct{})
	for rows.Next() {
		var attrsDoc string
		if err := rows.Scan(&attrsDoc); err != nil {
			return nil, fmt.Errorf("scanning attributes: %w", err)
		}
		attrs, err := models.DecodeAttributes(attrsDoc)
		if err != nil {
			return nil, err
		}
		for k, v := range attrs {
			if seen[k] == nil {
				seen[k] = make(map[string]struct{})
			}
			seen[k][v.AsString()] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	labels := make(map[string][]string, len(seen))
	for k, values := range seen {
		list := make([]string, 0, len(values))
		for v := range values {
			list = append(list, v)
		}
		sort.Strings(list)
		labels[k] = list
	}
	return labels, nil
}
