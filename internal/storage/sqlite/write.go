package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fidde/otelstore/pkg/models"
)

// WriteTraces persists span units in one transaction. Spans already
// present (same trace id and span id) are skipped and not counted.
func (s *Store) WriteTraces(ctx context.Context, units []models.SpanUnit) (int, error) {
	if len(units) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	cache := newIdentityCache()
	persisted := 0

	for _, unit := range units {
		resourceID, err := s.resolveResource(ctx, tx, cache, unit.Resource)
		if err != nil {
			return 0, err
		}
		scopeID, err := s.resolveScope(ctx, tx, cache, unit.Scope)
		if err != nil {
			return 0, err
		}

		n, err := s.insertSpan(ctx, tx, resourceID, scopeID, unit.Span)
		if err != nil {
			return 0, err
		}
		persisted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	s.logf("persisted %d/%d spans", persisted, len(units))
	return persisted, nil
}

// insertSpan writes one span and its owned events and links. The
// children reference the span's assigned row id, so they always commit
// together with their parent.
func (s *Store) insertSpan(ctx context.Context, tx *sql.Tx, resourceID, scopeID int64, span *models.Span) (int, error) {
	attrs, err := models.EncodeAttributes(span.Attributes)
	if err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO spans (
			trace_id, span_id, parent_span_id, resource_id, scope_id,
			name, kind, trace_state, start_time_unix_nano, end_time_unix_nano,
			status_code, status_message, attributes,
			dropped_attributes_count, dropped_events_count, dropped_links_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trace_id, span_id) DO NOTHING
	`, span.TraceID, span.SpanID, span.ParentSpanID, resourceID, scopeID,
		span.Name, span.Kind.String(), span.TraceState,
		span.StartTimeUnixNano, span.EndTimeUnixNano,
		span.StatusCode.String(), span.StatusMessage, attrs,
		span.DroppedAttributesCount, span.DroppedEventsCount, span.DroppedLinksCount)
	if err != nil {
		return 0, fmt.Errorf("inserting span %s: %w", span.SpanID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		s.logf("span %s/%s already stored, skipping", span.TraceID, span.SpanID)
		return 0, nil
	}

	spanRowID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, event := range span.Events {
		eventAttrs, err := models.EncodeAttributes(event.Attributes)
		if err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO span_events (span_id, name, time_unix_nano, attributes, dropped_attributes_count)
			VALUES (?, ?, ?, ?, ?)
		`, spanRowID, event.Name, event.TimeUnixNano, eventAttrs, event.DroppedAttributesCount)
		if err != nil {
			return 0, fmt.Errorf("inserting span event: %w", err)
		}
	}

	for _, link := range span.Links {
		linkAttrs, err := models.EncodeAttributes(link.Attributes)
		if err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO span_links (span_id, linked_trace_id, linked_span_id, trace_state, attributes, dropped_attributes_count)
			VALUES (?, ?, ?, ?, ?, ?)
		`, spanRowID, link.TraceID, link.SpanID, link.TraceState, linkAttrs, link.DroppedAttributesCount)
		if err != nil {
			return 0, fmt.Errorf("inserting span link: %w", err)
		}
	}

	return 1, nil
}

// WriteMetrics persists metric units in one transaction. The unit of
// accounting is the data point. Points arriving for an existing metric
// of a different shape are skipped: a metric's shape is fixed at
// creation.
func (s *Store) WriteMetrics(ctx context.Context, units []models.MetricUnit) (int, error) {
	if len(units) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	cache := newIdentityCache()
	persisted := 0

	for _, unit := range units {
		if unit.Metric == nil || unit.Metric.Data == nil {
			continue
		}

		resourceID, err := s.resolveResource(ctx, tx, cache, unit.Resource)
		if err != nil {
			return 0, err
		}
		scopeID, err := s.resolveScope(ctx, tx, cache, unit.Scope)
		if err != nil {
			return 0, err
		}

		metricID, ok, err := s.resolveMetric(ctx, tx, resourceID, scopeID, unit.Metric)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}

		n, err := s.insertDataPoints(ctx, tx, metricID, unit.Metric.Data)
		if err != nil {
			return 0, err
		}
		persisted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	s.logf("persisted %d metric data points", persisted)
	return persisted, nil
}

// resolveMetric gets or creates the metric row for (resource, scope,
// name). It returns ok=false on a shape conflict with an existing row.
func (s *Store) resolveMetric(ctx context.Context, tx *sql.Tx, resourceID, scopeID int64, metric *models.Metric) (int64, bool, error) {
	incomingType := string(metric.Data.Type())

	var id int64
	var storedType string
	err := tx.QueryRowContext(ctx, `
		SELECT id, type FROM metrics WHERE resource_id = ? AND scope_id = ? AND name = ?
	`, resourceID, scopeID, metric.Name).Scan(&id, &storedType)

	switch {
	case err == nil:
		if storedType != incomingType {
			s.logf("metric %s is %s, dropping %s points", metric.Name, storedType, incomingType)
			return 0, false, nil
		}
		return id, true, nil

	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx, `
			INSERT INTO metrics (resource_id, scope_id, name, description, unit, type)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(resource_id, scope_id, name) DO NOTHING
		`, resourceID, scopeID, metric.Name, metric.Description, metric.Unit, incomingType)
		if err != nil {
			return 0, false, fmt.Errorf("inserting metric %s: %w", metric.Name, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			id, err := res.LastInsertId()
			if err != nil {
				return 0, false, err
			}
			return id, true, nil
		}
		// Lost a creation race within another transaction: re-read and
		// re-check the shape.
		if err := tx.QueryRowContext(ctx, `
			SELECT id, type FROM metrics WHERE resource_id = ? AND scope_id = ? AND name = ?
		`, resourceID, scopeID, metric.Name).Scan(&id, &storedType); err != nil {
			return 0, false, fmt.Errorf("re-reading metric %s: %w", metric.Name, err)
		}
		if storedType != incomingType {
			return 0, false, nil
		}
		return id, true, nil

	default:
		return 0, false, fmt.Errorf("looking up metric %s: %w", metric.Name, err)
	}
}

// insertDataPoints dispatches on the metric shape and writes into the
// matching data point table.
func (s *Store) insertDataPoints(ctx context.Context, tx *sql.Tx, metricID int64, data models.MetricData) (int, error) {
	switch d := data.(type) {
	case models.Gauge:
		return s.insertNumberPoints(ctx, tx, metricID, "gauge_data_points", d.Points, "", false)
	case models.Sum:
		return s.insertNumberPoints(ctx, tx, metricID, "sum_data_points", d.Points, string(d.Temporality), d.IsMonotonic)
	case models.Histogram:
		return s.insertHistogramPoints(ctx, tx, metricID, d)
	case models.ExponentialHistogram:
		return s.insertExpHistogramPoints(ctx, tx, metricID, d)
	case models.Summary:
		return s.insertSummaryPoints(ctx, tx, metricID, d)
	default:
		return 0, fmt.Errorf("unknown metric data shape %T", data)
	}
}

// insertExemplar writes a shared exemplar row, returning its id or nil
// when the point carries no exemplar.
func (s *Store) insertExemplar(ctx context.Context, tx *sql.Tx, ex *models.Exemplar) (any, error) {
	if ex == nil {
		return nil, nil
	}
	attrs, err := models.EncodeAttributes(ex.FilteredAttributes)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO exemplars (time_unix_nano, value_double, value_int, filtered_attributes, trace_id, span_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ex.TimeUnixNano, ex.ValueDouble, ex.ValueInt, attrs, ex.TraceID, ex.SpanID)
	if err != nil {
		return nil, fmt.Errorf("inserting exemplar: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) insertNumberPoints(ctx context.Context, tx *sql.Tx, metricID int64, table string, points []models.NumberDataPoint, temporality string, monotonic bool) (int, error) {
	persisted := 0
	for _, p := range points {
		attrs, err := models.EncodeAttributes(p.Attributes)
		if err != nil {
			return 0, err
		}
		exemplarID, err := s.insertExemplar(ctx, tx, p.Exemplar)
		if err != nil {
			return 0, err
		}

		if table == "sum_data_points" {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO sum_data_points (
					metric_id, start_time_unix_nano, time_unix_nano, flags, attributes,
					value_double, value_int, temporality, is_monotonic, exemplar_id
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, metricID, p.StartTimeUnixNano, p.TimeUnixNano, p.Flags, attrs,
				p.ValueDouble, p.ValueInt, temporality, monotonic, exemplarID)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO gauge_data_points (
					metric_id, start_time_unix_nano, time_unix_nano, flags, attributes,
					value_double, value_int, exemplar_id
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, metricID, p.StartTimeUnixNano, p.TimeUnixNano, p.Flags, attrs,
				p.ValueDouble, p.ValueInt, exemplarID)
		}
		if err != nil {
			return 0, fmt.Errorf("inserting %s point: %w", table, err)
		}
		persisted++
	}
	return persisted, nil
}

func (s *Store) insertHistogramPoints(ctx context.Context, tx *sql.Tx, metricID int64, h models.Histogram) (int, error) {
	persisted := 0
	for _, p := range h.Points {
		attrs, err := models.EncodeAttributes(p.Attributes)
		if err != nil {
			return 0, err
		}
		bounds, err := encodeJSON(p.ExplicitBounds)
		if err != nil {
			return 0, err
		}
		counts, err := encodeJSON(p.BucketCounts)
		if err != nil {
			return 0, err
		}
		exemplarID, err := s.insertExemplar(ctx, tx, p.Exemplar)
		if err != nil {
			return 0, err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO histogram_data_points (
				metric_id, start_time_unix_nano, time_unix_nano, flags, attributes,
				count, sum, min, max, explicit_bounds, bucket_counts, temporality, exemplar_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, metricID, p.StartTimeUnixNano, p.TimeUnixNano, p.Flags, attrs,
			p.Count, p.Sum, p.Min, p.Max, bounds, counts, string(h.Temporality), exemplarID)
		if err != nil {
			return 0, fmt.Errorf("inserting histogram point: %w", err)
		}
		persisted++
	}
	return persisted, nil
}

func (s *Store) insertExpHistogramPoints(ctx context.Context, tx *sql.Tx, metricID int64, h models.ExponentialHistogram) (int, error) {
	persisted := 0
	for _, p := range h.Points {
		attrs, err := models.EncodeAttributes(p.Attributes)
		if err != nil {
			return 0, err
		}
		posCounts, err := encodeJSON(p.Positive.Counts)
		if err != nil {
			return 0, err
		}
		negCounts, err := encodeJSON(p.Negative.Counts)
		if err != nil {
			return 0, err
		}
		exemplarID, err := s.insertExemplar(ctx, tx, p.Exemplar)
		if err != nil {
			return 0, err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO exponential_histogram_data_points (
				metric_id, start_time_unix_nano, time_unix_nano, flags, attributes,
				count, sum, min, max, scale, zero_count,
				positive_offset, positive_bucket_counts,
				negative_offset, negative_bucket_counts,
				temporality, exemplar_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, metricID, p.StartTimeUnixNano, p.TimeUnixNano, p.Flags, attrs,
			p.Count, p.Sum, p.Min, p.Max, p.Scale, p.ZeroCount,
			p.Positive.Offset, posCounts, p.Negative.Offset, negCounts,
			string(h.Temporality), exemplarID)
		if err != nil {
			return 0, fmt.Errorf("inserting exponential histogram point: %w", err)
		}
		persisted++
	}
	return persisted, nil
}

func (s *Store) insertSummaryPoints(ctx context.Context, tx *sql.Tx, metricID int64, sum models.Summary) (int, error) {
	persisted := 0
	for _, p := range sum.Points {
		attrs, err := models.EncodeAttributes(p.Attributes)
		if err != nil {
			return 0, err
		}
		quantiles, err := encodeJSON(p.Quantiles)
		if err != nil {
			return 0, err
		}
		exemplarID, err := s.insertExemplar(ctx, tx, p.Exemplar)
		if err != nil {
			return 0, err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO summary_data_points (
				metric_id, start_time_unix_nano, time_unix_nano, flags, attributes,
				count, sum, quantile_values, exemplar_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, metricID, p.StartTimeUnixNano, p.TimeUnixNano, p.Flags, attrs,
			p.Count, p.Sum, quantiles, exemplarID)
		if err != nil {
			return 0, fmt.Errorf("inserting summary point: %w", err)
		}
		persisted++
	}
	return persisted, nil
}

// WriteLogs persists log records in one transaction.
func (s *Store) WriteLogs(ctx context.Context, units []models.LogUnit) (int, error) {
	if len(units) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	cache := newIdentityCache()
	persisted := 0

	for _, unit := range units {
		resourceID, err := s.resolveResource(ctx, tx, cache, unit.Resource)
		if err != nil {
			return 0, err
		}
		scopeID, err := s.resolveScope(ctx, tx, cache, unit.Scope)
		if err != nil {
			return 0, err
		}

		record := unit.Record
		attrs, err := models.EncodeAttributes(record.Attributes)
		if err != nil {
			return 0, err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO log_records (
				resource_id, scope_id, time_unix_nano, observed_time_unix_nano,
				severity_number, severity_text, body, body_type, attributes,
				dropped_attributes_count, flags, trace_id, span_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, resourceID, scopeID, record.TimeUnixNano, record.ObservedTimeUnixNano,
			record.SeverityNumber, record.SeverityText, record.Body, record.BodyType,
			attrs, record.DroppedAttributesCount, record.Flags, record.TraceID, record.SpanID)
		if err != nil {
			return 0, fmt.Errorf("inserting log record: %w", err)
		}
		persisted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	s.logf("persisted %d log records", persisted)
	return persisted, nil
}
