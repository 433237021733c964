package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fidde/otelstore/pkg/models"
)

// spanKindFromName is the inverse of SpanKind.String for rows read back.
func spanKindFromName(name string) models.SpanKind {
	switch name {
	case "INTERNAL":
		return models.SpanKindInternal
	case "SERVER":
		return models.SpanKindServer
	case "CLIENT":
		return models.SpanKindClient
	case "PRODUCER":
		return models.SpanKindProducer
	case "CONSUMER":
		return models.SpanKindConsumer
	default:
		return models.SpanKindUnspecified
	}
}

func statusCodeFromName(name string) models.StatusCode {
	switch name {
	case "OK":
		return models.StatusOK
	case "ERROR":
		return models.StatusError
	default:
		return models.StatusUnset
	}
}

// windowClause appends span-overlap window predicates: a span is in
// the window when it starts before the window closes and ends at or
// after it opens.
func windowClause(window models.TimeWindow, startCol, endCol string, where []string, args []any) ([]string, []any) {
	if window.EndUnixNano != 0 {
		where = append(where, startCol+" < ?")
		args = append(args, window.EndUnixNano)
	}
	if window.StartUnixNano != 0 {
		where = append(where, endCol+" >= ?")
		args = append(args, window.StartUnixNano)
	}
	return where, args
}

// GetTrace returns all spans of a trace ordered by start time, with
// their events, links and resolved resource/scope. Reconstruction is a
// filtered scan: parent/child topology is the caller's to derive from
// ParentSpanID.
func (s *Store) GetTrace(ctx context.Context, traceID string, window models.TimeWindow) ([]models.StoredSpan, error) {
	where := []string{"s.trace_id = ?"}
	args := []any{traceID}
	where, args = windowClause(window, "s.start_time_unix_nano", "s.end_time_unix_nano", where, args)

	query := `
		SELECT s.id, s.trace_id, s.span_id, s.parent_span_id, s.name, s.kind,
		       s.trace_state, s.start_time_unix_nano, s.end_time_unix_nano,
		       s.status_code, s.status_message, s.attributes,
		       s.dropped_attributes_count, s.dropped_events_count, s.dropped_links_count,
		       r.schema_url, r.attributes,
		       sc.name, sc.version, sc.schema_url, sc.attributes
		FROM spans s
		JOIN resources r ON r.id = s.resource_id
		JOIN instrumentation_scopes sc ON sc.id = s.scope_id
		WHERE ` + joinAnd(where) + `
		ORDER BY s.start_time_unix_nano`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying trace %s: %w", traceID, err)
	}
	defer rows.Close()

	var result []models.StoredSpan
	var rowIDs []int64

	for rows.Next() {
		var rowID int64
		var span models.Span
		var kind, status, spanAttrs string
		res := &models.Resource{}
		scope := &models.Scope{}
		var resAttrs, scopeAttrs string

		if err := rows.Scan(&rowID, &span.TraceID, &span.SpanID, &span.ParentSpanID,
			&span.Name, &kind, &span.TraceState,
			&span.StartTimeUnixNano, &span.EndTimeUnixNano,
			&status, &span.StatusMessage, &spanAttrs,
			&span.DroppedAttributesCount, &span.DroppedEventsCount, &span.DroppedLinksCount,
			&res.SchemaURL, &resAttrs,
			&scope.Name, &scope.Version, &scope.SchemaURL, &scopeAttrs); err != nil {
			return nil, fmt.Errorf("scanning span: %w", err)
		}

		span.Kind = spanKindFromName(kind)
		span.StatusCode = statusCodeFromName(status)
		if span.Attributes, err = models.DecodeAttributes(spanAttrs); err != nil {
			return nil, err
		}
		if res.Attributes, err = models.DecodeAttributes(resAttrs); err != nil {
			return nil, err
		}
		if scope.Attributes, err = models.DecodeAttributes(scopeAttrs); err != nil {
			return nil, err
		}

		result = append(result, models.StoredSpan{Span: &span, Resource: res, Scope: scope})
		rowIDs = append(rowIDs, rowID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, rowID := range rowIDs {
		span := result[i].Span
		if span.Events, err = s.spanEvents(ctx, rowID); err != nil {
			return nil, err
		}
		if span.Links, err = s.spanLinks(ctx, rowID); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (s *Store) spanEvents(ctx context.Context, spanRowID int64) ([]models.SpanEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, time_unix_nano, attributes, dropped_attributes_count
		FROM span_events WHERE span_id = ? ORDER BY id
	`, spanRowID)
	if err != nil {
		return nil, fmt.Errorf("querying span events: %w", err)
	}
	defer rows.Close()

	var events []models.SpanEvent
	for rows.Next() {
		var event models.SpanEvent
		var attrs string
		if err := rows.Scan(&event.Name, &event.TimeUnixNano, &attrs, &event.DroppedAttributesCount); err != nil {
			return nil, fmt.Errorf("scanning span event: %w", err)
		}
		if event.Attributes, err = models.DecodeAttributes(attrs); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *Store) spanLinks(ctx context.Context, spanRowID int64) ([]models.SpanLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT linked_trace_id, linked_span_id, trace_state, attributes, dropped_attributes_count
		FROM span_links WHERE span_id = ? ORDER BY id
	`, spanRowID)
	if err != nil {
		return nil, fmt.Errorf("querying span links: %w", err)
	}
	defer rows.Close()

	var links []models.SpanLink
	for rows.Next() {
		var link models.SpanLink
		var attrs string
		if err := rows.Scan(&link.TraceID, &link.SpanID, &link.TraceState, &attrs, &link.DroppedAttributesCount); err != nil {
			return nil, fmt.Errorf("scanning span link: %w", err)
		}
		if link.Attributes, err = models.DecodeAttributes(attrs); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// FindTraces scans the window grouped by trace id, newest first.
func (s *Store) FindTraces(ctx context.Context, window models.TimeWindow, limit int) ([]models.TraceSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	where := []string{"1=1"}
	args := []any{}
	where, args = windowClause(window, "start_time_unix_nano", "end_time_unix_nano", where, args)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id,
		       COUNT(*),
		       MIN(start_time_unix_nano),
		       MAX(end_time_unix_nano),
		       MAX(end_time_unix_nano) - MIN(start_time_unix_nano),
		       MAX(CASE WHEN status_code = 'ERROR' THEN 1 ELSE 0 END)
		FROM spans
		WHERE `+joinAnd(where)+`
		GROUP BY trace_id
		ORDER BY MIN(start_time_unix_nano) DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying traces: %w", err)
	}
	defer rows.Close()

	var summaries []models.TraceSummary
	for rows.Next() {
		var sum models.TraceSummary
		var hasError int
		if err := rows.Scan(&sum.TraceID, &sum.SpanCount, &sum.StartTimeUnixNano,
			&sum.EndTimeUnixNano, &sum.DurationNano, &hasError); err != nil {
			return nil, fmt.Errorf("scanning trace summary: %w", err)
		}
		sum.HasError = hasError != 0
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// ServiceMap aggregates cross-service parent/child calls. Pairs where
// either side lacks a service.name attribute are excluded; same-service
// pairs are excluded.
func (s *Store) ServiceMap(ctx context.Context, window models.TimeWindow) ([]models.ServiceDependency, error) {
	where := []string{
		`json_extract(pr.attributes, '$."service.name".v') IS NOT NULL`,
		`json_extract(cr.attributes, '$."service.name".v') IS NOT NULL`,
		`json_extract(pr.attributes, '$."service.name".v') <> json_extract(cr.attributes, '$."service.name".v')`,
	}
	args := []any{}
	where, args = windowClause(window, "c.start_time_unix_nano", "c.end_time_unix_nano", where, args)

	rows, err := s.db.QueryContext(ctx, `
		SELECT json_extract(pr.attributes, '$."service.name".v'),
		       json_extract(cr.attributes, '$."service.name".v'),
		       c.kind,
		       COUNT(*),
		       MIN(c.end_time_unix_nano - c.start_time_unix_nano) / 1000000.0,
		       AVG(c.end_time_unix_nano - c.start_time_unix_nano) / 1000000.0,
		       MAX(c.end_time_unix_nano - c.start_time_unix_nano) / 1000000.0,
		       SUM(CASE WHEN c.status_code = 'ERROR' THEN 1 ELSE 0 END)
		FROM spans c
		JOIN spans p      ON p.trace_id = c.trace_id AND p.span_id = c.parent_span_id
		JOIN resources cr ON cr.id = c.resource_id
		JOIN resources pr ON pr.id = p.resource_id
		WHERE `+joinAnd(where)+`
		GROUP BY 1, 2, 3
		ORDER BY 4 DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying service map: %w", err)
	}
	defer rows.Close()

	var deps []models.ServiceDependency
	for rows.Next() {
		var dep models.ServiceDependency
		if err := rows.Scan(&dep.ParentService, &dep.ChildService, &dep.SpanKind,
			&dep.CallCount, &dep.MinDurationMs, &dep.AvgDurationMs, &dep.MaxDurationMs,
			&dep.ErrorCount); err != nil {
			return nil, fmt.Errorf("scanning service dependency: %w", err)
		}
		if dep.CallCount > 0 {
			dep.ErrorRate = float64(dep.ErrorCount) / float64(dep.CallCount) * 100
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

// ListServices returns the distinct service names over all resources.
func (s *Store) ListServices(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT json_extract(attributes, '$."service.name".v')
		FROM resources
		WHERE json_extract(attributes, '$."service.name".v') IS NOT NULL
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("querying services: %w", err)
	}
	defer rows.Close()

	var services []string
	for rows.Next() {
		var name sql.NullString
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning service: %w", err)
		}
		if name.Valid {
			services = append(services, name.String)
		}
	}
	return services, rows.Err()
}

// joinAnd joins WHERE predicates.
func joinAnd(preds []string) string {
	out := preds[0]
	for _, p := range preds[1:] {
		out += " AND " + p
	}
	return out
}
