package sqlite

import (
	"context"
	"fmt"

	"github.com/fidde/otelstore/pkg/models"
)

// effectiveTime is the log record's timeline position: the event time
// when set, the observed time otherwise.
const effectiveTime = "CASE WHEN l.time_unix_nano > 0 THEN l.time_unix_nano ELSE l.observed_time_unix_nano END"

// SearchLogs scans log records matching the query filters, newest
// first. All filters are conjunctive; zero values mean "no filter".
func (s *Store) SearchLogs(ctx context.Context, q models.LogQuery) ([]models.StoredLog, error) {
	where := []string{"1=1"}
	args := []any{}

	if q.StartTimeUnixNano != 0 {
		where = append(where, effectiveTime+" >= ?")
		args = append(args, q.StartTimeUnixNano)
	}
	if q.EndTimeUnixNano != 0 {
		where = append(where, effectiveTime+" < ?")
		args = append(args, q.EndTimeUnixNano)
	}
	if q.MinSeverity != 0 {
		where = append(where, "l.severity_number >= ?")
		args = append(args, q.MinSeverity)
	}
	if q.Service != "" {
		where = append(where, `json_extract(r.attributes, '$."service.name".v') = ?`)
		args = append(args, q.Service)
	}
	if q.TraceID != "" {
		where = append(where, "l.trace_id = ?")
		args = append(args, q.TraceID)
	}
	if q.BodyContains != "" {
		where = append(where, "instr(l.body, ?) > 0")
		args = append(args, q.BodyContains)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT l.time_unix_nano, l.observed_time_unix_nano,
		       l.severity_number, l.severity_text, l.body, l.body_type,
		       l.attributes, l.dropped_attributes_count, l.flags,
		       l.trace_id, l.span_id,
		       r.schema_url, r.attributes,
		       sc.name, sc.version, sc.schema_url, sc.attributes
		FROM log_records l
		JOIN resources r ON r.id = l.resource_id
		JOIN instrumentation_scopes sc ON sc.id = l.scope_id
		WHERE `+joinAnd(where)+`
		ORDER BY `+effectiveTime+` DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	var result []models.StoredLog
	for rows.Next() {
		var record models.LogRecord
		res := &models.Resource{}
		scope := &models.Scope{}
		var recordAttrs, resAttrs, scopeAttrs string

		if err := rows.Scan(&record.TimeUnixNano, &record.ObservedTimeUnixNano,
			&record.SeverityNumber, &record.SeverityText, &record.Body, &record.BodyType,
			&recordAttrs, &record.DroppedAttributesCount, &record.Flags,
			&record.TraceID, &record.SpanID,
			&res.SchemaURL, &resAttrs,
			&scope.Name, &scope.Version, &scope.SchemaURL, &scopeAttrs); err != nil {
			return nil, fmt.Errorf("scanning log record: %w", err)
		}

		if record.Attributes, err = models.DecodeAttributes(recordAttrs); err != nil {
			return nil, err
		}
		if res.Attributes, err = models.DecodeAttributes(resAttrs); err != nil {
			return nil, err
		}
		if scope.Attributes, err = models.DecodeAttributes(scopeAttrs); err != nil {
			return nil, err
		}

		result = append(result, models.StoredLog{Record: &record, Resource: res, Scope: scope})
	}
	return result, rows.Err()
}

// LogSeverityStats returns the daily severity histogram.
func (s *Store) LogSeverityStats(ctx context.Context) ([]models.SeverityStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, severity_number, severity_text, count
		FROM log_severity_stats
		ORDER BY day, severity_number
	`)
	if err != nil {
		return nil, fmt.Errorf("querying severity stats: %w", err)
	}
	defer rows.Close()

	var stats []models.SeverityStat
	for rows.Next() {
		var stat models.SeverityStat
		if err := rows.Scan(&stat.Day, &stat.SeverityNumber, &stat.SeverityText, &stat.Count); err != nil {
			return nil, fmt.Errorf("scanning severity stat: %w", err)
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}
