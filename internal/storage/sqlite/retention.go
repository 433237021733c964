package sqlite

import (
	"context"
	"fmt"
)

// DeleteTracesBefore removes spans that ended before the cutoff. Owned
// events and links cascade with their span.
func (s *Store) DeleteTracesBefore(ctx context.Context, cutoffUnixNano int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM spans WHERE end_time_unix_nano < ?`, cutoffUnixNano)
	if err != nil {
		return 0, fmt.Errorf("deleting spans: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.logf("retention: deleted %d spans before %d", deleted, cutoffUnixNano)
	return deleted, nil
}

var pointTables = []string{
	"gauge_data_points",
	"sum_data_points",
	"histogram_data_points",
	"exponential_histogram_data_points",
	"summary_data_points",
}

// DeleteMetricPointsBefore removes data points older than the cutoff
// from every shape table. Metric catalogue rows stay until
// PurgeUnreferencedIdentities collects the empty ones.
func (s *Store) DeleteMetricPointsBefore(ctx context.Context, cutoffUnixNano int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var deleted int64
	for _, table := range pointTables {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE time_unix_nano < ?", cutoffUnixNano)
		if err != nil {
			return 0, fmt.Errorf("deleting from %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		deleted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	s.logf("retention: deleted %d metric data points before %d", deleted, cutoffUnixNano)
	return deleted, nil
}

// DeleteLogsBefore removes log records whose effective time (event
// time, observed time as fallback) is before the cutoff.
func (s *Store) DeleteLogsBefore(ctx context.Context, cutoffUnixNano int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM log_records
		WHERE (CASE WHEN time_unix_nano > 0 THEN time_unix_nano ELSE observed_time_unix_nano END) < ?
	`, cutoffUnixNano)
	if err != nil {
		return 0, fmt.Errorf("deleting log records: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.logf("retention: deleted %d log records before %d", deleted, cutoffUnixNano)
	return deleted, nil
}

// PurgeUnreferencedIdentities garbage-collects rows nothing points at
// anymore: metrics with no data points, exemplars no point references,
// and resource/scope rows no telemetry references. Runs after the
// retention deletes, which only remove telemetry rows.
func (s *Store) PurgeUnreferencedIdentities(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	statements := []string{
		`DELETE FROM metrics WHERE id NOT IN (
			SELECT metric_id FROM gauge_data_points
			UNION SELECT metric_id FROM sum_data_points
			UNION SELECT metric_id FROM histogram_data_points
			UNION SELECT metric_id FROM exponential_histogram_data_points
			UNION SELECT metric_id FROM summary_data_points
		)`,
		`DELETE FROM exemplars WHERE id NOT IN (
			SELECT exemplar_id FROM gauge_data_points WHERE exemplar_id IS NOT NULL
			UNION SELECT exemplar_id FROM sum_data_points WHERE exemplar_id IS NOT NULL
			UNION SELECT exemplar_id FROM histogram_data_points WHERE exemplar_id IS NOT NULL
			UNION SELECT exemplar_id FROM exponential_histogram_data_points WHERE exemplar_id IS NOT NULL
			UNION SELECT exemplar_id FROM summary_data_points WHERE exemplar_id IS NOT NULL
		)`,
		`DELETE FROM resources WHERE id NOT IN (
			SELECT resource_id FROM spans
			UNION SELECT resource_id FROM metrics
			UNION SELECT resource_id FROM log_records
		)`,
		`DELETE FROM instrumentation_scopes WHERE id NOT IN (
			SELECT scope_id FROM spans
			UNION SELECT scope_id FROM metrics
			UNION SELECT scope_id FROM log_records
		)`,
	}

	var purged int64
	for _, stmt := range statements {
		res, err := tx.ExecContext(ctx, stmt)
		if err != nil {
			return 0, fmt.Errorf("purging identities: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		purged += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	s.logf("retention: purged %d unreferenced rows", purged)
	return purged, nil
}
