// Package retention runs the periodic age-based cleanup against the
// telemetry store.
package retention

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fidde/otelstore/internal/config"
	"github.com/fidde/otelstore/internal/storage"
)

// SweepResult reports one sweep's deletions.
type SweepResult struct {
	SpansDeleted      int64 `json:"spans_deleted"`
	DataPointsDeleted int64 `json:"data_points_deleted"`
	LogsDeleted       int64 `json:"logs_deleted"`
	IdentitiesPurged  int64 `json:"identities_purged"`
}

// Sweeper deletes telemetry older than the configured max ages and
// garbage-collects identity rows nothing references anymore.
type Sweeper struct {
	store storage.Storage
	cfg   config.RetentionConfig

	// now is replaceable in tests.
	now func() time.Time
}

// NewSweeper creates a sweeper for the given store and policy.
func NewSweeper(store storage.Storage, cfg config.RetentionConfig) *Sweeper {
	return &Sweeper{store: store, cfg: cfg, now: time.Now}
}

// Run sweeps on the configured interval until the context is done.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("retention sweeper running every %s", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				log.Printf("retention sweep failed: %v", err)
			}
		}
	}
}

// SweepOnce runs one full sweep. A zero max-age leaves that signal
// untouched.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now()

	if s.cfg.TraceMaxAge > 0 {
		cutoff := now.Add(-s.cfg.TraceMaxAge).UnixNano()
		n, err := s.store.DeleteTracesBefore(ctx, cutoff)
		if err != nil {
			return result, fmt.Errorf("sweeping traces: %w", err)
		}
		result.SpansDeleted = n
	}

	if s.cfg.MetricMaxAge > 0 {
		cutoff := now.Add(-s.cfg.MetricMaxAge).UnixNano()
		n, err := s.store.DeleteMetricPointsBefore(ctx, cutoff)
		if err != nil {
			return result, fmt.Errorf("sweeping metric points: %w", err)
		}
		result.DataPointsDeleted = n
	}

	if s.cfg.LogMaxAge > 0 {
		cutoff := now.Add(-s.cfg.LogMaxAge).UnixNano()
		n, err := s.store.DeleteLogsBefore(ctx, cutoff)
		if err != nil {
			return result, fmt.Errorf("sweeping logs: %w", err)
		}
		result.LogsDeleted = n
	}

	purged, err := s.store.PurgeUnreferencedIdentities(ctx)
	if err != nil {
		return result, fmt.Errorf("purging identities: %w", err)
	}
	result.IdentitiesPurged = purged

	return result, nil
}
