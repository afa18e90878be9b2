package workload

import (
	"context"
	"log/slog"
	"time"

	"workloadgen/internal/metrics"
	"workloadgen/internal/platform/logger"
)

const DefaultReportInterval = 10 * time.Second

// SnapshotSource is anything that can produce a counter snapshot.
type SnapshotSource interface {
	Snapshot() Snapshot
}

// MetricsReporter periodically logs a worker's counters and publishes its rate.
type MetricsReporter struct {
	src      SnapshotSource
	interval time.Duration
	log      *slog.Logger
	// Emit receives every snapshot after it is logged. Optional.
	Emit func(Snapshot)
}

func NewMetricsReporter(src SnapshotSource, interval time.Duration) *MetricsReporter {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	return &MetricsReporter{src: src, interval: interval, log: logger.Slog()}
}

// Run reports every interval until ctx is done.
func (r *MetricsReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *MetricsReporter) report() {
	s := r.src.Snapshot()
	metrics.Rate.WithLabelValues(s.Target).Set(s.Rate)
	r.log.Info("progress",
		"target", s.Target,
		"inserted", s.Inserted,
		"updated", s.Updated,
		"deleted", s.Deleted,
		"failed", s.Failed,
		"skipped", s.Skipped,
		"tracked_keys", s.Tracked,
		"elapsed", s.Elapsed.Round(time.Second),
		"rate", s.Rate,
	)
	if r.Emit != nil {
		r.Emit(s)
	}
}
