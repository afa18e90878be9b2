package workload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"workloadgen/internal/platform/logger"
	"workloadgen/pkg/pipeline"
)

const (
	ModeBenchmark   = "benchmark"
	ModeLongRunning = "long_running"
)

type CoordinatorConfig struct {
	Mode           string
	Duration       time.Duration
	ReportInterval time.Duration
	// OnReport receives every periodic snapshot. Optional.
	OnReport func(Snapshot)
}

// Summary is the outcome of a run.
type Summary struct {
	Mode    string        `json:"mode"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Workers []Snapshot    `json:"workers"`
	Total   Snapshot      `json:"total"`
}

// Coordinator runs one Worker and one MetricsReporter per target and stops
// them together.
type Coordinator struct {
	cfg     CoordinatorConfig
	workers []*Worker
}

func NewCoordinator(cfg CoordinatorConfig, workers []*Worker) (*Coordinator, error) {
	if len(workers) == 0 {
		return nil, errors.New("coordinator: no workers")
	}
	switch cfg.Mode {
	case ModeBenchmark:
		if cfg.Duration <= 0 {
			return nil, fmt.Errorf("coordinator: benchmark mode needs a positive duration, got %s", cfg.Duration)
		}
	case ModeLongRunning:
	default:
		return nil, fmt.Errorf("coordinator: unknown mode %q", cfg.Mode)
	}
	return &Coordinator{cfg: cfg, workers: workers}, nil
}

// Run starts every worker and blocks until the benchmark deadline passes or
// ctx is cancelled, then cancels all workers and waits for them to drain.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	runCtx := ctx
	if c.cfg.Mode == ModeBenchmark {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.Duration)
		defer cancel()
	}

	log := logger.Slog()
	start := time.Now()
	g := pipeline.NewGroup(runCtx)
	for _, w := range c.workers {
		g.Go(w.Run)
		rep := NewMetricsReporter(w, c.cfg.ReportInterval)
		rep.Emit = c.cfg.OnReport
		g.Go(rep.Run)
	}
	log.Info("workers started", "mode", c.cfg.Mode, "workers", len(c.workers), "duration", c.cfg.Duration)

	<-g.Context().Done()
	log.Info("stopping workers", "reason", context.Cause(g.Context()))
	err := g.StopAndWait()

	sum := Summary{Mode: c.cfg.Mode, Elapsed: time.Since(start), Workers: c.Snapshots()}
	sum.Total = Totals(sum.Workers)
	return sum, err
}

// Snapshots returns the current counters of every worker, in target order.
func (c *Coordinator) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(c.workers))
	for _, w := range c.workers {
		out = append(out, w.Snapshot())
	}
	return out
}
