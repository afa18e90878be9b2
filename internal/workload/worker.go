package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"workloadgen/internal/metrics"
	"workloadgen/internal/platform/logger"
	"workloadgen/internal/telemetry"
)

const defaultOpTimeout = 5 * time.Second

var updateStatuses = []string{"active", "inactive", "pending", "archived"}

// WorkerConfig describes one Worker. Pacer overrides the strategy derived from
// Pacing and RPS when set.
type WorkerConfig struct {
	Target         Target
	Backend        Backend
	Source         RecordSource
	Spec           OperationSpec
	RPS            float64
	RecordSize     int
	WindowCapacity int
	SkewExponent   float64
	Pacing         string
	Pacer          Pacer
	Seed           int64
	OpTimeout      time.Duration
	Now            func() time.Time
}

// Worker drives one target: select an operation, run it, pace, repeat.
type Worker struct {
	target    Target
	name      string
	backend   Backend
	source    RecordSource
	selector  *OperationSelector
	window    *RecentKeyWindow
	pacer     Pacer
	rng       *rand.Rand
	size      int
	opTimeout time.Duration
	trackKeys bool
	now       func() time.Time
	state     *WorkerState
	tracer    trace.Tracer
	log       *slog.Logger
}

// NewWorker validates cfg and returns a Worker ready to Run.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Backend == nil {
		return nil, errors.New("worker: backend is required")
	}
	if cfg.Source == nil {
		return nil, errors.New("worker: record source is required")
	}
	if !(cfg.RPS > 0) {
		return nil, fmt.Errorf("worker: rate must be positive, got %v", cfg.RPS)
	}
	for op := range cfg.Spec {
		switch op {
		case OpInsert, OpUpdate, OpDelete:
		default:
			return nil, fmt.Errorf("%w: unknown operation %q", ErrInvalidSpec, op)
		}
	}
	sel, err := NewOperationSelector(cfg.Spec)
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	pacer := cfg.Pacer
	if pacer == nil {
		pacer = NewPacer(cfg.Pacing, cfg.RPS)
	}
	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	name := cfg.Target.String()
	return &Worker{
		target:    cfg.Target,
		name:      name,
		backend:   cfg.Backend,
		source:    cfg.Source,
		selector:  sel,
		window:    NewRecentKeyWindow(cfg.WindowCapacity, cfg.SkewExponent, rng),
		pacer:     pacer,
		rng:       rng,
		size:      cfg.RecordSize,
		opTimeout: opTimeout,
		trackKeys: cfg.Spec.Has(OpUpdate) || cfg.Spec.Has(OpDelete),
		now:       now,
		state:     newWorkerState(name, now()),
		tracer:    telemetry.Tracer("workload"),
		log:       logger.Slog().With("target", name),
	}, nil
}

func (w *Worker) Target() Target { return w.target }

// Snapshot returns the current counters. Safe for concurrent use.
func (w *Worker) Snapshot() Snapshot { return w.state.Snapshot(w.now()) }

// Run loops until ctx is done. A cycle that has started always finishes;
// cancellation is checked before each cycle and while pacing.
func (w *Worker) Run(ctx context.Context) error {
	w.state.running.Store(true)
	metrics.WorkersActive.Inc()
	defer func() {
		w.state.running.Store(false)
		metrics.WorkersActive.Dec()
		w.logFinal()
	}()

	w.log.Info("worker started", "operations", w.selector.Operations(), "rate", w.pacerRate())
	for ctx.Err() == nil {
		w.Step(ctx)
		if err := w.pacer.Wait(ctx); err != nil {
			break
		}
	}
	return nil
}

func (w *Worker) pacerRate() string {
	switch p := w.pacer.(type) {
	case IntervalPacer:
		return p.Interval.String() + " interval"
	case *LimiterPacer:
		return fmt.Sprintf("%.2f/s limiter", float64(p.limiter.Limit()))
	default:
		return "custom"
	}
}

// Step runs a single cycle and returns the operation it selected.
func (w *Worker) Step(ctx context.Context) string {
	op := w.selector.Select(w.rng)
	switch op {
	case OpInsert:
		w.insert(ctx)
	case OpUpdate:
		w.update(ctx)
	case OpDelete:
		w.delete(ctx)
	}
	w.state.cycles.Add(1)
	return op
}

func (w *Worker) insert(ctx context.Context) {
	rec := w.source.Generate(w.size)
	var id ID
	err := w.call(ctx, OpInsert, func(ctx context.Context) error {
		var err error
		id, err = w.backend.Insert(ctx, w.target, rec)
		return err
	})
	if err != nil {
		return
	}
	if w.trackKeys {
		w.window.Append(id)
		w.setTracked()
	}
	w.state.inserted.Add(1)
}

func (w *Worker) update(ctx context.Context) {
	id, ok := w.window.SampleRecencySkewed()
	if !ok {
		w.skip(OpUpdate)
		return
	}
	patch := Patch{
		"status":     updateStatuses[w.rng.Intn(len(updateStatuses))],
		"updated_at": w.now().UTC(),
		"revision":   w.rng.Intn(1_000_000),
	}
	var modified int64
	err := w.call(ctx, OpUpdate, func(ctx context.Context) error {
		var err error
		modified, err = w.backend.UpdateByID(ctx, w.target, id, patch)
		return err
	})
	if err != nil {
		return
	}
	w.state.updated.Add(modified)
	metrics.RecordAffected(w.name, OpUpdate, modified)
}

func (w *Worker) delete(ctx context.Context) {
	id, ok := w.window.PopOldest()
	if !ok {
		w.skip(OpDelete)
		return
	}
	w.setTracked()
	var deleted int64
	err := w.call(ctx, OpDelete, func(ctx context.Context) error {
		var err error
		deleted, err = w.backend.DeleteByID(ctx, w.target, id)
		return err
	})
	if err != nil {
		return
	}
	w.state.deleted.Add(deleted)
	metrics.RecordAffected(w.name, OpDelete, deleted)
}

// call runs fn with a per-call timeout detached from ctx cancellation, so an
// in-flight backend call is allowed to finish when the run stops.
func (w *Worker) call(ctx context.Context, op string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opTimeout)
	defer cancel()
	callCtx, span := w.tracer.Start(callCtx, "workload."+op, trace.WithAttributes(attribute.String("target", w.name)))
	defer span.End()

	start := time.Now()
	err := fn(callCtx)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.state.failed.Add(1)
		metrics.RecordOperation(w.name, op, metrics.StatusError, elapsed)
		w.log.Warn("backend operation failed", "op", op, "err", err)
		return err
	}
	metrics.RecordOperation(w.name, op, metrics.StatusOK, elapsed)
	return nil
}

func (w *Worker) skip(op string) {
	w.state.skipped.Add(1)
	metrics.RecordOperation(w.name, op, metrics.StatusSkipped, 0)
	w.log.Debug("no tracked keys, skipping", "op", op)
}

func (w *Worker) setTracked() {
	n := int64(w.window.Len())
	w.state.tracked.Store(n)
	metrics.TrackedKeys.WithLabelValues(w.name).Set(float64(n))
}

func (w *Worker) logFinal() {
	s := w.Snapshot()
	w.log.Info("worker stopped",
		"inserted", s.Inserted,
		"updated", s.Updated,
		"deleted", s.Deleted,
		"failed", s.Failed,
		"skipped", s.Skipped,
		"cycles", s.Cycles,
		"elapsed", s.Elapsed,
		"rate", s.Rate,
	)
}
