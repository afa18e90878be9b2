package workload

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPacedWorkers(t *testing.T, n int, b Backend, rps float64) []*Worker {
	t.Helper()
	workers := make([]*Worker, 0, n)
	for i := 0; i < n; i++ {
		w, err := NewWorker(WorkerConfig{
			Target:  Target{Namespace: "db", Name: string(rune('a' + i))},
			Backend: b,
			Source:  emptySource,
			Spec:    OperationSpec{OpInsert: 0.7, OpUpdate: 0.2, OpDelete: 0.1},
			RPS:     rps,
			Pacing:  "interval",
			Seed:    int64(i),
		})
		require.NoError(t, err)
		workers = append(workers, w)
	}
	return workers
}

func TestCoordinatorValidation(t *testing.T) {
	_, err := NewCoordinator(CoordinatorConfig{Mode: ModeBenchmark, Duration: time.Second}, nil)
	assert.Error(t, err)

	workers := newPacedWorkers(t, 1, &fakeBackend{}, 10)
	_, err = NewCoordinator(CoordinatorConfig{Mode: ModeBenchmark}, workers)
	assert.Error(t, err)
	_, err = NewCoordinator(CoordinatorConfig{Mode: "forever"}, workers)
	assert.Error(t, err)
}

func TestCoordinatorBenchmarkStopsAtDeadline(t *testing.T) {
	const (
		duration = 300 * time.Millisecond
		rps      = 50.0
	)
	b := &fakeBackend{}
	workers := newPacedWorkers(t, 4, b, rps)
	c, err := NewCoordinator(CoordinatorConfig{Mode: ModeBenchmark, Duration: duration, ReportInterval: time.Hour}, workers)
	require.NoError(t, err)

	start := time.Now()
	sum, err := c.Run(context.Background())
	elapsed := time.Since(start)
	require.NoError(t, err)

	interval := time.Duration(float64(time.Second) / rps)
	assert.GreaterOrEqual(t, elapsed, duration)
	assert.Less(t, elapsed, duration+interval+500*time.Millisecond)

	require.Len(t, sum.Workers, 4)
	for _, s := range sum.Workers {
		assert.False(t, s.Running, "worker %s still running", s.Target)
		assert.NotZero(t, s.Cycles)
	}
	assert.Equal(t, b.inserts.Load(), sum.Total.Inserted)
	assert.Equal(t, ModeBenchmark, sum.Mode)
}

func TestCoordinatorLongRunningStopsOnCancel(t *testing.T) {
	workers := newPacedWorkers(t, 3, &fakeBackend{}, 100)

	var mu sync.Mutex
	var reports []Snapshot
	c, err := NewCoordinator(CoordinatorConfig{
		Mode:           ModeLongRunning,
		ReportInterval: 20 * time.Millisecond,
		OnReport: func(s Snapshot) {
			mu.Lock()
			reports = append(reports, s)
			mu.Unlock()
		},
	}, workers)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	done := make(chan Summary, 1)
	go func() {
		sum, err := c.Run(ctx)
		assert.NoError(t, err)
		done <- sum
	}()

	select {
	case sum := <-done:
		assert.NotZero(t, sum.Total.Cycles)
		assert.False(t, sum.Total.Running)
	case <-time.After(3 * time.Second):
		t.Fatal("coordinator did not drain after cancellation")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, reports)
}

func TestTotals(t *testing.T) {
	total := Totals([]Snapshot{
		{Inserted: 3, Updated: 1, Failed: 1, Elapsed: time.Second, Rate: 4},
		{Inserted: 2, Deleted: 2, Skipped: 4, Elapsed: 2 * time.Second, Rate: 2},
	})
	assert.Equal(t, int64(5), total.Inserted)
	assert.Equal(t, int64(8), total.Succeeded())
	assert.Equal(t, 2*time.Second, total.Elapsed)
	assert.Equal(t, 6.0, total.Rate)
}

func TestSnapshotRate(t *testing.T) {
	start := time.Unix(1000, 0)
	st := newWorkerState("db.c", start)
	st.inserted.Add(8)
	st.updated.Add(2)
	s := st.Snapshot(start.Add(5 * time.Second))
	assert.Equal(t, 2.0, s.Rate)
	assert.Zero(t, st.Snapshot(start).Rate)
}

func TestReporterEmits(t *testing.T) {
	workers := newPacedWorkers(t, 1, &fakeBackend{}, 10)
	rep := NewMetricsReporter(workers[0], 10*time.Millisecond)
	got := make(chan Snapshot, 16)
	rep.Emit = func(s Snapshot) {
		select {
		case got <- s:
		default:
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- rep.Run(ctx) }()

	select {
	case s := <-got:
		assert.Equal(t, "db.a", s.Target)
	case <-time.After(2 * time.Second):
		t.Fatal("no report emitted")
	}
	cancel()
	assert.NoError(t, <-errc)
	assert.Equal(t, DefaultReportInterval, NewMetricsReporter(workers[0], 0).interval)
}

func TestParseTarget(t *testing.T) {
	assert.Equal(t, Target{Namespace: "db1", Name: "events.logs"}, ParseTarget("db1.events.logs"))
	assert.Equal(t, Target{Name: "orders_user"}, ParseTarget("orders_user"))
	assert.Equal(t, "db1.events.logs", ParseTarget("db1.events.logs").String())
}

func TestPacers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, IntervalPacer{Interval: time.Hour}.Wait(ctx), context.Canceled)

	start := time.Now()
	require.NoError(t, IntervalPacer{Interval: 20 * time.Millisecond}.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	assert.IsType(t, IntervalPacer{}, NewPacer("interval", 10))
	assert.IsType(t, &LimiterPacer{}, NewPacer("limiter", 10))
	p := NewLimiterPacer(1000)
	require.NoError(t, p.Wait(context.Background()))
}
