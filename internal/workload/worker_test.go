package workload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend acknowledges every call with one affected record. Every
// failEvery-th call fails when failEvery > 0.
type fakeBackend struct {
	calls     atomic.Int64
	inserts   atomic.Int64
	updates   atomic.Int64
	deletes   atomic.Int64
	failEvery int64

	mu      sync.Mutex
	deleted []ID
}

var errFake = errors.New("fake backend failure")

func (b *fakeBackend) fail() bool {
	n := b.calls.Add(1)
	return b.failEvery > 0 && n%b.failEvery == 0
}

func (b *fakeBackend) Insert(_ context.Context, _ Target, _ Record) (ID, error) {
	if b.fail() {
		return "", errFake
	}
	return fmt.Sprintf("id-%d", b.inserts.Add(1)), nil
}

func (b *fakeBackend) UpdateByID(_ context.Context, _ Target, _ ID, _ Patch) (int64, error) {
	if b.fail() {
		return 0, errFake
	}
	b.updates.Add(1)
	return 1, nil
}

func (b *fakeBackend) DeleteByID(_ context.Context, _ Target, id ID) (int64, error) {
	if b.fail() {
		return 0, errFake
	}
	b.deletes.Add(1)
	b.mu.Lock()
	b.deleted = append(b.deleted, id)
	b.mu.Unlock()
	return 1, nil
}

var emptySource = RecordSourceFunc(func(int) Record { return Record{Fields: map[string]any{}} })

// countingPacer never sleeps and runs hook before returning.
type countingPacer struct {
	waits atomic.Int64
	hook  func(n int64)
}

func (p *countingPacer) Wait(ctx context.Context) error {
	n := p.waits.Add(1)
	if p.hook != nil {
		p.hook(n)
	}
	return ctx.Err()
}

func newTestWorker(t *testing.T, b Backend, spec OperationSpec, pacer Pacer) *Worker {
	t.Helper()
	w, err := NewWorker(WorkerConfig{
		Target:         Target{Namespace: "db1", Name: "c1"},
		Backend:        b,
		Source:         emptySource,
		Spec:           spec,
		RPS:            1000,
		RecordSize:     64,
		WindowCapacity: 100,
		SkewExponent:   2,
		Pacer:          pacer,
		Seed:           11,
	})
	require.NoError(t, err)
	return w
}

func TestWorkerConstructionErrors(t *testing.T) {
	base := WorkerConfig{Backend: &fakeBackend{}, Source: emptySource, Spec: OperationSpec{OpInsert: 1}, RPS: 1}

	cfg := base
	cfg.RPS = 0
	_, err := NewWorker(cfg)
	assert.Error(t, err)

	cfg = base
	cfg.Spec = OperationSpec{"upsert": 1}
	_, err = NewWorker(cfg)
	assert.ErrorIs(t, err, ErrInvalidSpec)

	cfg = base
	cfg.Spec = OperationSpec{OpInsert: 0.5}
	_, err = NewWorker(cfg)
	assert.ErrorIs(t, err, ErrInvalidSpec)

	cfg = base
	cfg.Backend = nil
	_, err = NewWorker(cfg)
	assert.Error(t, err)
}

func TestWorkerEmptyWindowIsSkippedNotFailed(t *testing.T) {
	b := &fakeBackend{}
	w := newTestWorker(t, b, OperationSpec{OpUpdate: 0.5, OpDelete: 0.5}, &countingPacer{})
	for i := 0; i < 200; i++ {
		w.Step(context.Background())
	}
	s := w.Snapshot()
	assert.Equal(t, int64(200), s.Skipped)
	assert.Zero(t, s.Failed)
	assert.Zero(t, b.calls.Load(), "backend must not be called for an empty window")
}

func TestWorkerCountersBalance(t *testing.T) {
	b := &fakeBackend{failEvery: 7}
	w := newTestWorker(t, b, OperationSpec{OpInsert: 0.5, OpUpdate: 0.3, OpDelete: 0.2}, &countingPacer{})
	const n = 1000
	for i := 0; i < n; i++ {
		w.Step(context.Background())
	}
	s := w.Snapshot()
	assert.Equal(t, int64(n), s.Cycles)
	assert.Equal(t, int64(n)-s.Skipped, s.Inserted+s.Updated+s.Deleted+s.Failed)
	assert.NotZero(t, s.Failed)
	assert.Equal(t, b.inserts.Load(), s.Inserted)
	assert.Equal(t, int64(w.window.Len()), s.Tracked)
}

func TestWorkerDeletesOldestFirst(t *testing.T) {
	b := &fakeBackend{}
	w := newTestWorker(t, b, OperationSpec{OpInsert: 0.5, OpDelete: 0.5}, &countingPacer{})
	for i := 0; i < 500; i++ {
		w.Step(context.Background())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.deleted)
	prev := 0
	for _, id := range b.deleted {
		var n int
		_, err := fmt.Sscanf(id, "id-%d", &n)
		require.NoError(t, err)
		assert.Greater(t, n, prev, "deletes must follow insertion order")
		prev = n
	}
}

func TestWorkerInsertOnlyDoesNotTrackKeys(t *testing.T) {
	b := &fakeBackend{}
	w := newTestWorker(t, b, OperationSpec{OpInsert: 1}, &countingPacer{})
	for i := 0; i < 50; i++ {
		w.Step(context.Background())
	}
	assert.Equal(t, int64(50), w.Snapshot().Inserted)
	assert.Zero(t, w.window.Len())
}

func TestWorkerStopsAfterCancellation(t *testing.T) {
	const k = 25
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pacer := &countingPacer{hook: func(n int64) {
		if n == k {
			cancel()
		}
	}}
	b := &fakeBackend{}
	w := newTestWorker(t, b, OperationSpec{OpInsert: 1}, pacer)

	require.NoError(t, w.Run(ctx))
	s := w.Snapshot()
	assert.Equal(t, int64(k), s.Cycles, "no cycle may begin after cancellation is observed")
	assert.False(t, s.Running)
}

// blockingBackend cancels the run from inside the first insert and reports
// whether the call context survived.
type blockingBackend struct {
	fakeBackend
	cancel   context.CancelFunc
	callErr  error
	observed bool
}

func (b *blockingBackend) Insert(ctx context.Context, t Target, r Record) (ID, error) {
	if !b.observed {
		b.observed = true
		b.cancel()
		time.Sleep(10 * time.Millisecond)
		b.callErr = ctx.Err()
	}
	return b.fakeBackend.Insert(ctx, t, r)
}

func TestWorkerInFlightCallCompletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &blockingBackend{cancel: cancel}
	w := newTestWorker(t, b, OperationSpec{OpInsert: 1}, IntervalPacer{Interval: time.Hour})

	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
	assert.NoError(t, b.callErr, "in-flight call context must not be cancelled")
	s := w.Snapshot()
	assert.Equal(t, int64(1), s.Cycles)
	assert.Equal(t, int64(1), s.Inserted)
}
