package workload

import (
	"sync/atomic"
	"time"
)

// WorkerState holds the counters of one Worker. The Worker is the only writer;
// reporters and the status server read through Snapshot.
type WorkerState struct {
	target  string
	started time.Time

	inserted atomic.Int64
	updated  atomic.Int64
	deleted  atomic.Int64
	failed   atomic.Int64
	skipped  atomic.Int64
	cycles   atomic.Int64
	tracked  atomic.Int64
	running  atomic.Bool
}

func newWorkerState(target string, now time.Time) *WorkerState {
	return &WorkerState{target: target, started: now}
}

// Snapshot is a point-in-time copy of a WorkerState.
type Snapshot struct {
	Target   string        `json:"target"`
	Inserted int64         `json:"inserted"`
	Updated  int64         `json:"updated"`
	Deleted  int64         `json:"deleted"`
	Failed   int64         `json:"failed"`
	Skipped  int64         `json:"skipped"`
	Cycles   int64         `json:"cycles"`
	Tracked  int64         `json:"tracked_keys"`
	Running  bool          `json:"running"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Rate     float64       `json:"rate"`
}

// Succeeded is the number of operations the backend acknowledged.
func (s Snapshot) Succeeded() int64 { return s.Inserted + s.Updated + s.Deleted }

// Snapshot reads the counters at now. Rate is successful operations per second
// since the worker started.
func (st *WorkerState) Snapshot(now time.Time) Snapshot {
	s := Snapshot{
		Target:   st.target,
		Inserted: st.inserted.Load(),
		Updated:  st.updated.Load(),
		Deleted:  st.deleted.Load(),
		Failed:   st.failed.Load(),
		Skipped:  st.skipped.Load(),
		Cycles:   st.cycles.Load(),
		Tracked:  st.tracked.Load(),
		Running:  st.running.Load(),
		Elapsed:  now.Sub(st.started),
	}
	if secs := s.Elapsed.Seconds(); secs > 0 {
		s.Rate = float64(s.Succeeded()) / secs
	}
	return s
}

// Totals sums snapshots. Elapsed is the longest elapsed and Rate the sum of rates.
func Totals(snaps []Snapshot) Snapshot {
	var t Snapshot
	t.Target = "total"
	for _, s := range snaps {
		t.Inserted += s.Inserted
		t.Updated += s.Updated
		t.Deleted += s.Deleted
		t.Failed += s.Failed
		t.Skipped += s.Skipped
		t.Cycles += s.Cycles
		t.Tracked += s.Tracked
		t.Rate += s.Rate
		if s.Running {
			t.Running = true
		}
		if s.Elapsed > t.Elapsed {
			t.Elapsed = s.Elapsed
		}
	}
	return t
}
