package workload

import (
	"math"
	"math/rand"

	"workloadgen/pkg/buffer"
)

const (
	DefaultWindowCapacity = 10000
	DefaultSkewExponent   = 2.0
)

// RecentKeyWindow holds the most recently inserted ids of one target, oldest
// first. It is owned by a single Worker and is not safe for concurrent use.
type RecentKeyWindow struct {
	ring *buffer.Ring[ID]
	skew float64
	rng  *rand.Rand
}

// NewRecentKeyWindow returns an empty window. Non-positive arguments fall back
// to the defaults.
func NewRecentKeyWindow(capacity int, skew float64, rng *rand.Rand) *RecentKeyWindow {
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	if skew <= 0 || math.IsNaN(skew) || math.IsInf(skew, 0) {
		skew = DefaultSkewExponent
	}
	return &RecentKeyWindow{ring: buffer.NewRing[ID](capacity), skew: skew, rng: rng}
}

// Append adds id at the tail, evicting the oldest id when full.
func (w *RecentKeyWindow) Append(id ID) {
	w.ring.Push(id)
}

// SampleRecencySkewed picks an id with probability biased toward the tail.
// With u uniform in [0,1) the index from the tail is floor(u^k * n).
func (w *RecentKeyWindow) SampleRecencySkewed() (ID, bool) {
	n := w.ring.Len()
	if n == 0 {
		return "", false
	}
	idx := int(math.Pow(w.rng.Float64(), w.skew) * float64(n))
	if idx >= n {
		idx = n - 1
	}
	return w.ring.At(n - 1 - idx), true
}

// PopOldest removes and returns the head.
func (w *RecentKeyWindow) PopOldest() (ID, bool) {
	return w.ring.PopFront()
}

func (w *RecentKeyWindow) Len() int { return w.ring.Len() }

func (w *RecentKeyWindow) Cap() int { return w.ring.Cap() }

// IDs returns a copy of the window contents, oldest first.
func (w *RecentKeyWindow) IDs() []ID { return w.ring.Slice() }
