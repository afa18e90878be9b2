package workload

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Operation names understood by the Worker.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// weightTolerance bounds how far the weight sum may drift from 1.0.
const weightTolerance = 1e-6

var ErrInvalidSpec = errors.New("invalid operation spec")

// OperationSpec maps operation name to weight.
type OperationSpec map[string]float64

// Has reports whether op has a positive weight.
func (s OperationSpec) Has(op string) bool { return s[op] > 0 }

// OperationSelector draws operations from a fixed categorical distribution.
type OperationSelector struct {
	ops        []string
	cumulative []float64
}

// NewOperationSelector validates spec and builds the selector. Weights must be
// finite, non-negative and sum to 1.0 within 1e-6.
func NewOperationSelector(spec OperationSpec) (*OperationSelector, error) {
	if len(spec) == 0 {
		return nil, fmt.Errorf("%w: no operations", ErrInvalidSpec)
	}
	ops := make([]string, 0, len(spec))
	for op := range spec {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	sel := &OperationSelector{}
	var sum float64
	for _, op := range ops {
		w := spec[op]
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return nil, fmt.Errorf("%w: weight for %q must be a finite non-negative number, got %v", ErrInvalidSpec, op, w)
		}
		if w == 0 {
			continue
		}
		sum += w
		sel.ops = append(sel.ops, op)
		sel.cumulative = append(sel.cumulative, sum)
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return nil, fmt.Errorf("%w: weights sum to %v, want 1.0", ErrInvalidSpec, sum)
	}
	return sel, nil
}

// Select draws one operation using rng.
func (s *OperationSelector) Select(rng *rand.Rand) string {
	u := rng.Float64() * s.cumulative[len(s.cumulative)-1]
	i := sort.SearchFloat64s(s.cumulative, u)
	// SearchFloat64s returns the first index with cumulative >= u; equal means
	// u landed on a boundary and belongs to the next bucket.
	for i < len(s.cumulative)-1 && s.cumulative[i] <= u {
		i++
	}
	return s.ops[i]
}

// Operations returns the operations with positive weight, sorted.
func (s *OperationSelector) Operations() []string {
	return append([]string(nil), s.ops...)
}
