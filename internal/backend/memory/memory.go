// Package memory is an in-process backend used for dry runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"workloadgen/internal/workload"
)

type Backend struct {
	mu      sync.Mutex
	targets map[string]map[workload.ID]map[string]any
}

func New() *Backend {
	return &Backend{targets: make(map[string]map[workload.ID]map[string]any)}
}

func (b *Backend) Insert(_ context.Context, target workload.Target, rec workload.Record) (workload.ID, error) {
	id := uuid.NewString()
	doc := make(map[string]any, len(rec.Fields))
	for k, v := range rec.Fields {
		doc[k] = v
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.targets[target.String()]
	if !ok {
		t = make(map[workload.ID]map[string]any)
		b.targets[target.String()] = t
	}
	t[id] = doc
	return id, nil
}

func (b *Backend) UpdateByID(_ context.Context, target workload.Target, id workload.ID, patch workload.Patch) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, ok := b.targets[target.String()][id]
	if !ok {
		return 0, nil
	}
	for k, v := range patch {
		doc[k] = v
	}
	return 1, nil
}

func (b *Backend) DeleteByID(_ context.Context, target workload.Target, id workload.ID) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.targets[target.String()]
	if _, ok := t[id]; !ok {
		return 0, nil
	}
	delete(t, id)
	return 1, nil
}

// Get returns a copy of the stored document.
func (b *Backend) Get(target workload.Target, id workload.ID) (map[string]any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, ok := b.targets[target.String()][id]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, true
}

// Len reports how many documents target holds.
func (b *Backend) Len(target workload.Target) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.targets[target.String()])
}

func (b *Backend) Ping(context.Context) error { return nil }

func (b *Backend) Close(context.Context) error { return nil }
