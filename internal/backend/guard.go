package backend

import (
	"context"
	"sync"

	"workloadgen/internal/platform/logger"
	"workloadgen/internal/workload"
	"workloadgen/pkg/pipeline"
)

// guarded routes every call through a per-target circuit breaker. While a
// target's circuit is open calls fail fast with pipeline.ErrCircuitOpen.
type guarded struct {
	Client
	cfg pipeline.BreakerConfig

	mu       sync.Mutex
	breakers map[string]*pipeline.CircuitBreaker
}

// Guard wraps c with per-target circuit breakers.
func Guard(c Client, cfg pipeline.BreakerConfig) Client {
	return &guarded{Client: c, cfg: cfg, breakers: make(map[string]*pipeline.CircuitBreaker)}
}

func (g *guarded) breaker(t workload.Target) *pipeline.CircuitBreaker {
	name := t.String()
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.breakers[name]
	if !ok {
		cb = pipeline.NewCircuitBreaker(name, g.cfg)
		g.breakers[name] = cb
	}
	return cb
}

// Breakers returns the state of every breaker created so far.
func (g *guarded) Breakers() map[string]pipeline.CircuitStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]pipeline.CircuitStats, len(g.breakers))
	for name, cb := range g.breakers {
		out[name] = cb.Stats()
	}
	return out
}

func (g *guarded) run(t workload.Target, fn func() error) error {
	cb := g.breaker(t)
	before := cb.State()
	err := cb.Execute(fn)
	if after := cb.State(); after != before {
		logger.Slog().Warn("circuit state changed", "target", t.String(), "from", before.String(), "to", after.String())
	}
	return err
}

func (g *guarded) Insert(ctx context.Context, t workload.Target, rec workload.Record) (workload.ID, error) {
	var id workload.ID
	err := g.run(t, func() error {
		var err error
		id, err = g.Client.Insert(ctx, t, rec)
		return err
	})
	return id, err
}

func (g *guarded) UpdateByID(ctx context.Context, t workload.Target, id workload.ID, patch workload.Patch) (int64, error) {
	var n int64
	err := g.run(t, func() error {
		var err error
		n, err = g.Client.UpdateByID(ctx, t, id, patch)
		return err
	})
	return n, err
}

func (g *guarded) DeleteByID(ctx context.Context, t workload.Target, id workload.ID) (int64, error) {
	var n int64
	err := g.run(t, func() error {
		var err error
		n, err = g.Client.DeleteByID(ctx, t, id)
		return err
	})
	return n, err
}
