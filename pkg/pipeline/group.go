package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Group owns a set of long-running tasks that share one cancellation scope.
// Every task started through Go is accounted for by Wait; nothing is left
// running once StopAndWait returns.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group

	mu      sync.Mutex
	stopped bool

	started atomic.Int64
	active  atomic.Int64
}

// NewGroup derives the group scope from parent. Cancelling parent stops the
// group as well.
func NewGroup(parent context.Context) *Group {
	ctx, cancel := context.WithCancel(parent)
	eg, egCtx := errgroup.WithContext(ctx)
	return &Group{ctx: egCtx, cancel: cancel, eg: eg}
}

// Context is the scope handed to every task.
func (g *Group) Context() context.Context { return g.ctx }

// Go starts fn in its own goroutine. It returns false once the group has been
// stopped. A task returning a non-nil error cancels the whole group.
func (g *Group) Go(fn func(ctx context.Context) error) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false
	}
	g.started.Add(1)
	g.active.Add(1)
	g.eg.Go(func() error {
		defer g.active.Add(-1)
		return fn(g.ctx)
	})
	return true
}

// Wait blocks until every task has returned. Cancellation is not reported as
// an error.
func (g *Group) Wait() error {
	err := g.eg.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// StopAndWait refuses new tasks, cancels the scope and drains every task.
func (g *Group) StopAndWait() error {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
	g.cancel()
	return g.Wait()
}

// Started reports how many tasks were ever started.
func (g *Group) Started() int { return int(g.started.Load()) }

// Active reports how many tasks are still running.
func (g *Group) Active() int { return int(g.active.Load()) }
