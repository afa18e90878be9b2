package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGroupStopAndWaitDrainsTasks(t *testing.T) {
	g := NewGroup(context.Background())
	var finished atomic.Int32
	for i := 0; i < 8; i++ {
		ok := g.Go(func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(5 * time.Millisecond)
			finished.Add(1)
			return ctx.Err()
		})
		if !ok {
			t.Fatalf("expected task %d to start", i)
		}
	}
	if g.Started() != 8 {
		t.Fatalf("expected 8 started, got %d", g.Started())
	}
	if err := g.StopAndWait(); err != nil {
		t.Fatalf("cancellation must not surface as error: %v", err)
	}
	if finished.Load() != 8 {
		t.Fatalf("expected all tasks drained, got %d", finished.Load())
	}
	if g.Active() != 0 {
		t.Fatalf("expected no active tasks, got %d", g.Active())
	}
}

func TestGroupRejectsAfterStop(t *testing.T) {
	g := NewGroup(context.Background())
	_ = g.StopAndWait()
	if g.Go(func(context.Context) error { return nil }) {
		t.Fatalf("expected Go to refuse tasks after stop")
	}
}

func TestGroupTaskErrorCancelsSiblings(t *testing.T) {
	g := NewGroup(context.Background())
	boom := errors.New("boom")
	g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	g.Go(func(context.Context) error { return boom })
	if err := g.Wait(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestGroupParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	g := NewGroup(parent)
	g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	cancel()
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("group did not observe parent cancellation")
	}
}
