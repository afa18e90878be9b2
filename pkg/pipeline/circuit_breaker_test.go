package pipeline

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("failure")

func newTestBreaker(maxFailures uint32, cooldown time.Duration) *CircuitBreaker {
	return NewCircuitBreaker("test", BreakerConfig{MaxFailures: maxFailures, Cooldown: cooldown, Successes: 2})
}

func TestCircuitBreakerClosed(t *testing.T) {
	cb := newTestBreaker(3, 100*time.Millisecond)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("Expected closed state, got %v", cb.State())
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	cb := newTestBreaker(3, 100*time.Millisecond)

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errBackend }); !errors.Is(err, errBackend) {
			t.Fatalf("expected backend error to pass through, got %v", err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("Expected open state after 3 failures, got %v", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatalf("open breaker must not invoke the guarded call")
	}
}

func TestCircuitBreakerHalfOpenCloses(t *testing.T) {
	cb := newTestBreaker(2, 50*time.Millisecond)
	now := time.Now()
	cb.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errBackend })
	}
	if cb.State() != StateOpen {
		t.Fatalf("Expected open state, got %v", cb.State())
	}

	now = now.Add(60 * time.Millisecond)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Expected success in half-open, got %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected half-open after first probe, got %v", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("Expected closed state after successes, got %v", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailure(t *testing.T) {
	cb := newTestBreaker(2, 50*time.Millisecond)
	now := time.Now()
	cb.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errBackend })
	}
	now = now.Add(60 * time.Millisecond)
	_ = cb.Execute(func() error { return errBackend })

	if cb.State() != StateOpen {
		t.Fatalf("Expected open state after half-open failure, got %v", cb.State())
	}
}

func TestCircuitBreakerStats(t *testing.T) {
	cb := newTestBreaker(5, 100*time.Millisecond)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return nil })
	}
	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errBackend })
	}

	stats := cb.Stats()
	if stats.TotalCalls != 5 {
		t.Errorf("Expected 5 total calls, got %d", stats.TotalCalls)
	}
	if stats.TotalSuccess != 3 {
		t.Errorf("Expected 3 successes, got %d", stats.TotalSuccess)
	}
	if stats.Failures != 2 {
		t.Errorf("Expected 2 failures, got %d", stats.Failures)
	}
	if stats.State != "closed" {
		t.Errorf("Expected closed, got %s", stats.State)
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := newTestBreaker(2, time.Hour)

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errBackend })
	}
	if cb.State() != StateOpen {
		t.Fatalf("Expected open state, got %v", cb.State())
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("Expected closed state after reset, got %v", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Expected success after reset, got %v", err)
	}
}

func BenchmarkCircuitBreakerSuccess(b *testing.B) {
	cb := newTestBreaker(5, 100*time.Millisecond)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = cb.Execute(func() error { return nil })
		}
	})
}
