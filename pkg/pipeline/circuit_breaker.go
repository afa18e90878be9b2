package pipeline

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrCircuitOpen is returned by Execute while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitState represents the current state of a circuit breaker.
type CircuitState int32

const (
	StateClosed   CircuitState = iota // calls pass through
	StateOpen                         // calls rejected until the cool-down elapses
	StateHalfOpen                     // probing calls allowed
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerConfig tunes a CircuitBreaker. Zero values fall back to defaults.
type BreakerConfig struct {
	MaxFailures uint32        // consecutive failures before opening (default 5)
	Cooldown    time.Duration // time spent open before probing (default 10s)
	Successes   uint32        // probe successes needed to close again (default 2)
}

// CircuitBreaker guards calls to a flaky dependency. A backend that keeps
// failing is short-circuited so the caller can count the failure without
// paying for the round trip.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	state        atomic.Int32
	failures     atomic.Uint32
	successes    atomic.Uint32
	lastFailTime atomic.Int64

	totalCalls   atomic.Uint64
	totalSuccess atomic.Uint64
	totalReject  atomic.Uint64
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if cfg.Successes == 0 {
		cfg.Successes = 2
	}
	cb := &CircuitBreaker{name: name, cfg: cfg, now: time.Now}
	cb.state.Store(int32(StateClosed))
	return cb
}

// Execute runs fn unless the breaker is open. The error of fn is returned
// unchanged; a rejected call returns ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.totalCalls.Add(1)

	if CircuitState(cb.state.Load()) == StateOpen {
		lastFail := time.Unix(0, cb.lastFailTime.Load())
		if cb.now().Sub(lastFail) <= cb.cfg.Cooldown {
			cb.totalReject.Add(1)
			return ErrCircuitOpen
		}
		if cb.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
			cb.successes.Store(0)
		}
	}

	if err := fn(); err != nil {
		cb.onFailure()
		return err
	}
	cb.onSuccess()
	return nil
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures.Add(1)
	cb.lastFailTime.Store(cb.now().UnixNano())

	switch CircuitState(cb.state.Load()) {
	case StateClosed:
		if cb.failures.Load() >= cb.cfg.MaxFailures {
			cb.state.Store(int32(StateOpen))
		}
	case StateHalfOpen:
		// a single failed probe re-opens
		cb.state.Store(int32(StateOpen))
		cb.failures.Store(0)
		cb.successes.Store(0)
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.totalSuccess.Add(1)

	switch CircuitState(cb.state.Load()) {
	case StateClosed:
		cb.failures.Store(0)
	case StateHalfOpen:
		if cb.successes.Add(1) >= cb.cfg.Successes {
			cb.state.Store(int32(StateClosed))
			cb.failures.Store(0)
			cb.successes.Store(0)
		}
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(cb.state.Load())
}

// CircuitStats is a point-in-time view of a breaker.
type CircuitStats struct {
	Name         string
	State        string
	Failures     uint32
	TotalCalls   uint64
	TotalSuccess uint64
	TotalReject  uint64
}

func (cb *CircuitBreaker) Stats() CircuitStats {
	return CircuitStats{
		Name:         cb.name,
		State:        cb.State().String(),
		Failures:     cb.failures.Load(),
		TotalCalls:   cb.totalCalls.Load(),
		TotalSuccess: cb.totalSuccess.Load(),
		TotalReject:  cb.totalReject.Load(),
	}
}

// Reset manually closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.state.Store(int32(StateClosed))
	cb.failures.Store(0)
	cb.successes.Store(0)
}
