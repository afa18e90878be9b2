package workload

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out worker cycles. Wait returns ctx.Err() when cancelled.
type Pacer interface {
	Wait(ctx context.Context) error
}

// IntervalPacer sleeps a fixed interval after every cycle regardless of how
// long the cycle took, so the achieved rate drops as backend latency grows.
type IntervalPacer struct {
	Interval time.Duration
}

func (p IntervalPacer) Wait(ctx context.Context) error {
	if p.Interval <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.Interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LimiterPacer holds cycles to a token bucket of the given rate with burst 1,
// so time spent in the backend counts toward the interval.
type LimiterPacer struct {
	limiter *rate.Limiter
}

func NewLimiterPacer(rps float64) *LimiterPacer {
	return &LimiterPacer{limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (p *LimiterPacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// NewPacer returns the pacer named by strategy ("interval" or "limiter").
func NewPacer(strategy string, rps float64) Pacer {
	if strategy == "limiter" {
		return NewLimiterPacer(rps)
	}
	return IntervalPacer{Interval: time.Duration(float64(time.Second) / rps)}
}
