// Package retry holds the fixed-interval wait used between reconnect
// attempts and sync cycles. There is no attempt cap: callers loop until
// their context ends.
package retry

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Fixed waits the same Interval before every attempt.
type Fixed struct {
	Interval time.Duration
	Clock    clockwork.Clock
}

// NewFixed returns a Fixed policy on the given clock, or the real clock when nil.
func NewFixed(interval time.Duration, clock clockwork.Clock) Fixed {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return Fixed{Interval: interval, Clock: clock}
}

// Wait sleeps for the interval. It returns false if ctx ended first.
func (f Fixed) Wait(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if f.Interval <= 0 {
		return true
	}

	timer := f.Clock.NewTimer(f.Interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

// Forever calls attempt, waiting between calls, until it succeeds or ctx
// ends. onFailure sees every failed attempt with its 1-based number.
func (f Fixed) Forever(ctx context.Context, attempt func(context.Context) error, onFailure func(n int, err error)) error {
	for n := 1; ; n++ {
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if onFailure != nil {
			onFailure(n, err)
		}
		if !f.Wait(ctx) {
			return ctx.Err()
		}
	}
}
