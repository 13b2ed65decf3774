// Package poll provides the bounded "check, sleep, check again" loop used to
// confirm arrival and collision-world updates.
package poll

import (
	"context"
	"time"
)

// Budget bounds a polling loop.
type Budget struct {
	Attempts int
	Interval time.Duration
}

// Within returns a budget that polls every interval until timeout has elapsed,
// i.e. timeout/interval attempts, at least one.
func Within(timeout, interval time.Duration) Budget {
	attempts := 1
	if interval > 0 && timeout > interval {
		attempts = int(timeout / interval)
	}
	return Budget{Attempts: attempts, Interval: interval}
}

// Condition is evaluated once per attempt.
type Condition func(ctx context.Context, attempt int) bool

// Result describes how a polling loop ended.
type Result struct {
	Met         bool
	Attempts    int
	Interrupted bool
}

// Until evaluates cond up to b.Attempts times, sleeping b.Interval between
// evaluations, and stops as soon as cond holds. Cancelling ctx ends the wait
// early with Interrupted set; it is not treated as an error.
func Until(ctx context.Context, b Budget, cond Condition) Result {
	attempts := max(b.Attempts, 1)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return Result{Attempts: attempt - 1, Interrupted: true}
		}
		if cond(ctx, attempt) {
			return Result{Met: true, Attempts: attempt}
		}
		if attempt == attempts {
			return Result{Attempts: attempt}
		}

		if timer == nil {
			timer = time.NewTimer(b.Interval)
		} else {
			timer.Reset(b.Interval)
		}
		select {
		case <-ctx.Done():
			return Result{Attempts: attempt, Interrupted: true}
		case <-timer.C:
		}
	}
}
