package poll

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithin(t *testing.T) {
	tests := []struct {
		timeout, interval time.Duration
		attempts          int
	}{
		{4 * time.Second, 100 * time.Millisecond, 40},
		{5 * time.Second, 500 * time.Millisecond, 10},
		{50 * time.Millisecond, 100 * time.Millisecond, 1},
		{time.Second, 0, 1},
	}
	for _, tt := range tests {
		b := Within(tt.timeout, tt.interval)
		assert.Equal(t, tt.attempts, b.Attempts, "Within(%v, %v)", tt.timeout, tt.interval)
		assert.Equal(t, tt.interval, b.Interval)
	}
}

func TestUntil_MetImmediately(t *testing.T) {
	calls := 0
	res := Until(context.Background(), Budget{Attempts: 10, Interval: time.Hour}, func(context.Context, int) bool {
		calls++
		return true
	})
	assert.Equal(t, Result{Met: true, Attempts: 1}, res)
	assert.Equal(t, 1, calls)
}

func TestUntil_MetOnLaterAttempt(t *testing.T) {
	res := Until(context.Background(), Budget{Attempts: 10, Interval: time.Millisecond}, func(_ context.Context, attempt int) bool {
		return attempt == 4
	})
	assert.Equal(t, Result{Met: true, Attempts: 4}, res)
}

func TestUntil_ExhaustsBudget(t *testing.T) {
	calls := 0
	start := time.Now()
	res := Until(context.Background(), Budget{Attempts: 5, Interval: 2 * time.Millisecond}, func(context.Context, int) bool {
		calls++
		return false
	})
	assert.Equal(t, Result{Attempts: 5}, res)
	assert.Equal(t, 5, calls)
	// Four sleeps between five attempts.
	assert.GreaterOrEqual(t, time.Since(start), 8*time.Millisecond)
}

func TestUntil_ZeroAttemptsPollsOnce(t *testing.T) {
	calls := 0
	res := Until(context.Background(), Budget{}, func(context.Context, int) bool {
		calls++
		return false
	})
	assert.Equal(t, 1, calls)
	assert.False(t, res.Met)
}

func TestUntil_CancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	res := Until(ctx, Budget{Attempts: 10, Interval: time.Hour}, func(context.Context, int) bool {
		cancel()
		return false
	})
	assert.Equal(t, Result{Attempts: 1, Interrupted: true}, res)
}

func TestUntil_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	res := Until(ctx, Budget{Attempts: 3, Interval: time.Millisecond}, func(context.Context, int) bool {
		calls++
		return true
	})
	assert.True(t, res.Interrupted)
	assert.Zero(t, calls)
}
