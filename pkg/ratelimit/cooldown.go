package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	esiRateLimitCooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "esi_rate_limit_cooldowns_total",
		Help: "Total number of cooldowns applied before propagating an error",
	})

	esiRateLimitCooldownSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "esi_rate_limit_cooldown_seconds",
		Help:    "Cooldown duration applied due to a low ESI error budget",
		Buckets: []float64{1, 5, 10, 20, 30, 60},
	})
)

// Sleeper suspends the calling goroutine. Implementations must return early
// with the context error when ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to the Sleeper interface.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f(ctx, d).
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper sleeps on a real timer.
var TimerSleeper Sleeper = SleeperFunc(sleepTimer)

func sleepTimer(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Cooldown sleeps for the reset window when the state's remaining error
// budget is below threshold. It reports whether a cooldown was applied; the
// error is non-nil only when the sleep was interrupted.
func Cooldown(ctx context.Context, sleeper Sleeper, state State, threshold int) (bool, error) {
	if !state.NeedsCooldown(threshold) {
		return false, nil
	}

	wait := state.ResetDuration()
	esiRateLimitCooldownsTotal.Inc()
	esiRateLimitCooldownSeconds.Observe(wait.Seconds())

	return true, sleeper.Sleep(ctx, wait)
}
