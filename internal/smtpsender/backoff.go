package smtpsender

import (
	"context"
	"math"
	"math/rand"
	"time"
)

const (
	// InitialBackoff and MaxBackoff are spec §4.2's INITIAL/MAX_BACKOFF.
	InitialBackoff = time.Second
	MaxBackoff     = 60 * time.Second

	// MaxAttempts is spec §4.2's MAX_ATTEMPTS.
	MaxAttempts = 3
)

// backoffDuration computes backoff(attempt) = min(initial*2^(attempt-1) +
// uniform(0, 0.3*initial*2^(attempt-1)), max), per spec §4.2. attempt is
// 1-indexed. initial/max default to InitialBackoff/MaxBackoff when <= 0.
func backoffDuration(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = InitialBackoff
	}
	if max <= 0 {
		max = MaxBackoff
	}
	base := float64(initial) * math.Pow(2, float64(attempt-1))
	jitter := rand.Float64() * 0.3 * base
	d := time.Duration(base + jitter)
	if d > max {
		return max
	}
	return d
}

// preSendJitter returns a random sleep duration for the pre-send jitter
// suspension point of spec §4.2: 50-250ms for gmail.com/googlemail.com,
// 0-100ms otherwise.
func preSendJitter(domain string) time.Duration {
	if domain == "gmail.com" || domain == "googlemail.com" {
		return 50*time.Millisecond + time.Duration(rand.Int63n(int64(200*time.Millisecond)))
	}
	return time.Duration(rand.Int63n(int64(100 * time.Millisecond)))
}

// sleepCtx sleeps for d, or returns ctx.Err() early if ctx is done first, per
// spec §2/§5's requirement that every blocking call (including backoff and
// pre-send jitter sleeps) be cancellation-aware.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
