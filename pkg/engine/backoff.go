package engine

import (
	"time"
)

// BackoffPolicy computes the wait between retry attempts of a step.
type BackoffPolicy interface {
	// Delay returns the wait before the given attempt number (1-based: the
	// delay before the first retry is Delay(1)).
	Delay(attempt int) time.Duration
}

// FixedBackoff waits a constant interval between attempts.
type FixedBackoff struct {
	// Interval is the constant wait between attempts.
	Interval time.Duration
}

// Delay implements BackoffPolicy.
func (f FixedBackoff) Delay(_ int) time.Duration {
	return f.Interval
}

// ExponentialBackoff doubles the wait on each attempt up to a cap.
type ExponentialBackoff struct {
	// Initial is the wait before the first retry.
	Initial time.Duration

	// Max caps the computed wait.
	Max time.Duration
}

// Delay implements BackoffPolicy.
func (e ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := e.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if e.Max > 0 && d >= e.Max {
			return e.Max
		}
	}
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// DefaultBackoff is the retry wait used when no per-type policy is configured.
var DefaultBackoff BackoffPolicy = FixedBackoff{Interval: 5 * time.Second}

// backoffForType selects the retry policy for an optimization type.
// Destructive types back off exponentially so that repeated failures against
// a struggling provider API slow down instead of hammering it.
func backoffForType(t OptimizationType) BackoffPolicy {
	if t.IsDestructive() {
		return ExponentialBackoff{Initial: 5 * time.Second, Max: 80 * time.Second}
	}
	return DefaultBackoff
}
