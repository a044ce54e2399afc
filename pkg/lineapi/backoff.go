package lineapi

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the delay before retry number attempt (1-based).
type Backoff interface {
	Delay(attempt int) time.Duration
}

// ExponentialBackoff grows Initial by Multiplier per attempt up to Max, with
// symmetric jitter applied as a fraction of the computed delay.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

func (e ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := e.Initial
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	maxDelay := e.Max
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	mult := e.Multiplier
	if mult <= 0 {
		mult = 2
	}

	d := float64(initial) * math.Pow(mult, float64(attempt-1))
	if e.Jitter > 0 {
		d *= 1 + (rand.Float64()*2-1)*e.Jitter
	}
	if d > float64(maxDelay) {
		d = float64(maxDelay)
	}
	return time.Duration(d)
}

// FixedBackoff waits the same interval before every retry.
type FixedBackoff time.Duration

func (f FixedBackoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(f)
}

// DefaultBackoff is tuned for the reply endpoint, whose reply tokens expire
// shortly after the webhook is received.
func DefaultBackoff() Backoff {
	return ExponentialBackoff{
		Initial:    200 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 2,
		Jitter:     0.1,
	}
}
