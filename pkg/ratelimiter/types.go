package ratelimiter

import "time"

// Result is the bucket state after a take.
type Result struct {
	Limit     int
	Remaining int // negative when the take was refused
	ResetAt   time.Time
}

// Allowed reports whether the take fit in the bucket.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter is how long to wait for the next refill, or 0 when allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(0, time.Until(r.ResetAt))
}

// Config sizes a bucket.
type Config struct {
	Capacity       int           // burst size
	RefillRate     int           // tokens added per interval
	RefillInterval time.Duration
}
