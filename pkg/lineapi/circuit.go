package lineapi

import (
	"sync"
	"time"
)

// CircuitState is the state of a Breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker stops calls to the messaging API after consecutive failures and lets
// a probe through once the recovery window has passed. Safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	threshold int
	recovery  time.Duration
	now       func() time.Time

	state    CircuitState
	failures int
	openedAt time.Time
}

// NewBreaker returns a closed breaker. Non-positive arguments fall back to
// 5 failures and a 30s recovery window.
func NewBreaker(threshold int, recovery time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if recovery <= 0 {
		recovery = 30 * time.Second
	}
	return &Breaker{threshold: threshold, recovery: recovery, now: time.Now}
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.now().Sub(b.openedAt) >= b.recovery {
			b.state = CircuitHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// Success records a successful call. One success in half-open closes the circuit.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = CircuitClosed
}

// Failure records a failed call and opens the circuit once the threshold is hit.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitHalfOpen:
		b.state = CircuitOpen
		b.openedAt = b.now()
	case CircuitClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = CircuitOpen
			b.openedAt = b.now()
		}
	}
}

// State returns the current state without side effects.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen && b.now().Sub(b.openedAt) >= b.recovery {
		return CircuitHalfOpen
	}
	return b.state
}
