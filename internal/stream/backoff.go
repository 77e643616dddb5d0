package stream

import (
	"time"
)

const (
	DefaultRateLimitFloor   = 1 * time.Minute
	DefaultRateLimitCeiling = 30 * time.Minute
	DefaultTransientDelay   = 10 * time.Second
)

// Backoff tracks the cooldown applied after rate-limit failures. It is owned
// by a single supervisor loop and is not safe for concurrent use.
type Backoff struct {
	Floor      time.Duration
	Ceiling    time.Duration
	Multiplier float64

	current time.Duration
}

// NewBackoff returns a Backoff starting at floor and doubling up to ceiling.
// A non-positive floor falls back to DefaultRateLimitFloor and the ceiling is
// never below the floor.
func NewBackoff(floor, ceiling time.Duration) *Backoff {
	if floor <= 0 {
		floor = DefaultRateLimitFloor
	}
	if ceiling < floor {
		ceiling = floor
	}
	b := &Backoff{
		Floor:      floor,
		Ceiling:    ceiling,
		Multiplier: 2.0,
	}
	b.Reset()
	return b
}

// DefaultBackoff returns the 1 minute to 30 minute policy.
func DefaultBackoff() *Backoff {
	return NewBackoff(DefaultRateLimitFloor, DefaultRateLimitCeiling)
}

// Next returns the cooldown to sleep now and advances the state for the next
// consecutive failure.
func (b *Backoff) Next() time.Duration {
	if b.current <= 0 {
		b.current = b.Floor
	}
	delay := b.current
	next := time.Duration(float64(b.current) * b.Multiplier)
	if next > b.Ceiling {
		next = b.Ceiling
	}
	b.current = next
	return delay
}

// Peek returns the cooldown the next failure would sleep.
func (b *Backoff) Peek() time.Duration {
	if b.current <= 0 {
		return b.Floor
	}
	return b.current
}

// Reset returns the cooldown to its floor.
func (b *Backoff) Reset() {
	b.current = b.Floor
}
