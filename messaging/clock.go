package messaging

import "time"

// TimeProvider supplies envelope timestamps. Implementations must be safe
// for concurrent use.
type TimeProvider interface {
	Now() time.Time
}

// SystemClock stamps envelopes with the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }
