// Package testutil provides deterministic helpers for tests.
package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a thread-safe logical wall clock for tests. Each
// Now() advances by a fixed step, so event timestamps are reproducible and
// strictly ordered without touching real time.
type DeterministicClock struct {
	mu   sync.Mutex
	base time.Time
	step time.Duration
	seq  int64
}

// NewDeterministicClock creates a clock that starts at base and advances
// by step on every Now() call.
func NewDeterministicClock(base time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{base: base, step: step}
}

// Now returns the next timestamp in the sequence.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.base.Add(time.Duration(c.seq) * c.step)
	c.seq++
	return t
}

// Current returns the timestamp the next Now() call will produce, without
// advancing.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.Add(time.Duration(c.seq) * c.step)
}

// Reset rewinds the clock to its base. After Reset the next Now() returns
// base again, letting one scenario replay with identical timestamps.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
