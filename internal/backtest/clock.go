package backtest

import (
	"sync"
	"time"
)

// SimClock is the simulated time source driven by the harness. The engine's
// decay gate reads it through the clock option, so historical signals are
// decay-checked against replay time, not wall time.
type SimClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewSimClock creates a clock starting at the given instant.
func NewSimClock(start time.Time) *SimClock {
	return &SimClock{now: start}
}

// Now returns the current simulated time.
func (c *SimClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward; it never runs backwards even if the feed
// delivers a slightly out-of-order timestamp.
func (c *SimClock) Advance(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}
