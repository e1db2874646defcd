// Package fake provides a settable clock for tests.
package fake

import (
	"sync"
	"time"
)

// Clock returns a fixed instant until advanced.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// New returns a clock frozen at now.
func New(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the frozen instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set pins the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
