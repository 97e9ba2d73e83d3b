// Package ratelimit implements the shared relay budget.
package ratelimit

import "sync/atomic"

// Counter caps how many messages leave per interval. TryAcquire reserves a
// slot with a compare-and-swap so concurrent callers can never overshoot the
// cap; Reset is called only by the scheduler.
type Counter struct {
	cap   int64
	count atomic.Int64
}

// New creates a counter with the given per-interval cap. A cap of zero or
// less means nothing is ever relayed.
func New(cap int64) *Counter {
	return &Counter{cap: cap}
}

// TryAcquire reserves one relay slot, reporting false when the cap is
// reached.
func (c *Counter) TryAcquire() bool {
	for {
		current := c.count.Load()
		if current >= c.cap {
			return false
		}
		if c.count.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Reset opens a fresh interval.
func (c *Counter) Reset() {
	c.count.Store(0)
}

// Count returns the slots used in the current interval.
func (c *Counter) Count() int64 {
	return c.count.Load()
}
