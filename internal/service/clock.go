package service

import (
	"sync"
	"time"
)

// clock hands out UTC timestamps that strictly increase at the storage
// resolution, so rows written in one call keep their insertion order.
type clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newClock(now func() time.Time) *clock {
	if now == nil {
		now = time.Now
	}
	return &clock{now: now}
}

// Now returns the next timestamp.
func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now().UTC().Truncate(time.Microsecond)
	if !ts.After(c.last) {
		ts = c.last.Add(time.Microsecond)
	}
	c.last = ts
	return ts
}
