package clock

import (
	"context"
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock for tests. Sleep advances the
// clock immediately instead of blocking and records the requested
// duration.
type FakeClock struct {
	lock  sync.Mutex
	now   time.Time
	slept []time.Duration
}

var _ Clock = &FakeClock{}

func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

// Slept returns the durations passed to Sleep, in order.
func (c *FakeClock) Slept() []time.Duration {
	c.lock.Lock()
	defer c.lock.Unlock()
	slept := make([]time.Duration, len(c.slept))
	copy(slept, c.slept)
	return slept
}
