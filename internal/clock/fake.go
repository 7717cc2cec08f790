package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Timers fire synchronously from Advance
// and Set, in deadline order (creation order for equal deadlines), with Now
// reporting the timer's deadline while its callback runs.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	seq      uint64
	fn       func()
}

func NewFake(start time.Time) *Fake {
	return &Fake{
		now: start,
	}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d < 0 {
		d = 0
	}

	c.seq++
	timer := &fakeTimer{
		clock:    c,
		deadline: c.now.Add(d),
		seq:      c.seq,
		fn:       f,
	}
	c.timers = append(c.timers, timer)

	return timer
}

// Advance moves the clock forward by d, firing every timer that becomes due.
func (c *Fake) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// Set moves the clock to t, firing every timer due at or before t. Timers
// armed by a firing callback also fire if they fall due before t.
func (c *Fake) Set(t time.Time) {
	for {
		c.mu.Lock()

		next := c.nextDueLocked(t)
		if next == nil {
			if t.After(c.now) {
				c.now = t
			}
			c.mu.Unlock()

			return
		}

		c.removeLocked(next)
		if next.deadline.After(c.now) {
			c.now = next.deadline
		}

		c.mu.Unlock()

		next.fn()
	}
}

// Pending returns the number of armed timers.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.timers)
}

// IMPORTANT: It must be called only when the lock is already held.
func (c *Fake) nextDueLocked(t time.Time) *fakeTimer {
	var next *fakeTimer

	for _, timer := range c.timers {
		if timer.deadline.After(t) {
			continue
		}

		if next == nil ||
			timer.deadline.Before(next.deadline) ||
			(timer.deadline.Equal(next.deadline) && timer.seq < next.seq) {
			next = timer
		}
	}

	return next
}

// IMPORTANT: It must be called only when the lock is already held.
func (c *Fake) removeLocked(timer *fakeTimer) bool {
	for i, candidate := range c.timers {
		if candidate == timer {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)

			return true
		}
	}

	return false
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	return t.clock.removeLocked(t)
}
