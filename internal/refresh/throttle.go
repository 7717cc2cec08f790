package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/clock"
)

// Throttle gates one reload operation. Undirected triggers pass at most once
// per MinInterval; forced triggers always pass. The interval is measured
// from the start of the last admitted run, not its completion.
type Throttle struct {
	minInterval time.Duration
	clock       clock.Clock

	mu        sync.Mutex
	lastRunAt time.Time
}

type ThrottleOption func(*Throttle)

func WithThrottleClock(c clock.Clock) ThrottleOption {
	return func(t *Throttle) {
		t.clock = c
	}
}

func NewThrottle(minInterval time.Duration, opts ...ThrottleOption) *Throttle {
	t := &Throttle{
		minInterval: minInterval,
		clock:       clock.Real(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// ShouldRun reports whether a run may start now and, if so, records now as
// its start.
func (t *Throttle) ShouldRun(force bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()

	if !force && !t.lastRunAt.IsZero() && now.Sub(t.lastRunAt) < t.minInterval {
		return false
	}

	t.lastRunAt = now

	return true
}

func (t *Throttle) LastRunAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lastRunAt
}

// Wrap returns fn gated by the throttle. A gated call returns nil without
// calling fn.
func (t *Throttle) Wrap(fn func(ctx context.Context) error) func(ctx context.Context, force bool) error {
	return func(ctx context.Context, force bool) error {
		if !t.ShouldRun(force) {
			return nil
		}

		return fn(ctx)
	}
}
