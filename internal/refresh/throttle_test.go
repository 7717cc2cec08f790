package refresh

import (
	"context"
	"testing"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/clock"
	"github.com/stretchr/testify/assert"
)

func TestThrottle_ShouldRun(t *testing.T) {
	c := clock.NewFake(epoch)
	throttle := NewThrottle(5*time.Second, WithThrottleClock(c))

	assert.True(t, throttle.ShouldRun(false), "first call passes")
	assert.Equal(t, epoch, throttle.LastRunAt())

	c.Advance(time.Second)
	assert.False(t, throttle.ShouldRun(false))

	assert.True(t, throttle.ShouldRun(true), "forced call always passes")
	assert.Equal(t, epoch.Add(time.Second), throttle.LastRunAt())

	c.Advance(4 * time.Second)
	assert.False(t, throttle.ShouldRun(false), "interval restarts at the forced run")

	c.Advance(time.Second)
	assert.True(t, throttle.ShouldRun(false))
}

func TestThrottle_Wrap(t *testing.T) {
	ctx := context.Background()

	t.Run("measures from the start of the run", func(t *testing.T) {
		c := clock.NewFake(epoch)
		throttle := NewThrottle(5*time.Second, WithThrottleClock(c))

		calls := 0
		reload := throttle.Wrap(func(ctx context.Context) error {
			calls++
			c.Advance(3 * time.Second)
			return nil
		})

		assert.NoError(t, reload(ctx, false))

		c.Advance(time.Second)
		assert.NoError(t, reload(ctx, false))
		assert.Equal(t, 1, calls)

		c.Advance(time.Second)
		assert.NoError(t, reload(ctx, false))
		assert.Equal(t, 2, calls)
	})

	t.Run("returns the wrapped error when it runs", func(t *testing.T) {
		throttle := NewThrottle(time.Minute)

		reload := throttle.Wrap(func(ctx context.Context) error {
			return context.DeadlineExceeded
		})

		assert.ErrorIs(t, reload(ctx, true), context.DeadlineExceeded)
		assert.NoError(t, reload(ctx, false))
	})
}
