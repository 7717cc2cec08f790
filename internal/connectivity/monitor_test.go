package connectivity

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/clock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type switchProber struct {
	online atomic.Bool
	calls  atomic.Int32
}

func (p *switchProber) Probe(ctx context.Context) bool {
	p.calls.Add(1)

	return p.online.Load()
}

func TestMonitor_CheckNow(t *testing.T) {
	t.Run("going online emits exactly one change", func(t *testing.T) {
		c := clock.NewFake(epoch)
		prober := &switchProber{}
		prober.online.Store(true)

		monitor := NewMonitor(zap.NewNop(), prober, WithClock(c), WithInitialState(false))

		var changes []State
		monitor.OnChange(func(s State) { changes = append(changes, s) })

		c.Advance(time.Second)
		online := monitor.CheckNow(context.Background())

		assert.True(t, online)
		assert.True(t, monitor.IsOnline())
		assert.Len(t, changes, 1)
		assert.True(t, changes[0].Online)
		assert.Equal(t, epoch.Add(time.Second), changes[0].LastChangeAt)
	})

	t.Run("unchanged sample emits nothing", func(t *testing.T) {
		prober := &switchProber{}
		prober.online.Store(true)

		monitor := NewMonitor(zap.NewNop(), prober)

		calls := 0
		monitor.OnChange(func(State) { calls++ })

		assert.True(t, monitor.CheckNow(context.Background()))
		assert.True(t, monitor.CheckNow(context.Background()))
		assert.Equal(t, 0, calls)
	})

	t.Run("going offline and back", func(t *testing.T) {
		prober := &switchProber{}
		monitor := NewMonitor(zap.NewNop(), prober)

		var changes []bool
		monitor.OnChange(func(s State) { changes = append(changes, s.Online) })

		assert.False(t, monitor.CheckNow(context.Background()))
		prober.online.Store(true)
		assert.True(t, monitor.CheckNow(context.Background()))

		assert.Equal(t, []bool{false, true}, changes)
	})
}

func TestMonitor_SetOnline(t *testing.T) {
	monitor := NewMonitor(zap.NewNop(), ProberFunc(func(context.Context) bool { return true }))

	calls := 0
	unsubscribe := monitor.OnChange(func(State) { calls++ })

	monitor.SetOnline(false)
	monitor.SetOnline(false)
	unsubscribe()
	monitor.SetOnline(true)

	assert.Equal(t, 1, calls)
	assert.True(t, monitor.IsOnline())
}

func TestMonitor_StartStop(t *testing.T) {
	c := clock.NewFake(epoch)
	prober := &switchProber{}
	prober.online.Store(true)

	monitor := NewMonitor(zap.NewNop(), prober, WithClock(c))

	monitor.Start(context.Background(), 10*time.Second)
	monitor.Start(context.Background(), 10*time.Second)

	assert.Equal(t, 1, c.Pending())

	c.Advance(35 * time.Second)
	assert.Equal(t, int32(3), prober.calls.Load())

	monitor.Stop()
	monitor.Stop()

	c.Advance(time.Minute)
	assert.Equal(t, int32(3), prober.calls.Load())
	assert.Equal(t, 0, c.Pending())
}

func TestMonitor_StartStopsWithContext(t *testing.T) {
	c := clock.NewFake(epoch)
	prober := &switchProber{}

	monitor := NewMonitor(zap.NewNop(), prober, WithClock(c))

	ctx, cancel := context.WithCancel(context.Background())
	monitor.Start(ctx, time.Second)
	cancel()

	c.Advance(5 * time.Second)

	assert.Equal(t, int32(0), prober.calls.Load())
	assert.Equal(t, 0, c.Pending())
}
