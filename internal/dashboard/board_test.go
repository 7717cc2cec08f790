package dashboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/clock"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/connectivity"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/persistence"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/realtime"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/refresh"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	clock     *clock.Fake
	transport *realtime.MemoryTransport
	registry  *realtime.Registry
	scheduler *refresh.Scheduler
	monitor   *connectivity.Monitor
	board     *Board
}

func newFixture(t *testing.T, engine persistence.Engine, opts ...Option) *fixture {
	c := clock.NewFake(epoch)
	transport := realtime.NewMemoryTransport()
	registry := realtime.NewRegistry(zap.NewNop(), transport)
	scheduler := refresh.NewScheduler(zap.NewNop(), refresh.WithClock(c))
	monitor := connectivity.NewMonitor(zap.NewNop(),
		connectivity.ProberFunc(func(ctx context.Context) bool { return true }),
		connectivity.WithClock(c))

	opts = append([]Option{
		WithClock(c),
		WithTables(Table{Name: "users"}, Table{Name: "payments", SumField: "amount"}),
		WithRecent("payments", 5),
	}, opts...)

	board := NewBoard(zap.NewNop(), "dashboard", engine, registry, scheduler, monitor, opts...)

	t.Cleanup(scheduler.Close)

	return &fixture{c, transport, registry, scheduler, monitor, board}
}

func expectLoad(engine *persistence.MockEngine, users int64, total string) {
	engine.On("Count", mock.Anything, "users").Return(users, nil).Once()
	engine.On("Count", mock.Anything, "payments").Return(int64(2), nil).Once()
	engine.On("Sum", mock.Anything, "payments", "amount").Return(decimal.RequireFromString(total), nil).Once()
	engine.On("Recent", mock.Anything, "payments", int64(5)).Return([]persistence.Record{
		{ID: "p1", Table: "payments", CreatedAt: epoch},
	}, nil).Once()
}

func userChange() realtime.Change {
	return realtime.Change{
		Kind:   realtime.KindInsert,
		Table:  "users",
		Record: realtime.JSONPayload(`{"id":"u1"}`),
	}
}

func TestBoard_Open(t *testing.T) {
	ctx := context.Background()

	t.Run("subscribes, registers the refresh and loads", func(t *testing.T) {
		engine := persistence.NewMockEngine(t)
		f := newFixture(t, engine)

		expectLoad(engine, 3, "150.50")

		require.NoError(t, f.board.Open(ctx))
		require.NoError(t, f.board.Open(ctx))

		assert.Equal(t, []string{"dashboard:payments", "dashboard:users"}, f.registry.Names())
		assert.Equal(t, 2, f.transport.Streams())
		assert.Equal(t, []string{"dashboard"}, f.scheduler.Keys())

		summary := f.board.Stream().Display()
		assert.Equal(t, map[string]int64{"users": 3, "payments": 2}, summary.Counts)
		assert.True(t, decimal.RequireFromString("150.5").Equal(summary.Totals["payments"]))
		assert.Len(t, summary.Recent, 1)
		assert.Equal(t, epoch, summary.RefreshedAt)
	})

	t.Run("close tears everything down and reopen is clean", func(t *testing.T) {
		engine := persistence.NewMockEngine(t)
		f := newFixture(t, engine)

		expectLoad(engine, 3, "10")
		require.NoError(t, f.board.Open(ctx))

		require.NoError(t, f.board.Close(ctx))
		require.NoError(t, f.board.Close(ctx))

		assert.Empty(t, f.registry.Names())
		assert.Equal(t, 0, f.transport.Streams())
		assert.Empty(t, f.scheduler.Keys())
		assert.Equal(t, 0, f.transport.Publish(ctx, userChange()))
		assert.False(t, f.board.Refresh(ctx))

		f.monitor.SetOnline(false)
		f.clock.Advance(time.Hour)
		f.monitor.SetOnline(true)

		expectLoad(engine, 4, "10")
		require.NoError(t, f.board.Open(ctx))

		assert.Len(t, f.registry.Names(), 2)
		assert.Equal(t, 2, f.transport.Streams())
		assert.Equal(t, []string{"dashboard"}, f.scheduler.Keys())
		assert.Equal(t, int64(4), f.board.Stream().Display().Counts["users"])
	})

	t.Run("subscription failure leaves nothing behind", func(t *testing.T) {
		c := clock.NewFake(epoch)
		registry := realtime.NewRegistry(zap.NewNop(), realtime.NewMemoryTransport())
		require.NoError(t, registry.Close(ctx))

		scheduler := refresh.NewScheduler(zap.NewNop(), refresh.WithClock(c))
		defer scheduler.Close()

		board := NewBoard(zap.NewNop(), "dashboard", persistence.NewMockEngine(t), registry, scheduler,
			connectivity.NewMonitor(zap.NewNop(), nil, connectivity.WithClock(c)),
			WithClock(c))

		assert.Error(t, board.Open(ctx))
		assert.Empty(t, scheduler.Keys())
	})
}

func TestBoard_Reload(t *testing.T) {
	ctx := context.Background()

	t.Run("push events reload through the throttle", func(t *testing.T) {
		engine := persistence.NewMockEngine(t)
		f := newFixture(t, engine)

		expectLoad(engine, 3, "10")
		require.NoError(t, f.board.Open(ctx))

		f.clock.Advance(time.Second)
		assert.Equal(t, 1, f.transport.Publish(ctx, userChange()))
		assert.Equal(t, int64(3), f.board.Stream().Display().Counts["users"])

		f.clock.Advance(4 * time.Second)
		expectLoad(engine, 4, "10")
		assert.Equal(t, 1, f.transport.Publish(ctx, userChange()))
		assert.Equal(t, int64(4), f.board.Stream().Display().Counts["users"])
	})

	t.Run("user refresh bypasses the throttle", func(t *testing.T) {
		engine := persistence.NewMockEngine(t)
		f := newFixture(t, engine)

		expectLoad(engine, 3, "10")
		require.NoError(t, f.board.Open(ctx))

		expectLoad(engine, 5, "10")
		assert.True(t, f.board.Refresh(ctx))
		assert.False(t, f.board.IsRefreshing())

		assert.Equal(t, int64(5), f.board.Stream().Internal().Counts["users"])
		assert.Equal(t, int64(3), f.board.Stream().Display().Counts["users"])

		f.clock.Advance(500 * time.Millisecond)
		assert.Equal(t, int64(5), f.board.Stream().Display().Counts["users"])
	})

	t.Run("periodic pass reloads", func(t *testing.T) {
		engine := persistence.NewMockEngine(t)
		f := newFixture(t, engine)

		expectLoad(engine, 3, "10")
		require.NoError(t, f.board.Open(ctx))

		expectLoad(engine, 7, "10")
		f.clock.Advance(refresh.DefaultInterval)

		assert.Equal(t, int64(7), f.board.Stream().Display().Counts["users"])
	})

	t.Run("connectivity restore reloads", func(t *testing.T) {
		engine := persistence.NewMockEngine(t)
		f := newFixture(t, engine)

		expectLoad(engine, 3, "10")
		require.NoError(t, f.board.Open(ctx))

		f.clock.Advance(10 * time.Second)
		f.monitor.SetOnline(false)

		expectLoad(engine, 8, "10")
		f.monitor.SetOnline(true)

		assert.Equal(t, int64(8), f.board.Stream().Display().Counts["users"])
	})

	t.Run("failed load keeps the displayed summary", func(t *testing.T) {
		engine := persistence.NewMockEngine(t)
		f := newFixture(t, engine)

		expectLoad(engine, 3, "10")
		require.NoError(t, f.board.Open(ctx))

		engine.On("Count", mock.Anything, "users").Return(int64(0), errors.New("connection reset")).Once()
		engine.On("Count", mock.Anything, "payments").Return(int64(9), nil).Once()
		engine.On("Sum", mock.Anything, "payments", "amount").Return(decimal.Zero, nil).Once()
		engine.On("Recent", mock.Anything, "payments", int64(5)).Return(nil, nil).Once()

		err := f.board.Reload(ctx, true)

		assert.ErrorContains(t, err, "counting users")
		f.clock.Advance(time.Second)
		assert.Equal(t, int64(3), f.board.Stream().Display().Counts["users"])
		assert.Equal(t, int64(2), f.board.Stream().Display().Counts["payments"])
	})
}

func TestBoard_RecentRowUpdateIsDisplayed(t *testing.T) {
	ctx := context.Background()

	engine := persistence.NewMockEngine(t)
	f := newFixture(t, engine, WithTables(Table{Name: "users"}))

	recent := func(status string) {
		engine.On("Count", mock.Anything, "users").Return(int64(3), nil).Once()
		engine.On("Recent", mock.Anything, "payments", int64(5)).Return([]persistence.Record{
			{ID: "p1", Table: "payments", CreatedAt: epoch, Fields: map[string]any{"status": status}},
		}, nil).Once()
	}

	recent("pending")
	require.NoError(t, f.board.Open(ctx))

	recent("paid")
	require.NoError(t, f.board.Reload(ctx, true))
	f.clock.Advance(10 * time.Second)

	display := f.board.Stream().Display()
	require.Len(t, display.Recent, 1)
	assert.Equal(t, "paid", display.Recent[0].Fields["status"])
}

type stubEngine struct {
	count func(ctx context.Context, table string) (int64, error)
}

func (e *stubEngine) Setup(ctx context.Context) error {
	return nil
}

func (e *stubEngine) Count(ctx context.Context, table string) (int64, error) {
	return e.count(ctx, table)
}

func (e *stubEngine) Sum(ctx context.Context, table string, field string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (e *stubEngine) Recent(ctx context.Context, table string, limit int64) ([]persistence.Record, error) {
	return nil, nil
}

func (e *stubEngine) Ping(ctx context.Context) error {
	return nil
}

func TestBoard_StaleLoadIsDiscarded(t *testing.T) {
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})

	var calls atomic.Int32
	engine := &stubEngine{count: func(ctx context.Context, table string) (int64, error) {
		switch calls.Add(1) {
		case 2:
			close(entered)
			<-release

			return 20, nil
		case 3:
			return 30, nil
		}

		return 10, nil
	}}

	f := newFixture(t, engine,
		WithTables(Table{Name: "users"}),
		WithRecent("", 0),
		WithMinCommitInterval(0))

	require.NoError(t, f.board.Open(ctx))
	assert.Equal(t, int64(10), f.board.Stream().Display().Counts["users"])

	done := make(chan error)
	go func() {
		done <- f.board.Reload(ctx, true)
	}()

	<-entered
	require.NoError(t, f.board.Reload(ctx, true))
	assert.Equal(t, int64(30), f.board.Stream().Display().Counts["users"])

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, int64(30), f.board.Stream().Display().Counts["users"])
	assert.Equal(t, int64(30), f.board.Stream().Internal().Counts["users"])
}

func TestSummary_Equal(t *testing.T) {
	base := Summary{
		Counts:      map[string]int64{"users": 1},
		Totals:      map[string]decimal.Decimal{"payments": decimal.RequireFromString("1.50")},
		Recent:      []persistence.Record{{ID: "p1", CreatedAt: epoch}},
		RefreshedAt: epoch,
	}

	same := Summary{
		Counts:      map[string]int64{"users": 1},
		Totals:      map[string]decimal.Decimal{"payments": decimal.RequireFromString("1.5")},
		Recent:      []persistence.Record{{ID: "p1", CreatedAt: epoch}},
		RefreshedAt: epoch.Add(time.Minute),
	}

	assert.True(t, base.Equal(same))

	same.Counts["users"] = 2
	assert.False(t, base.Equal(same))

	same.Counts["users"] = 1
	same.Recent = []persistence.Record{{ID: "p1", CreatedAt: epoch, Fields: map[string]any{"status": "paid"}}}
	assert.False(t, base.Equal(same))

	base.Recent = []persistence.Record{{ID: "p1", CreatedAt: epoch, Fields: map[string]any{"status": "paid"}}}
	assert.True(t, base.Equal(same))

	assert.False(t, base.Equal(Summary{}))
	assert.True(t, Summary{}.Equal(Summary{}))
}
