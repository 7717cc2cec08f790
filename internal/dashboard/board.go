// Package dashboard keeps the admin dashboard aggregates live.
//
// A Board subscribes to changes on its tables, registers a background
// refresh and reloads when connectivity returns. Every reload trigger goes
// through one throttle; only user refreshes bypass it. Loads that finish
// after a newer load started are discarded, and results reach viewers
// through a display stream.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/clock"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/connectivity"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/display"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/persistence"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/realtime"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/refresh"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMinReloadInterval = 5 * time.Second
	DefaultRecentLimit       = 10
)

type Option func(*Board)

func WithTables(tables ...Table) Option {
	return func(b *Board) {
		b.tables = tables
	}
}

// WithRecent selects the table and number of rows listed as recent activity.
func WithRecent(table string, limit int64) Option {
	return func(b *Board) {
		b.recentTable = table
		b.recentLimit = limit
	}
}

func WithMinReloadInterval(interval time.Duration) Option {
	return func(b *Board) {
		b.minReloadInterval = interval
	}
}

func WithMinCommitInterval(interval time.Duration) Option {
	return func(b *Board) {
		b.minCommitInterval = interval
	}
}

func WithClock(c clock.Clock) Option {
	return func(b *Board) {
		b.clock = c
	}
}

type Board struct {
	logger    *zap.Logger
	name      string
	engine    persistence.Engine
	registry  *realtime.Registry
	scheduler *refresh.Scheduler
	monitor   *connectivity.Monitor

	clock             clock.Clock
	tables            []Table
	recentTable       string
	recentLimit       int64
	minReloadInterval time.Duration
	minCommitInterval time.Duration

	throttle  *refresh.Throttle
	sequencer *refresh.Sequencer
	stream    *display.Stream[Summary]
	callback  *refresh.Callback

	proposeMu sync.Mutex

	mu                      sync.Mutex
	open                    bool
	cancel                  context.CancelFunc
	unsubscribeConnectivity func()
}

func NewBoard(
	logger *zap.Logger,
	name string,
	engine persistence.Engine,
	registry *realtime.Registry,
	scheduler *refresh.Scheduler,
	monitor *connectivity.Monitor,
	opts ...Option,
) *Board {
	b := &Board{
		logger:            logger.With(zap.String("consumerKey", name)),
		name:              name,
		engine:            engine,
		registry:          registry,
		scheduler:         scheduler,
		monitor:           monitor,
		clock:             clock.Real(),
		tables:            DefaultTables,
		recentTable:       "collections",
		recentLimit:       DefaultRecentLimit,
		minReloadInterval: DefaultMinReloadInterval,
		minCommitInterval: display.DefaultMinCommitInterval,
		sequencer:         refresh.NewSequencer(),
	}

	for _, opt := range opts {
		opt(b)
	}

	b.throttle = refresh.NewThrottle(b.minReloadInterval, refresh.WithThrottleClock(b.clock))
	b.stream = display.New(Summary{},
		display.WithClock[Summary](b.clock),
		display.WithMinCommitInterval[Summary](b.minCommitInterval),
		display.WithEqual(Summary.Equal),
		display.WithLogger[Summary](b.logger))
	b.callback = refresh.NewCallback(name, func(ctx context.Context) error {
		return b.Reload(ctx, b.scheduler.IsUserRefreshing(b.name))
	})

	return b
}

func (b *Board) Name() string {
	return b.name
}

// Stream returns the display stream viewers read from. It outlives Close so
// that a reopened board keeps its viewers.
func (b *Board) Stream() *display.Stream[Summary] {
	return b.stream
}

func (b *Board) ChannelName(table string) string {
	return b.name + ":" + table
}

// Open subscribes to every table, registers the background refresh, hooks
// connectivity restore and runs an initial load. Opening an open board does
// nothing.
func (b *Board) Open(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open {
		return nil
	}

	for _, table := range b.tables {
		err := b.registry.Subscribe(ctx, b.ChannelName(table.Name), func(channel *realtime.Channel) {
			channel.On(realtime.KindAll, table.Name, b.onChange)
		})
		if err != nil {
			b.unsubscribeLocked(ctx)

			return fmt.Errorf("opening dashboard %v: %w", b.name, err)
		}
	}

	hooksCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.scheduler.StartBackgroundRefresh(b.name, b.callback)
	b.unsubscribeConnectivity = b.monitor.OnChange(func(state connectivity.State) {
		b.onConnectivity(hooksCtx, state)
	})
	b.open = true

	b.logger.Info("dashboard opened",
		zap.Int("tables", len(b.tables)))

	if err := b.Reload(ctx, true); err != nil {
		b.logger.Error("initial dashboard load failed",
			zap.Error(err))
	}

	return nil
}

// Close undoes Open. Closing a closed board does nothing.
func (b *Board) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}

	b.open = false
	b.unsubscribeConnectivity()
	b.cancel()
	b.scheduler.RemoveCallback(b.name, b.callback)
	b.unsubscribeLocked(ctx)

	b.logger.Info("dashboard closed")

	return nil
}

// Refresh runs a user refresh through the scheduler. It returns false when
// the board is not open or a refresh is already running.
func (b *Board) Refresh(ctx context.Context) bool {
	return b.scheduler.ForceRefresh(ctx, b.name)
}

func (b *Board) IsRefreshing() bool {
	return b.scheduler.IsUserRefreshing(b.name)
}

// Reload fetches a new summary and proposes it to the display stream.
// Unforced reloads within the minimum reload interval are skipped. A failed
// load keeps the current summary.
func (b *Board) Reload(ctx context.Context, force bool) error {
	if !b.throttle.ShouldRun(force) {
		b.logger.Debug("dashboard reload throttled")

		return nil
	}

	sequence := b.sequencer.Next(b.name)

	summary, err := b.fetch(ctx)
	if err != nil {
		return fmt.Errorf("loading dashboard %v: %w", b.name, err)
	}

	b.proposeMu.Lock()
	defer b.proposeMu.Unlock()

	if !b.sequencer.IsLatest(b.name, sequence) {
		b.logger.Debug("discarding stale dashboard load",
			zap.Uint64("sequence", sequence))

		return nil
	}

	b.stream.Propose(summary)

	return nil
}

func (b *Board) fetch(ctx context.Context) (Summary, error) {
	summary := Summary{
		Counts:      make(map[string]int64, len(b.tables)),
		Totals:      make(map[string]decimal.Decimal),
		RefreshedAt: b.clock.Now(),
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)

	for _, table := range b.tables {
		g.Go(func() error {
			count, err := b.engine.Count(ctx, table.Name)
			if err != nil {
				return fmt.Errorf("counting %v: %w", table.Name, err)
			}

			mu.Lock()
			summary.Counts[table.Name] = count
			mu.Unlock()

			return nil
		})

		if table.SumField == "" {
			continue
		}

		g.Go(func() error {
			total, err := b.engine.Sum(ctx, table.Name, table.SumField)
			if err != nil {
				return fmt.Errorf("summing %v.%v: %w", table.Name, table.SumField, err)
			}

			mu.Lock()
			summary.Totals[table.Name] = total
			mu.Unlock()

			return nil
		})
	}

	if b.recentTable != "" {
		g.Go(func() error {
			records, err := b.engine.Recent(ctx, b.recentTable, b.recentLimit)
			if err != nil {
				return fmt.Errorf("listing recent %v: %w", b.recentTable, err)
			}

			mu.Lock()
			summary.Recent = records
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	return summary, nil
}

func (b *Board) onChange(ctx context.Context, change realtime.Change) error {
	return b.Reload(ctx, false)
}

func (b *Board) onConnectivity(ctx context.Context, state connectivity.State) {
	if !state.Online {
		return
	}

	if err := b.Reload(ctx, false); err != nil {
		b.logger.Error("dashboard reload after reconnect failed",
			zap.Error(err))
	}
}

// IMPORTANT: It must be called only when b.mu is already held.
func (b *Board) unsubscribeLocked(ctx context.Context) {
	for _, table := range b.tables {
		b.registry.Unsubscribe(ctx, b.ChannelName(table.Name))
	}
}
