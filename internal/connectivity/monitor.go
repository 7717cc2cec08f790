// Package connectivity tracks whether the remote data service is reachable.
//
// The Monitor only records state and notifies listeners when it changes; it
// never triggers refreshes itself. Probers are best effort: a prober may
// report online while the service is actually unreachable.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/clock"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/notify"
	"go.uber.org/zap"
)

const DefaultProbeTimeout = 5 * time.Second

type Prober interface {
	Probe(ctx context.Context) bool
}

type ProberFunc func(ctx context.Context) bool

func (f ProberFunc) Probe(ctx context.Context) bool {
	return f(ctx)
}

type State struct {
	Online       bool      `json:"online"`
	LastChangeAt time.Time `json:"lastChangeAt"`
}

type Option func(*Monitor)

func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

// WithInitialState sets the state assumed before the first sample.
// The default is online.
func WithInitialState(online bool) Option {
	return func(m *Monitor) {
		m.state.Online = online
	}
}

func WithProbeTimeout(timeout time.Duration) Option {
	return func(m *Monitor) {
		m.probeTimeout = timeout
	}
}

type Monitor struct {
	logger       *zap.Logger
	prober       Prober
	clock        clock.Clock
	probeTimeout time.Duration
	changes      *notify.Hub[State]

	mu       sync.Mutex
	state    State
	running  bool
	interval time.Duration
	timer    clock.Timer
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewMonitor(logger *zap.Logger, prober Prober, opts ...Option) *Monitor {
	m := &Monitor{
		logger:       logger,
		prober:       prober,
		clock:        clock.Real(),
		probeTimeout: DefaultProbeTimeout,
		changes:      notify.NewHub[State](logger),
		state:        State{Online: true},
	}

	for _, opt := range opts {
		opt(m)
	}

	m.state.LastChangeAt = m.clock.Now()

	return m
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.Online
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// CheckNow samples the prober, records the result and returns the current
// state.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	online := m.prober.Probe(ctx)

	m.SetOnline(online)

	return m.IsOnline()
}

// SetOnline records a reachability signal received from outside the
// prober. A change notification is emitted only when the state flips.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()

	if m.state.Online == online {
		m.mu.Unlock()

		return
	}

	m.state = State{
		Online:       online,
		LastChangeAt: m.clock.Now(),
	}
	state := m.state

	m.mu.Unlock()

	m.logger.Info("connectivity changed",
		zap.Bool("online", state.Online))

	m.changes.Publish(state)
}

// OnChange registers fn to be called after every state change.
func (m *Monitor) OnChange(fn func(State)) (unsubscribe func()) {
	return m.changes.Subscribe(fn)
}

// Start samples the prober every interval until Stop is called or ctx is
// done. Calling Start on a running monitor does nothing.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.running = true
	m.interval = interval
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.timer = m.clock.AfterFunc(interval, m.tick)
}

// Stop ends periodic sampling. Calling Stop on a stopped monitor does
// nothing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	m.running = false
	m.timer.Stop()
	m.cancel()
}

func (m *Monitor) tick() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()

		return
	}
	ctx := m.ctx
	m.mu.Unlock()

	if ctx.Err() == nil {
		probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
		m.CheckNow(probeCtx)
		cancel()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running && ctx.Err() == nil {
		m.timer = m.clock.AfterFunc(m.interval, m.tick)
	}
}
