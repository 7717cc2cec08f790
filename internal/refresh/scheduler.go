// Package refresh runs consumer refresh callbacks on a periodic cadence and
// on demand.
//
// Each consumer key owns one periodic timer, started by its first callback
// and cleared with its last. At most one pass runs per key: a trigger that
// arrives while a pass is in flight is dropped, not queued. A pass runs every
// callback independently and waits for all of them to settle; failures are
// logged and never reach the caller.
package refresh

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/clock"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/notify"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultInterval = 30 * time.Second

// Callback is a registered refresh function. Identity is the pointer:
// registering the same *Callback twice is a no-op.
type Callback struct {
	name string
	fn   func(ctx context.Context) error
}

func NewCallback(name string, fn func(ctx context.Context) error) *Callback {
	return &Callback{
		name: name,
		fn:   fn,
	}
}

func (c *Callback) Name() string {
	return c.name
}

// Completion is published once per executed pass, after every callback
// settled.
type Completion struct {
	ConsumerKey string    `json:"consumerKey"`
	Timestamp   time.Time `json:"timestamp"`
	Sequence    uint64    `json:"sequence"`
	Forced      bool      `json:"forced"`
	Failures    int       `json:"failures"`
}

type consumer struct {
	key       string
	callbacks []*Callback
	timer     clock.Timer
}

// pass is the execution state of a key. It outlives the key's registration
// so that a key removed and registered again while a pass runs still sees
// that pass as in flight.
type pass struct {
	inFlight       bool
	userRefreshing bool
	lastRunAt      time.Time
	sequence       uint64
}

type Option func(*Scheduler)

func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = interval
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

type Scheduler struct {
	logger      *zap.Logger
	clock       clock.Clock
	interval    time.Duration
	completions *notify.Hub[Completion]

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	consumers map[string]*consumer
	passes    map[string]*pass
	closed    bool
}

func NewScheduler(logger *zap.Logger, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		logger:      logger,
		clock:       clock.Real(),
		interval:    DefaultInterval,
		completions: notify.NewHub[Completion](logger),
		ctx:         ctx,
		cancel:      cancel,
		consumers:   make(map[string]*consumer),
		passes:      make(map[string]*pass),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// StartBackgroundRefresh registers cb under key. The first callback for a
// key starts its periodic timer.
func (s *Scheduler) StartBackgroundRefresh(key string, cb *Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	c, ok := s.consumers[key]
	if !ok {
		c = &consumer{key: key}
		c.timer = s.clock.AfterFunc(s.interval, func() { s.tick(c) })
		s.consumers[key] = c

		s.logger.Debug("background refresh started",
			zap.String("consumerKey", key),
			zap.Duration("interval", s.interval))
	}

	for _, registered := range c.callbacks {
		if registered == cb {
			return
		}
	}

	c.callbacks = append(c.callbacks, cb)
}

// RemoveCallback deregisters cb. Removing the last callback of a key clears
// its timer; removing an unknown callback does nothing.
func (s *Scheduler) RemoveCallback(key string, cb *Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.consumers[key]
	if !ok {
		return
	}

	for i, registered := range c.callbacks {
		if registered == cb {
			c.callbacks = append(c.callbacks[:i:i], c.callbacks[i+1:]...)

			break
		}
	}

	if len(c.callbacks) > 0 {
		return
	}

	c.timer.Stop()
	delete(s.consumers, key)

	s.logger.Debug("background refresh stopped",
		zap.String("consumerKey", key))
}

// ForceRefresh runs every callback of key now and waits for them to settle.
// It returns false when key is unknown or a pass is already in flight.
func (s *Scheduler) ForceRefresh(ctx context.Context, key string) bool {
	s.mu.Lock()
	c, ok := s.consumers[key]
	s.mu.Unlock()

	if !ok {
		return false
	}

	return s.run(ctx, c, true)
}

// IsUserRefreshing reports whether a ForceRefresh pass is in flight for key.
func (s *Scheduler) IsUserRefreshing(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.passes[key]

	return ok && p.userRefreshing
}

// LastRunAt returns when the last pass for key settled.
func (s *Scheduler) LastRunAt(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, registered := s.consumers[key]
	p, ok := s.passes[key]
	if !registered || !ok || p.lastRunAt.IsZero() {
		return time.Time{}, false
	}

	return p.lastRunAt, true
}

// OnComplete registers fn to be called after every executed pass.
func (s *Scheduler) OnComplete(fn func(Completion)) (unsubscribe func()) {
	return s.completions.Subscribe(fn)
}

func (s *Scheduler) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.consumers))
	for key := range s.consumers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}

// Close clears every timer and cancels the context of periodic passes.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	for key, c := range s.consumers {
		c.timer.Stop()
		delete(s.consumers, key)
	}

	s.cancel()
}

func (s *Scheduler) tick(c *consumer) {
	s.mu.Lock()
	if s.consumers[c.key] != c {
		s.mu.Unlock()

		return
	}

	c.timer = s.clock.AfterFunc(s.interval, func() { s.tick(c) })
	s.mu.Unlock()

	s.run(s.ctx, c, false)
}

func (s *Scheduler) run(ctx context.Context, c *consumer, forced bool) bool {
	s.mu.Lock()
	p := s.passLocked(c.key)
	if p.inFlight {
		s.mu.Unlock()

		s.logger.Debug("refresh already in flight, dropping trigger",
			zap.String("consumerKey", c.key),
			zap.Bool("forced", forced))

		return false
	}

	p.inFlight = true
	p.userRefreshing = forced
	p.sequence++
	sequence := p.sequence
	callbacks := make([]*Callback, len(c.callbacks))
	copy(callbacks, c.callbacks)
	s.mu.Unlock()

	err := s.execute(WithSequence(ctx, sequence), callbacks)
	now := s.clock.Now()

	s.mu.Lock()
	p.inFlight = false
	p.userRefreshing = false
	p.lastRunAt = now
	s.mu.Unlock()

	failures := multierr.Errors(err)
	for _, failure := range failures {
		s.logger.Error("refresh callback failed",
			zap.String("consumerKey", c.key),
			zap.Uint64("sequence", sequence),
			zap.Error(failure))
	}

	s.completions.Publish(Completion{
		ConsumerKey: c.key,
		Timestamp:   now,
		Sequence:    sequence,
		Forced:      forced,
		Failures:    len(failures),
	})

	return true
}

// IMPORTANT: It must be called only when s.mu is already held.
func (s *Scheduler) passLocked(key string) *pass {
	p, ok := s.passes[key]
	if !ok {
		p = &pass{}
		s.passes[key] = p
	}

	return p
}

// execute runs every callback concurrently and returns their combined
// failures once all of them have settled.
func (s *Scheduler) execute(ctx context.Context, callbacks []*Callback) error {
	errs := make([]error, len(callbacks))

	var g errgroup.Group
	for i, cb := range callbacks {
		g.Go(func() error {
			errs[i] = invoke(ctx, cb)

			return nil
		})
	}
	_ = g.Wait()

	return multierr.Combine(errs...)
}

func invoke(ctx context.Context, cb *Callback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback %v panicked: %v", cb.name, r)
		}
	}()

	if err := cb.fn(ctx); err != nil {
		return fmt.Errorf("callback %v: %w", cb.name, err)
	}

	return nil
}
