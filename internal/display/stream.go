// Package display separates the value a screen shows from the latest value
// known to be true, so that bursts of updates produce at most one visible
// change per commit interval.
//
// Propose always updates the internal value. The display value follows
// either synchronously, when the stream is idle and the last commit is at
// least MinCommitInterval old, or from a trailing timer that commits the
// internal value as it is when the timer fires. Every Propose made while a
// commit is pending pushes that commit out by a full interval, so a
// continuous stream of updates can hold the display back indefinitely.
package display

import (
	"sync"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/clock"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/notify"
	"go.uber.org/zap"
)

const DefaultMinCommitInterval = 500 * time.Millisecond

type Option[T any] func(*Stream[T])

func WithMinCommitInterval[T any](interval time.Duration) Option[T] {
	return func(s *Stream[T]) {
		s.minCommitInterval = interval
	}
}

func WithClock[T any](c clock.Clock) Option[T] {
	return func(s *Stream[T]) {
		s.clock = c
	}
}

// WithEqual replaces ShallowEqual as the test for redundant proposals.
func WithEqual[T any](equal func(a, b T) bool) Option[T] {
	return func(s *Stream[T]) {
		s.equal = equal
	}
}

func WithLogger[T any](logger *zap.Logger) Option[T] {
	return func(s *Stream[T]) {
		s.logger = logger
	}
}

type Stream[T any] struct {
	logger            *zap.Logger
	clock             clock.Clock
	minCommitInterval time.Duration
	equal             func(a, b T) bool
	commits           *notify.Hub[T]

	mu         sync.Mutex
	internal   T
	display    T
	lastCommit time.Time
	timer      clock.Timer
	generation uint64
	closed     bool
}

// New returns a stream showing initial. The stream starts idle, so the first
// Propose commits synchronously.
func New[T any](initial T, opts ...Option[T]) *Stream[T] {
	s := &Stream[T]{
		logger:            zap.NewNop(),
		clock:             clock.Real(),
		minCommitInterval: DefaultMinCommitInterval,
		equal: func(a, b T) bool {
			return ShallowEqual(a, b)
		},
		internal: initial,
		display:  initial,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.commits = notify.NewHub[T](s.logger)

	return s
}

func (s *Stream[T]) Propose(value T) {
	s.mu.Lock()

	previous := s.internal
	s.internal = value

	if s.closed || s.equal(previous, value) {
		s.mu.Unlock()

		return
	}

	pending := s.stopTimerLocked()
	now := s.clock.Now()
	elapsed := now.Sub(s.lastCommit)

	if !pending && (s.lastCommit.IsZero() || elapsed >= s.minCommitInterval) {
		s.display = value
		s.lastCommit = now
		s.mu.Unlock()

		s.commits.Publish(value)

		return
	}

	delay := s.minCommitInterval
	if !pending {
		delay -= elapsed
	}

	s.generation++
	generation := s.generation
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(generation) })
	s.mu.Unlock()
}

// Internal returns the latest proposed value.
func (s *Stream[T]) Internal() T {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.internal
}

// Display returns the last committed value.
func (s *Stream[T]) Display() T {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.display
}

func (s *Stream[T]) LastCommit() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastCommit
}

// Pending reports whether a trailing commit is armed.
func (s *Stream[T]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.timer != nil
}

// OnCommit registers fn to receive every committed display value.
func (s *Stream[T]) OnCommit(fn func(T)) (unsubscribe func()) {
	return s.commits.Subscribe(fn)
}

// Close drops any pending commit. Later proposals update the internal value
// only.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.stopTimerLocked()
}

func (s *Stream[T]) fire(generation uint64) {
	s.mu.Lock()
	if s.closed || generation != s.generation {
		s.mu.Unlock()

		return
	}

	now := s.clock.Now()
	s.timer = nil
	s.display = s.internal
	s.lastCommit = now
	value := s.display
	s.mu.Unlock()

	s.logger.Debug("trailing commit applied",
		zap.Time("committedAt", now))

	s.commits.Publish(value)
}

// stopTimerLocked cancels the pending commit and reports whether there was
// one.
// IMPORTANT: It must be called only when the lock is already held.
func (s *Stream[T]) stopTimerLocked() bool {
	if s.timer == nil {
		return false
	}

	s.timer.Stop()
	s.timer = nil
	s.generation++

	return true
}
