// Package realtime owns the named push-channel subscriptions against remote
// change topics.
//
// The Registry is the only holder of live channel handles. Subscribing under
// an existing name tears the previous channel down first, so a page that
// re-mounts never leaks or duplicates a subscription.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/ierr"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultReconnectCooldown = 30 * time.Second

type Option func(*Registry)

// WithReconnectCooldown sets the minimum spacing of ReconnectNow calls that
// reach the transport.
func WithReconnectCooldown(cooldown time.Duration) Option {
	return func(r *Registry) {
		r.limiter = rate.NewLimiter(rate.Every(cooldown), 1)
	}
}

type Registry struct {
	logger    *zap.Logger
	transport Transport
	limiter   *rate.Limiter

	mu          sync.Mutex
	entries     map[string]*Channel
	generations map[string]uint64
	closed      bool
}

func NewRegistry(logger *zap.Logger, transport Transport, opts ...Option) *Registry {
	r := &Registry{
		logger:    logger,
		transport: transport,
		limiter:   rate.NewLimiter(rate.Every(DefaultReconnectCooldown), 1),
		entries:     make(map[string]*Channel),
		generations: make(map[string]uint64),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Subscribe builds a channel, lets configure attach its handlers, activates
// it and stores it under name. Any channel already stored under name is torn
// down before the new one is opened. When Unsubscribe or a later Subscribe
// for name runs while the channel is opening, the channel is released
// instead of stored.
func (r *Registry) Subscribe(ctx context.Context, name string, configure func(*Channel)) error {
	if name == "" {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("channel name is empty"))
	}

	channel := newChannel(name, r.logger)
	if configure != nil {
		configure(channel)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()

		return ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("registry is closed"))
	}

	prior := r.entries[name]
	delete(r.entries, name)
	r.generations[name]++
	generation := r.generations[name]
	r.mu.Unlock()

	if prior != nil {
		r.logger.Debug("replacing channel",
			zap.String("channel", name),
			zap.String("channelId", prior.ID()))

		r.release(ctx, prior)
	}

	channel.activate()

	stream, err := r.transport.Open(ctx, channel.spec(), channel.dispatch)
	if err != nil {
		channel.deactivate()

		return ierr.New(ierr.ErrorCodeUnavailable, fmt.Errorf("opening channel %v: %w", name, err))
	}

	channel.attach(stream)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.release(ctx, channel)

		return ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("registry is closed"))
	}

	if r.generations[name] != generation {
		r.mu.Unlock()
		r.release(ctx, channel)

		r.logger.Debug("channel superseded while opening",
			zap.String("channel", name),
			zap.String("channelId", channel.ID()))

		return nil
	}

	r.entries[name] = channel
	r.mu.Unlock()

	r.logger.Debug("channel subscribed",
		zap.String("channel", name),
		zap.String("channelId", channel.ID()))

	return nil
}

// Unsubscribe tears down and forgets the channel stored under name. It does
// nothing when there is none.
func (r *Registry) Unsubscribe(ctx context.Context, name string) {
	r.mu.Lock()
	channel, ok := r.entries[name]
	delete(r.entries, name)
	r.generations[name]++
	r.mu.Unlock()

	if !ok {
		return
	}

	r.release(ctx, channel)
}

// ReconnectNow forces the transport to re-establish its connection. It is
// meant for staleness detected by a health check, not for routine
// connectivity flaps, and is refused while the cooldown has not elapsed.
func (r *Registry) ReconnectNow(ctx context.Context) error {
	if !r.limiter.Allow() {
		return ierr.New(ierr.ErrorCodeResourceExhausted, errors.New("reconnect requested too soon"))
	}

	r.logger.Info("forcing transport reconnect")

	if err := r.transport.Reconnect(ctx); err != nil {
		return ierr.New(ierr.ErrorCodeUnavailable, fmt.Errorf("reconnecting transport: %w", err))
	}

	return nil
}

func (r *Registry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entries[name]

	return ok
}

func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Close tears down every channel. Later Subscribe calls fail.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	channels := make([]*Channel, 0, len(r.entries))
	for _, channel := range r.entries {
		channels = append(channels, channel)
	}
	r.entries = make(map[string]*Channel)
	r.mu.Unlock()

	var err error
	for _, channel := range channels {
		err = multierr.Append(err, r.teardown(ctx, channel))
	}

	return err
}

func (r *Registry) release(ctx context.Context, channel *Channel) {
	if err := r.teardown(ctx, channel); err != nil {
		r.logger.Warn("failed to close channel stream",
			zap.String("channel", channel.Name()),
			zap.Error(err))
	}
}

func (r *Registry) teardown(ctx context.Context, channel *Channel) error {
	stream := channel.deactivate()
	if stream == nil {
		return nil
	}

	if err := stream.Close(ctx); err != nil {
		return fmt.Errorf("closing channel %v: %w", channel.Name(), err)
	}

	return nil
}
