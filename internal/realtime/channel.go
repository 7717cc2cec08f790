package realtime

import (
	"context"
	"fmt"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

type binding struct {
	filter  Filter
	handler Handler
}

// Channel is a named subscription to remote change events. Channels are
// created by the Registry and handed to the configure function passed to
// Registry.Subscribe; only the Registry activates and tears them down.
type Channel struct {
	id     string
	name   string
	logger *zap.Logger

	mu       sync.RWMutex
	bindings []binding
	active   bool
	stream   Stream
}

func newChannel(name string, logger *zap.Logger) *Channel {
	id := gonanoid.Must()

	return &Channel{
		id:     id,
		name:   name,
		logger: logger.With(zap.String("channel", name), zap.String("channelId", id)),
	}
}

func (c *Channel) ID() string {
	return c.id
}

func (c *Channel) Name() string {
	return c.name
}

func (c *Channel) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.active
}

// On attaches handler to changes of the given kind on table. An empty table
// matches every table. Bindings must be attached inside configure; the
// transport filter is fixed once the channel is active.
func (c *Channel) On(kind Kind, table string, handler Handler) *Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bindings = append(c.bindings, binding{
		filter:  Filter{Kind: kind, Table: table},
		handler: handler,
	})

	return c
}

func (c *Channel) spec() Spec {
	c.mu.RLock()
	defer c.mu.RUnlock()

	filters := make([]Filter, len(c.bindings))
	for i, b := range c.bindings {
		filters[i] = b.filter
	}

	return Spec{
		ID:      c.id,
		Name:    c.name,
		Filters: filters,
	}
}

func (c *Channel) activate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = true
}

func (c *Channel) attach(stream Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stream = stream
}

// deactivate marks the channel inactive and hands back its stream exactly
// once.
func (c *Channel) deactivate() Stream {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = false
	stream := c.stream
	c.stream = nil

	return stream
}

// dispatch runs every matching handler. Errors and panics stay here.
func (c *Channel) dispatch(ctx context.Context, change Change) {
	c.mu.RLock()
	if !c.active {
		c.mu.RUnlock()

		return
	}

	handlers := make([]Handler, 0, len(c.bindings))
	for _, b := range c.bindings {
		if b.filter.Matches(change) {
			handlers = append(handlers, b.handler)
		}
	}
	c.mu.RUnlock()

	for _, handler := range handlers {
		c.invoke(ctx, handler, change)
	}
}

func (c *Channel) invoke(ctx context.Context, handler Handler, change Change) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("change handler panicked",
				zap.String("table", change.Table),
				zap.String("kind", string(change.Kind)),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()

	if err := handler(ctx, change); err != nil {
		c.logger.Error("change handler failed",
			zap.String("table", change.Table),
			zap.String("kind", string(change.Kind)),
			zap.Error(err))
	}
}
