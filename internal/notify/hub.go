// Package notify provides a typed observer list used for in-process
// notifications such as connectivity changes and refresh completions.
package notify

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type listener[T any] struct {
	fn func(T)
}

// Hub delivers published values to every subscribed listener, synchronously
// and in subscription order. A panicking listener is logged and skipped.
type Hub[T any] struct {
	logger *zap.Logger
	mu     sync.RWMutex

	listeners []*listener[T]
}

func NewHub[T any](logger *zap.Logger) *Hub[T] {
	return &Hub[T]{
		logger: logger,
	}
}

// Subscribe registers fn and returns a function that removes it. The returned
// function may be called any number of times.
func (h *Hub[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	l := &listener[T]{fn: fn}

	h.mu.Lock()
	h.listeners = append(h.listeners, l)
	h.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			h.remove(l)
		})
	}
}

func (h *Hub[T]) Publish(value T) {
	h.mu.RLock()
	listeners := make([]*listener[T], len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.RUnlock()

	for _, l := range listeners {
		h.deliver(l, value)
	}
}

func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.listeners)
}

func (h *Hub[T]) deliver(l *listener[T], value T) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("notification listener panicked",
				zap.String("panic", fmt.Sprint(r)))
		}
	}()

	l.fn(value)
}

func (h *Hub[T]) remove(l *listener[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, candidate := range h.listeners {
		if candidate == l {
			h.listeners = append(h.listeners[:i:i], h.listeners[i+1:]...)

			return
		}
	}
}
