package realtime

import (
	"context"
	"sync"
)

// MemoryTransport is an in-process Transport. Published changes are
// delivered synchronously to every open stream whose spec selects them.
type MemoryTransport struct {
	mu sync.RWMutex

	streams    map[string]*memoryStream
	reconnects int
}

type memoryStream struct {
	transport *MemoryTransport
	spec      Spec
	deliver   DeliverFunc
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		streams: make(map[string]*memoryStream),
	}
}

func (t *MemoryTransport) Open(ctx context.Context, spec Spec, deliver DeliverFunc) (Stream, error) {
	stream := &memoryStream{
		transport: t,
		spec:      spec,
		deliver:   deliver,
	}

	t.mu.Lock()
	t.streams[spec.ID] = stream
	t.mu.Unlock()

	return stream, nil
}

func (t *MemoryTransport) Reconnect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.reconnects++

	return nil
}

// Publish delivers change to the matching open streams and returns how many
// received it.
func (t *MemoryTransport) Publish(ctx context.Context, change Change) int {
	t.mu.RLock()
	streams := make([]*memoryStream, 0, len(t.streams))
	for _, stream := range t.streams {
		if stream.spec.Matches(change) {
			streams = append(streams, stream)
		}
	}
	t.mu.RUnlock()

	for _, stream := range streams {
		stream.deliver(ctx, change)
	}

	return len(streams)
}

// Streams returns the number of open streams.
func (t *MemoryTransport) Streams() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.streams)
}

func (t *MemoryTransport) Reconnects() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.reconnects
}

func (s *memoryStream) Close(ctx context.Context) error {
	s.transport.mu.Lock()
	defer s.transport.mu.Unlock()

	delete(s.transport.streams, s.spec.ID)

	return nil
}
