package refresh

import (
	"context"
	"sync"
)

type sequenceKey struct{}

// WithSequence tags ctx with the sequence number of the pass it belongs to.
func WithSequence(ctx context.Context, sequence uint64) context.Context {
	return context.WithValue(ctx, sequenceKey{}, sequence)
}

func SequenceFromContext(ctx context.Context) (uint64, bool) {
	sequence, ok := ctx.Value(sequenceKey{}).(uint64)

	return sequence, ok
}

// Sequencer hands out monotonically increasing tags per key so that a fetch
// which resolves after a newer one started can be recognised and dropped.
type Sequencer struct {
	mu     sync.Mutex
	latest map[string]uint64
}

func NewSequencer() *Sequencer {
	return &Sequencer{
		latest: make(map[string]uint64),
	}
}

func (s *Sequencer) Next(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest[key]++

	return s.latest[key]
}

func (s *Sequencer) IsLatest(key string, sequence uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.latest[key] == sequence
}
