package realtime

import "context"

// Spec describes the channel a Transport should open.
type Spec struct {
	ID      string
	Name    string
	Filters []Filter
}

// Matches reports whether any filter of the spec selects change. A spec
// without filters selects nothing.
func (s Spec) Matches(change Change) bool {
	for _, f := range s.Filters {
		if f.Matches(change) {
			return true
		}
	}

	return false
}

type DeliverFunc func(ctx context.Context, change Change)

// Transport is the push-event collaborator. Open must start delivering
// changes selected by spec until the returned Stream is closed.
type Transport interface {
	Open(ctx context.Context, spec Spec, deliver DeliverFunc) (Stream, error)
	Reconnect(ctx context.Context) error
}

type Stream interface {
	Close(ctx context.Context) error
}
