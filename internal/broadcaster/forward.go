package broadcaster

import (
	"sync/atomic"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/display"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Forward broadcasts every commit of stream to the viewers of name until the
// returned function is called.
func Forward[T any](registry Registry, name string, stream *display.Stream[T]) (stop func()) {
	var seq atomic.Uint64

	return stream.OnCommit(func(value T) {
		registry.Broadcast(Message{
			Id:         gonanoid.Must(),
			Seq:        seq.Add(1),
			CreateTime: time.Now(),
			Stream:     name,
			Event:      EventCommit,
			Payload:    value,
		})
	})
}
