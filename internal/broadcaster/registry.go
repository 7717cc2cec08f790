package broadcaster

import (
	"errors"
	"sync"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/ierr"
	"go.uber.org/zap"
)

type Registry interface {
	Broadcast(message Message)
	Register(stream string, connection Connection) error
	Unregister(stream string, connectionId string)
	Disconnect(connectionId string)
	Viewers(stream string) int
}

// InMemoryRegistry tracks which viewer connections watch which display
// streams.
type InMemoryRegistry struct {
	logger *zap.Logger
	mu     sync.RWMutex

	connections         map[string]Connection
	connectionsByStream map[string]map[string]struct{}
	streamsByConnection map[string]map[string]struct{}
}

func NewInMemoryRegistry(
	logger *zap.Logger,
) *InMemoryRegistry {
	return &InMemoryRegistry{
		logger:              logger,
		connections:         make(map[string]Connection),
		connectionsByStream: make(map[string]map[string]struct{}),
		streamsByConnection: make(map[string]map[string]struct{}),
	}
}

// Broadcast hands message to every viewer of its stream without blocking.
// Viewers whose send buffer is full are disconnected.
func (r *InMemoryRegistry) Broadcast(message Message) {
	r.mu.RLock()

	connectionIds, ok := r.connectionsByStream[message.Stream]
	if !ok {
		r.mu.RUnlock()

		return
	}

	var staleConnectionIds []string

	for connectionId := range connectionIds {
		connection, ok := r.connections[connectionId]
		if !ok {
			continue
		}

		select {
		case connection.Send <- message:
		default:
			r.logger.Warn("viewer send buffer is full, closing connection",
				zap.String("connectionId", connection.Id),
				zap.String("stream", message.Stream))

			staleConnectionIds = append(staleConnectionIds, connection.Id)
		}
	}

	r.mu.RUnlock()

	if len(staleConnectionIds) == 0 {
		return
	}

	r.mu.Lock()

	for _, connectionId := range staleConnectionIds {
		r.disconnectLocked(connectionId)
	}

	r.mu.Unlock()
}

func (r *InMemoryRegistry) Register(stream string, connection Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connectionsByStream[stream]; !ok {
		r.connectionsByStream[stream] = make(map[string]struct{})
	}

	if _, ok := r.connectionsByStream[stream][connection.Id]; ok {
		return ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("connection already subscribed to stream"))
	}

	r.connectionsByStream[stream][connection.Id] = struct{}{}
	r.connections[connection.Id] = connection

	if _, ok := r.streamsByConnection[connection.Id]; !ok {
		r.streamsByConnection[connection.Id] = make(map[string]struct{})
	}

	r.streamsByConnection[connection.Id][stream] = struct{}{}

	return nil
}

// Unregister removes one subscription. The connection's send channel stays
// open even when it was the last one.
func (r *InMemoryRegistry) Unregister(stream string, connectionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connectionStreams, ok := r.streamsByConnection[connectionId]
	if !ok {
		return
	}

	if _, ok := connectionStreams[stream]; !ok {
		return
	}

	delete(connectionStreams, stream)
	if len(connectionStreams) == 0 {
		delete(r.streamsByConnection, connectionId)
		delete(r.connections, connectionId)
	}

	r.removeViewerLocked(stream, connectionId)
}

func (r *InMemoryRegistry) Disconnect(connectionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.disconnectLocked(connectionId)
}

func (r *InMemoryRegistry) Viewers(stream string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.connectionsByStream[stream])
}

// IMPORTANT: It must be called only when a write lock is already held.
func (r *InMemoryRegistry) disconnectLocked(connectionId string) {
	connection, ok := r.connections[connectionId]
	if !ok {
		return
	}

	connectionStreams, ok := r.streamsByConnection[connectionId]
	if !ok {
		panic("inconsistent state: connection not found in streamsByConnection")
	}

	for stream := range connectionStreams {
		r.removeViewerLocked(stream, connectionId)
	}

	delete(r.streamsByConnection, connectionId)
	delete(r.connections, connectionId)
	close(connection.Send)
}

// IMPORTANT: It must be called only when a write lock is already held.
func (r *InMemoryRegistry) removeViewerLocked(stream string, connectionId string) {
	streamConnections, ok := r.connectionsByStream[stream]
	if !ok {
		panic("inconsistent state: stream not found in connectionsByStream")
	}

	delete(streamConnections, connectionId)
	if len(streamConnections) == 0 {
		delete(r.connectionsByStream, stream)
	}
}
