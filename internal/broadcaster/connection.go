package broadcaster

import "context"

// Connection is one viewer. The registry closes Send when the viewer is
// disconnected.
type Connection struct {
	Id   string
	Send chan Message
}

func NewConnection(id string, buffer int) *Connection {
	return &Connection{
		Id:   id,
		Send: make(chan Message, buffer),
	}
}

type contextKey string

const connectionKey contextKey = "connection"

func WithConnection(ctx context.Context, conn *Connection) context.Context {
	return context.WithValue(ctx, connectionKey, conn)
}

func ConnectionFromContext(ctx context.Context) (*Connection, bool) {
	conn, ok := ctx.Value(connectionKey).(*Connection)

	return conn, ok
}
