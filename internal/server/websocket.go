package server

import (
	"context"
	"net/http"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/broadcaster"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/handler"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 16
)

type WebSocketServer struct {
	logger   *zap.Logger
	upgrader *websocket.Upgrader

	registry broadcaster.Registry
	router   *Router
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	registry broadcaster.Registry,
	router *Router,
) *WebSocketServer {
	return &WebSocketServer{
		logger,
		upgrader,
		registry,
		router,
	}
}

func (s *WebSocketServer) Register(router *mux.Router) {
	router.HandleFunc("/websocket", func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed",
				zap.Error(err))

			return
		}

		s.serve(conn, r.RemoteAddr)
	})
}

func (s *WebSocketServer) serve(conn *websocket.Conn, remoteAddr string) {
	connection := broadcaster.NewConnection(gonanoid.Must(), sendBufferSize)
	logger := s.logger.With(
		zap.String("connectionId", connection.Id),
		zap.String("remoteAddr", remoteAddr))

	logger.Info("websocket connection established")

	ctx, cancel := context.WithCancel(broadcaster.WithConnection(context.Background(), connection))
	responses := make(chan handler.Response, sendBufferSize)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer cancel()

		s.writePump(ctx, logger, conn, connection.Send, responses)
	}()

	s.readPump(ctx, logger, conn, responses)

	cancel()
	s.registry.Disconnect(connection.Id)
	<-done
	conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
	conn.Close()

	logger.Info("websocket connection closed")
}

// readPump routes every request read from conn. It returns when the peer
// goes away, sends something that is not a request, or ctx is done.
func (s *WebSocketServer) readPump(ctx context.Context, logger *zap.Logger, conn *websocket.Conn, responses chan<- handler.Response) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var request handler.Request
		err := conn.ReadJSON(&request)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read failed",
					zap.Error(err))
			}

			return
		}

		response := s.router.RouteRequest(ctx, request)
		if response == nil {
			continue
		}

		select {
		case responses <- *response:
		case <-ctx.Done():
			return
		}
	}
}

// writePump is the only writer of conn. It pushes commits as notifications,
// replies to requests and keeps the connection alive with pings.
func (s *WebSocketServer) writePump(
	ctx context.Context,
	logger *zap.Logger,
	conn *websocket.Conn,
	send <-chan broadcaster.Message,
	responses <-chan handler.Response,
) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var err error

		select {
		case <-ctx.Done():
			return

		case message, ok := <-send:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				conn.Close()

				return
			}

			var notification handler.Request
			notification, err = handler.NewNotification(message.Event, message)
			if err == nil {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				err = conn.WriteJSON(notification)
			}

		case response := <-responses:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteJSON(response)

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteMessage(websocket.PingMessage, nil)
		}

		if err != nil {
			logger.Debug("websocket write failed",
				zap.Error(err))

			conn.Close()

			return
		}
	}
}
