package server

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/broadcaster"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/handler"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/ierr"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, env *environment) *websocket.Conn {
	t.Helper()

	u, _ := url.Parse(env.server.URL)
	u.Scheme = "ws"
	u.Path = "/websocket"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func call(t *testing.T, conn *websocket.Conn, request string) handler.Response {
	t.Helper()

	require.NoError(t, conn.WriteJSON(json.RawMessage(request)))

	var response handler.Response
	conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&response))

	return response
}

func TestWebSocketServer(t *testing.T) {
	t.Run("subscribe and receive commits", func(t *testing.T) {
		env := newEnvironment(t)
		conn := dial(t, env)

		heartbeat := call(t, conn, `{"id":1,"method":"heartbeat"}`)
		assert.Equal(t, 1, heartbeat.RequestId)
		assert.False(t, heartbeat.IsFailure())

		subscribe := call(t, conn, `{"id":2,"method":"subscribe","params":{"stream":"dashboard"}}`)
		require.False(t, subscribe.IsFailure())

		var subscribeResponse handler.SubscribeResponse
		require.NoError(t, json.Unmarshal(*subscribe.Result, &subscribeResponse))
		assert.NotEmpty(t, subscribeResponse.SubscriptionId)
		assert.Equal(t, int64(1), subscribeResponse.Display.Counts["users"])
		assert.Equal(t, 1, env.registry.Viewers("dashboard"))

		env.clock.Advance(time.Second)
		expectLoad(env.engine, 5)
		require.NoError(t, env.board.Reload(context.Background(), true))

		var notification handler.Request
		conn.SetReadDeadline(time.Now().Add(time.Second))
		require.NoError(t, conn.ReadJSON(&notification))
		assert.Equal(t, broadcaster.EventCommit, notification.Method)
		assert.False(t, notification.ReplyExpected())

		var message broadcaster.Message
		require.NoError(t, json.Unmarshal(*notification.Params, &message))
		assert.Equal(t, "dashboard", message.Stream)
		assert.Equal(t, uint64(2), message.Seq)
		assert.Equal(t, float64(5), message.Payload.(map[string]any)["counts"].(map[string]any)["users"])

		unsubscribe := call(t, conn, `{"id":3,"method":"unsubscribe","params":{"stream":"dashboard"}}`)
		assert.False(t, unsubscribe.IsFailure())
		assert.Equal(t, 0, env.registry.Viewers("dashboard"))
	})

	t.Run("stream and status", func(t *testing.T) {
		env := newEnvironment(t)
		conn := dial(t, env)

		stream := call(t, conn, `{"id":1,"method":"stream","params":{"stream":"dashboard"}}`)
		require.False(t, stream.IsFailure())

		var streamResponse handler.StreamResponse
		require.NoError(t, json.Unmarshal(*stream.Result, &streamResponse))
		assert.Equal(t, "dashboard", streamResponse.Stream)
		assert.False(t, streamResponse.Pending)

		status := call(t, conn, `{"id":2,"method":"status"}`)
		require.False(t, status.IsFailure())

		var statusResponse handler.StatusResponse
		require.NoError(t, json.Unmarshal(*status.Result, &statusResponse))
		assert.True(t, statusResponse.Connectivity.Online)
	})

	t.Run("request errors", func(t *testing.T) {
		env := newEnvironment(t)
		conn := dial(t, env)

		response := call(t, conn, `{"id":1,"method":"publish","params":{}}`)
		require.True(t, response.IsFailure())
		assert.Equal(t, ierr.ErrorCodeNotFound, response.Error.Code)

		response = call(t, conn, `{"id":2,"method":"subscribe"}`)
		require.True(t, response.IsFailure())
		assert.Equal(t, ierr.ErrorCodeInvalidArgument, response.Error.Code)

		response = call(t, conn, `{"id":3,"method":"subscribe","params":{"stream":"payments"}}`)
		require.True(t, response.IsFailure())
		assert.Equal(t, ierr.ErrorCodeNotFound, response.Error.Code)

		response = call(t, conn, `{"id":4,"method":"subscribe","params":{"stream":"dashboard"}}`)
		require.False(t, response.IsFailure())

		response = call(t, conn, `{"id":5,"method":"subscribe","params":{"stream":"dashboard"}}`)
		require.True(t, response.IsFailure())
		assert.Equal(t, ierr.ErrorCodeFailedPrecondition, response.Error.Code)
	})

	t.Run("invalid json closes the connection", func(t *testing.T) {
		env := newEnvironment(t)
		conn := dial(t, env)

		response := call(t, conn, `{"id":1,"method":"subscribe","params":{"stream":"dashboard"}}`)
		require.False(t, response.IsFailure())
		assert.Equal(t, 1, env.registry.Viewers("dashboard"))

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":`)))

		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, _, err := conn.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNoStatusReceived))

		assert.Eventually(t, func() bool {
			return env.registry.Viewers("dashboard") == 0
		}, time.Second, 10*time.Millisecond)
	})
}
