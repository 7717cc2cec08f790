package server

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/WozaMali/woza-mali-office-new-sub000/internal/broadcaster"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/clock"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/connectivity"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/dashboard"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/handler"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/persistence"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/realtime"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/refresh"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type environment struct {
	clock    *clock.Fake
	engine   *persistence.MockEngine
	board    *dashboard.Board
	registry *broadcaster.InMemoryRegistry
	server   *httptest.Server
}

func expectLoad(engine *persistence.MockEngine, users int64) {
	engine.On("Count", mock.Anything, "users").Return(users, nil).Once()
	engine.On("Sum", mock.Anything, "users", "balance").Return(decimal.NewFromInt(users*10), nil).Once()
}

func newEnvironment(t *testing.T) *environment {
	logger := zap.NewNop()
	c := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	engine := persistence.NewMockEngine(t)

	monitor := connectivity.NewMonitor(logger,
		connectivity.ProberFunc(func(ctx context.Context) bool { return true }),
		connectivity.WithClock(c))
	channels := realtime.NewRegistry(logger, realtime.NewMemoryTransport())
	scheduler := refresh.NewScheduler(logger, refresh.WithClock(c))
	t.Cleanup(scheduler.Close)

	board := dashboard.NewBoard(logger, "dashboard", engine, channels, scheduler, monitor,
		dashboard.WithClock(c),
		dashboard.WithTables(dashboard.Table{Name: "users", SumField: "balance"}),
		dashboard.WithRecent("", 0))

	registry := broadcaster.NewInMemoryRegistry(logger)
	t.Cleanup(broadcaster.Forward(registry, board.Name(), board.Stream()))

	expectLoad(engine, 1)
	require.NoError(t, board.Open(context.Background()))

	validator := handler.NewStreamNameValidator()
	catalog := handler.NewBoardCatalog(board)
	streamHandler := handler.NewStreamHandler(validator, catalog)
	refreshHandler := handler.NewRefreshHandler(validator, catalog)
	statusHandler := handler.NewStatusHandler(monitor, channels, registry, catalog)

	router := NewRouter(
		logger,
		handler.NewHeartbeatHandler(monitor),
		handler.NewSubscribeHandler(validator, catalog, registry),
		handler.NewUnsubscribeHandler(validator, registry),
		streamHandler,
		refreshHandler,
		statusHandler,
	)

	mainRouter := mux.NewRouter()
	NewWebSocketServer(logger, &websocket.Upgrader{}, registry, router).Register(mainRouter)
	NewRESTServer(logger, streamHandler, refreshHandler, statusHandler, handler.NewReconnectHandler(channels)).Register(mainRouter)

	server := httptest.NewServer(mainRouter)
	t.Cleanup(server.Close)

	return &environment{c, engine, board, registry, server}
}
