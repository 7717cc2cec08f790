package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/broadcaster"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/connectivity"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/dashboard"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/handler"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/persistence/mongodb"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/realtime"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/refresh"
	"github.com/WozaMali/woza-mali-office-new-sub000/internal/server"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type App struct {
	logger   *zap.Logger
	settings Settings

	client          *mongo.Client
	engine          *mongodb.PersistenceEngine
	monitor         *connectivity.Monitor
	channels        *realtime.Registry
	scheduler       *refresh.Scheduler
	board           *dashboard.Board
	stopForwarding  func()
	websocketServer *server.WebSocketServer
	restServer      *server.RESTServer
}

func NewApp(logger *zap.Logger, settings Settings, client *mongo.Client) *App {
	originChecker := server.NewOriginChecker(settings.Origins())
	websocketUpgrader := &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       originChecker.Check,
		EnableCompression: true,
	}

	tables := make([]string, len(dashboard.DefaultTables))
	for i, table := range dashboard.DefaultTables {
		tables[i] = table.Name
	}

	engine := mongodb.NewPersistenceEngine(client, settings.MongoDBDatabase, tables)
	monitor := connectivity.NewMonitor(logger.Named("connectivity"), mongodb.NewProber(client))
	channels := realtime.NewRegistry(
		logger.Named("realtime"),
		mongodb.NewChangeStreamTransport(logger.Named("changestream"), client, settings.MongoDBDatabase),
		realtime.WithReconnectCooldown(settings.ReconnectCooldown),
	)
	scheduler := refresh.NewScheduler(logger.Named("refresh"),
		refresh.WithInterval(settings.RefreshInterval))

	board := dashboard.NewBoard(
		logger.Named("dashboard"),
		"dashboard",
		engine,
		channels,
		scheduler,
		monitor,
		dashboard.WithMinReloadInterval(settings.MinReloadInterval),
		dashboard.WithMinCommitInterval(settings.MinCommitInterval),
	)

	viewerRegistry := broadcaster.NewInMemoryRegistry(logger)
	stopForwarding := broadcaster.Forward(viewerRegistry, board.Name(), board.Stream())

	streamNameValidator := handler.NewStreamNameValidator()
	catalog := handler.NewBoardCatalog(board)

	heartbeatHandler := handler.NewHeartbeatHandler(monitor)
	subscribeHandler := handler.NewSubscribeHandler(streamNameValidator, catalog, viewerRegistry)
	unsubscribeHandler := handler.NewUnsubscribeHandler(streamNameValidator, viewerRegistry)
	streamHandler := handler.NewStreamHandler(streamNameValidator, catalog)
	refreshHandler := handler.NewRefreshHandler(streamNameValidator, catalog)
	statusHandler := handler.NewStatusHandler(monitor, channels, viewerRegistry, catalog)
	reconnectHandler := handler.NewReconnectHandler(channels)

	router := server.NewRouter(
		logger,
		heartbeatHandler,
		subscribeHandler,
		unsubscribeHandler,
		streamHandler,
		refreshHandler,
		statusHandler,
	)

	websocketServer := server.NewWebSocketServer(
		logger,
		websocketUpgrader,
		viewerRegistry,
		router,
	)
	restServer := server.NewRESTServer(
		logger,
		streamHandler,
		refreshHandler,
		statusHandler,
		reconnectHandler,
	)

	return &App{
		logger,
		settings,
		client,
		engine,
		monitor,
		channels,
		scheduler,
		board,
		stopForwarding,
		websocketServer,
		restServer,
	}
}

func (a *App) setup(ctx context.Context) error {
	err := a.engine.Setup(ctx)
	if err != nil {
		return fmt.Errorf("setting up persistence: %w", err)
	}

	a.monitor.Start(ctx, a.settings.ConnectivityInterval)

	err = a.board.Open(ctx)
	if err != nil {
		return fmt.Errorf("opening dashboard: %w", err)
	}

	a.startHttpServer(ctx)

	return nil
}

func (a *App) startHttpServer(ctx context.Context) {
	notifyCtx, notifyCtxCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer notifyCtxCancel()

	address := fmt.Sprintf("0.0.0.0:%d", a.settings.Port)

	router := mux.NewRouter().
		PathPrefix(a.settings.BasePath).
		Subrouter()

	a.websocketServer.Register(router)
	a.restServer.Register(router)

	httpServer := &http.Server{
		Addr:    address,
		Handler: router,
	}

	a.logger.Info("starting http server",
		zap.String("address", address))

	go func() {
		err := httpServer.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("failed to start http server",
				zap.Error(err))
		}
	}()

	<-notifyCtx.Done()

	a.logger.Info("stopping http server")

	shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCtxCancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http server shutdown failed",
			zap.Error(err))
	}

	a.logger.Info("http server stopped")

	err = a.shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("shutdown failed",
			zap.Error(err))
	}
}

// shutdown releases everything setup acquired, in reverse order.
func (a *App) shutdown(ctx context.Context) error {
	err := a.board.Close(ctx)

	a.stopForwarding()
	a.board.Stream().Close()
	a.scheduler.Close()
	a.monitor.Stop()

	err = multierr.Append(err, a.channels.Close(ctx))
	err = multierr.Append(err, a.client.Disconnect(ctx))

	return err
}

func main() {
	ctx := context.Background()

	var settings Settings
	_, err := env.UnmarshalFromEnviron(&settings)
	if err != nil {
		panic(fmt.Errorf("failed to parse settings from environment: %w", err))
	}

	logger, err := buildZapLogger(settings.LogEncoding, settings.LogLevel)
	if err != nil {
		panic(fmt.Errorf("failed to build logger: %w", err))
	}
	defer logger.Sync()

	client, err := mongo.Connect(options.Client().ApplyURI(settings.MongoDBURI))
	if err != nil {
		logger.Fatal("failed to connect to mongodb", zap.Error(err))
	}

	app := NewApp(logger, settings, client)

	err = app.setup(ctx)
	if err != nil {
		logger.Fatal("failed to setup", zap.Error(err))
	}
}
