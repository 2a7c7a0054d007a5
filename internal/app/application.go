package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"classhub/internal/api"
	"classhub/internal/config"
	"classhub/internal/database"
	"classhub/internal/hub"
	"classhub/internal/identity"
	"classhub/internal/metrics"
	"classhub/internal/router"
	"classhub/internal/session"
	"classhub/internal/video"
	"classhub/internal/websocket"
	pkgdatabase "classhub/pkg/database"
)

// ARCHITECTURAL DISCOVERY: Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	logger     *zap.Logger
	metrics    *metrics.Metrics
	dbManager  *database.Manager
	classes    *session.Manager
	provider   *identity.Provider
	registry   *websocket.Registry
	messageHub *hub.Hub
	router     *router.Router
	scheduler  *Scheduler
	apiServer  *api.Server
	httpServer *http.Server

	unsubscribe func()

	mu       sync.Mutex
	listener net.Listener
	serveErr chan error
}

// NewApplication wires every component over one database manager.
// FUNCTIONAL DISCOVERY: Component initialization follows strict dependency order:
// Database → Identity → Lifecycle → Hub → Router → Registry → API → HTTP
func NewApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := metrics.New()

	// STEP 1: Initialize database manager (foundation layer)
	dbManager, err := database.NewManager(cfg.DatabaseSettings(), cfg.Database.Timeout, logger.Named("database"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 1.5: Apply database migrations to ensure schema is up to date
	// FUNCTIONAL DISCOVERY: Migrations run to completion even after a startup signal
	if cfg.Database.AutoMigrate {
		migrator := pkgdatabase.NewMigrator(dbManager.GetDB().DB, cfg.Database.Driver, logger.Named("migrations"))
		if err := migrator.Up(context.WithoutCancel(ctx)); err != nil {
			_ = dbManager.Close()
			return nil, fmt.Errorf("failed to apply database migrations: %w", err)
		}
		logger.Info("Database migrations applied")
	}

	// STEP 2: Identity provider and lifecycle controller over the same store
	provider, err := identity.NewProvider(dbManager, identity.Config{
		Secret:     cfg.Auth.Secret,
		TokenTTL:   cfg.Auth.TokenTTL,
		BcryptCost: cfg.Auth.BcryptCost,
		Issuer:     cfg.Auth.Issuer,
	}, logger.Named("identity"))
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to initialize identity provider: %w", err)
	}

	classes := session.NewManager(dbManager, session.Config{
		EnforceStartWindow: cfg.Lifecycle.EnforceStartWindow,
		EarlyStartGrace:    cfg.Lifecycle.EarlyStartGrace,
		DashboardLimit:     cfg.Lifecycle.DashboardLimit,
	}, logger.Named("session"), m)

	// STEP 3: Push channel and send pipeline
	messageHub := hub.NewHub(logger.Named("hub"), m)
	messageRouter := router.NewRouter(classes, dbManager, messageHub, cfg.Chat.RateLimitPerMinute, logger.Named("router"), m)

	// STEP 4: Socket registry hears lifecycle changes and sign-outs
	registry := websocket.NewRegistry(logger.Named("websocket"), m)
	classes.SetNotifier(registry)
	unsubscribe := provider.OnSessionChange(registry.HandleSessionEvent)

	wsConfig := websocket.DefaultConfig()
	wsConfig.ReadTimeout = cfg.WebSocket.ReadTimeout
	wsConfig.PingInterval = cfg.WebSocket.PingInterval
	wsConfig.WriteTimeout = cfg.WebSocket.WriteTimeout
	wsConfig.MaxFrameBytes = cfg.WebSocket.MaxFrameBytes
	wsConfig.HistoryTimeout = cfg.Chat.HistoryTimeout
	wsConfig.LookupTimeout = cfg.Chat.LookupTimeout
	wsHandler := websocket.NewHandler(registry, websocket.Deps{
		Auth:       provider,
		Access:     classes,
		Subscriber: messageHub,
		History:    dbManager,
		Sender:     messageRouter,
		Authors:    dbManager,
	}, wsConfig, logger.Named("websocket"), m)

	// STEP 5: Optional video rooms
	var rooms *video.Rooms
	if cfg.Video.Tenant != "" {
		rooms, err = video.NewRooms(video.Config{Domain: cfg.Video.Domain, Tenant: cfg.Video.Tenant})
		if err != nil {
			unsubscribe()
			_ = dbManager.Close()
			return nil, fmt.Errorf("failed to configure video: %w", err)
		}
	}

	// STEP 6: HTTP surface with both API and WebSocket endpoints
	apiServer := api.NewServer(api.Deps{
		Identity:  provider,
		Classes:   classes,
		Sender:    messageRouter,
		History:   dbManager,
		Registry:  registry,
		Health:    dbManager,
		Rooms:     rooms,
		WebSocket: http.HandlerFunc(wsHandler.HandleWebSocket),
	}, logger.Named("api"), m)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		logger:      logger,
		metrics:     m,
		dbManager:   dbManager,
		classes:     classes,
		provider:    provider,
		registry:    registry,
		messageHub:  messageHub,
		router:      messageRouter,
		scheduler:   NewScheduler(messageRouter.RateLimiter(), provider, cfg.Lifecycle.MaintenanceInterval, logger.Named("scheduler")),
		apiServer:   apiServer,
		httpServer:  httpServer,
		unsubscribe: unsubscribe,
	}, nil
}

// FUNCTIONAL DISCOVERY: Hub starts first to handle messages, then HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	// STEP 1: Start message hub (background message processing)
	if err := app.messageHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	// STEP 2: Bind before serving so port 0 resolves and bind errors surface here
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.messageHub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}

	app.mu.Lock()
	app.listener = listener
	app.serveErr = make(chan error, 1)
	app.mu.Unlock()

	app.scheduler.Start(ctx)

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("HTTP server error", zap.Error(err))
			app.serveErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(app.serveErr)
	}()

	app.logger.Info("ClassHub application started", zap.String("addr", listener.Addr().String()))
	return nil
}

// Errors reports a serve failure after Start; it is closed when serving stops
func (app *Application) Errors() <-chan error {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.serveErr
}

// FUNCTIONAL DISCOVERY: Reverse dependency order: HTTP → sockets → scheduler → Hub → Database
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("Shutting down ClassHub application")

	// STEP 1: Stop accepting new connections
	var errs []error
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}

	// STEP 2: Hijacked websocket connections are not tracked by http.Server
	app.registry.CloseAll()
	app.unsubscribe()
	app.provider.Close()
	app.scheduler.Stop()

	// STEP 3: Stop message processing, then close database connections
	if err := app.messageHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("message hub shutdown: %w", err))
	}
	if err := app.dbManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database shutdown: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		app.logger.Error("Shutdown finished with errors", zap.Error(err))
		return err
	}
	app.logger.Info("ClassHub application shutdown complete")
	return nil
}

// GetAddr returns the bound address once started, the configured one before
func (app *Application) GetAddr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the HTTP surface for in-process tests
func (app *Application) Handler() http.Handler {
	return app.apiServer
}

// ShutdownTimeout is the configured grace period for Stop
func (app *Application) ShutdownTimeout() time.Duration {
	return app.config.HTTP.ShutdownTimeout
}
