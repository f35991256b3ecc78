package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"pollroom/internal/api"
	"pollroom/internal/config"
	"pollroom/internal/countdown"
	"pollroom/internal/database"
	"pollroom/internal/hub"
	"pollroom/internal/metrics"
	"pollroom/internal/router"
	"pollroom/internal/session"
	"pollroom/internal/websocket"
	"pollroom/pkg/interfaces"
	pkgdatabase "pollroom/pkg/database"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	archive    *database.Manager // nil when the archive is disabled
	registry   *websocket.Registry
	router     *router.Router
	session    *session.Session
	hub        *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Archive → Metrics → Registry → Router → Session → Hub → WebSocket → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Open the history archive (optional foundation layer)
	var archive *database.Manager
	if cfg.Archive.Enabled {
		dbConfig := &pkgdatabase.Config{
			DatabasePath:    cfg.Archive.Path,
			MaxConnections:  4,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 10 * time.Minute,
		}

		var err error
		archive, err = database.NewManager(dbConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize history archive: %w", err)
		}
		log.Printf("History archive ready at %s", cfg.Archive.Path)
	}

	// STEP 2: Private metrics registry, exposed on /metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	// STEP 3: Connection registry and dispatcher
	registry := websocket.NewRegistry()
	messageRouter := router.NewRouter(registry)

	// STEP 4: Session engine, the single source of truth
	sessionOpts := []session.Option{
		session.WithCountdown(countdown.New(cfg.Poll.TickInterval)),
		session.WithMetrics(m),
		session.WithMaxTimeLimit(cfg.Poll.MaxTimeLimit),
	}
	// TECHNICAL DISCOVERY: A nil *Manager must not be wrapped in the interface,
	// or the session would see a non-nil archive and call into it
	var historyArchive interfaces.HistoryArchive
	if archive != nil {
		historyArchive = archive
		sessionOpts = append(sessionOpts,
			session.WithArchive(archive),
			session.WithArchiveTimeout(cfg.Archive.Timeout),
		)
	}
	pollSession := session.New(messageRouter, sessionOpts...)

	// STEP 5: Hub serializes inbound events into the session
	messageHub := hub.NewHub(pollSession, messageRouter,
		hub.WithRateLimit(cfg.Poll.InboundRateLimit),
		hub.WithDefaultTimeLimit(cfg.Poll.DefaultTimeLimit),
		hub.WithMetrics(m),
	)

	// STEP 6: WebSocket handler feeds the hub
	wsHandler := websocket.NewHandler(registry, messageHub, websocket.HandlerConfig{
		PingInterval:   cfg.WebSocket.PingInterval,
		ReadTimeout:    cfg.WebSocket.ReadTimeout,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		BufferSize:     cfg.WebSocket.BufferSize,
		MaxFrameBytes:  websocket.DefaultHandlerConfig().MaxFrameBytes,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
	})

	// STEP 7: API server with the WebSocket endpoint mounted beside it
	apiServer := api.NewServer(pollSession, historyArchive, registry, promRegistry)
	apiServer.Mount("/ws", http.HandlerFunc(wsHandler.HandleWebSocket))

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		archive:    archive,
		registry:   registry,
		router:     messageRouter,
		session:    pollSession,
		hub:        messageHub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Handler returns the root HTTP handler, for embedding in test servers
func (app *Application) Handler() http.Handler {
	return app.apiServer
}

// StartHub begins event processing without opening a listener
func (app *Application) StartHub(ctx context.Context) error {
	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}
	return nil
}

// Start begins application execution
// Startup coordination ensures all components ready before serving
// Hub starts first to handle messages, then HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting pollroom on %s", app.httpServer.Addr)

	// STEP 1: Start message hub (background event processing)
	if err := app.StartHub(ctx); err != nil {
		return err
	}

	// STEP 2: Start HTTP server (accepts connections)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Verify server is ready before returning
	select {
	case err := <-serverErrCh:
		_ = app.hub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("pollroom started successfully")
		return nil
	case <-ctx.Done():
		_ = app.hub.Stop()
		return ctx.Err()
	}
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → Connections → Hub → Archive
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down pollroom")

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// STEP 2: Hijacked sockets are not covered by Shutdown
	app.registry.CloseAll()

	// STEP 3: Stop event processing
	if err := app.hub.Stop(); err != nil && err != hub.ErrHubNotRunning {
		log.Printf("Message hub shutdown error: %v", err)
	}

	// STEP 4: Stop the countdown, drain pending archive writes, then close the database
	app.session.Close()
	app.session.Flush()
	if app.archive != nil {
		if err := app.archive.Close(); err != nil {
			log.Printf("Archive shutdown error: %v", err)
		}
	}

	stats := app.router.Stats()
	log.Printf("pollroom shutdown complete (delivered=%d dropped=%d)", stats.Delivered, stats.Dropped)
	return nil
}

// GetAddr returns the server address for external connections
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
