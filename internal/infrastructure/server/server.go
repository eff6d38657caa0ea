// Package server wires the host components behind one gin router.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/thecatthatflies/melius/internal/api/http"
	"github.com/thecatthatflies/melius/internal/api/middleware"
	"github.com/thecatthatflies/melius/internal/api/ws"
	"github.com/thecatthatflies/melius/internal/domain/extension"
	"github.com/thecatthatflies/melius/internal/domain/session"
	"github.com/thecatthatflies/melius/internal/domain/terminal"
	"github.com/thecatthatflies/melius/internal/domain/watcher"
	"github.com/thecatthatflies/melius/internal/infrastructure/config"
	"github.com/thecatthatflies/melius/internal/infrastructure/logging"
	"github.com/thecatthatflies/melius/internal/infrastructure/monitoring"
	"github.com/thecatthatflies/melius/internal/infrastructure/tracing"
	extensionsProvider "github.com/thecatthatflies/melius/internal/providers/extensions"
	"github.com/thecatthatflies/melius/internal/providers/filesystem"
	systemProvider "github.com/thecatthatflies/melius/internal/providers/system"
	terminalProvider "github.com/thecatthatflies/melius/internal/providers/terminal"
	workspaceProvider "github.com/thecatthatflies/melius/internal/providers/workspace"
	"github.com/thecatthatflies/melius/internal/service"
	"github.com/thecatthatflies/melius/internal/shared/id"
	"github.com/thecatthatflies/melius/internal/shared/types"
	"github.com/thecatthatflies/melius/internal/shell"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer

	registry   *service.Registry
	sessions   *session.Manager
	bridge     *ws.Handler
	backend    *watcher.FSNotifyBackend
	watchers   *watcher.Manager
	terminals  *terminal.Registry
	extensions *extension.Runtime
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing Melius host",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("melius", logger.Logger)

	// Events are routed through the bridge, which is created after the
	// components that publish them.
	var bridge *ws.Handler
	sink := types.EventSinkFunc(func(client id.ClientID, event types.Event) {
		bridge.Publish(client, event)
	})

	backend, err := watcher.NewFSNotifyBackend(logger.Named("fsnotify"))
	if err != nil {
		tracer.Close()
		metrics.Close()
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}
	watchers := watcher.NewManager(backend, sink, watcher.ConfigFrom(cfg.Watcher), logger.Named("watcher"), metrics)

	detector := shell.NewDetector(shell.WithLogger(logger.Named("shell")))
	terminals := terminal.NewRegistry(detector, sink, terminal.ConfigFrom(cfg.Terminal), logger.Named("terminal"), terminal.WithMetrics(metrics))

	extensions := extension.NewRuntime(
		extension.NewGojaLoader(logger.Named("extension")),
		extension.ConfigFrom(cfg.Extensions),
		logger.Named("extensions"),
		metrics,
	)

	registry := service.NewRegistry()
	registerProviders(registry, logger, watchers, terminals, extensions)

	sessions := session.NewManager(logger.Named("session"), metrics)
	sessions.OnRelease("terminal", terminals.ReleaseClient)
	sessions.OnRelease("watcher", watchers.ReleaseClient)
	sessions.OnRelease("extensions", extensions.Release)

	bridge = ws.NewHandler(registry, sessions, ws.ConfigFrom(cfg), logger.Named("bridge"), tracer, metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.CORSConfigFor(cfg.Server.AllowOrigins)))

	// The bridge limits per connection; plain HTTP limits per IP.
	router.GET("/bridge", bridge.HandleConnection)
	router.GET("/metrics", gin.WrapH(monitoring.Handler(metrics)))

	api := router.Group("/")
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.Bridge.RequestsPerSecond,
		Burst:             cfg.Bridge.Burst,
	}))
	apihttp.NewHandlers(registry, sessions).Register(api)

	logger.Info("Server initialized",
		zap.Int("services", len(registry.List(nil))),
		zap.Bool("pty", terminals.PTYSupported()),
	)

	return &Server{
		router:     router,
		httpServer: &http.Server{Addr: net.JoinHostPort(cfg.Server.Host, cfg.Server.Port), Handler: router},
		logger:     logger,
		config:     cfg,
		metrics:    metrics,
		tracer:     tracer,
		registry:   registry,
		sessions:   sessions,
		bridge:     bridge,
		backend:    backend,
		watchers:   watchers,
		terminals:  terminals,
		extensions: extensions,
	}, nil
}

func registerProviders(registry *service.Registry, logger *logging.Logger, watchers *watcher.Manager, terminals *terminal.Registry, extensions *extension.Runtime) {
	providers := []service.Provider{
		systemProvider.NewProvider(logger.Named("ui")),
		filesystem.NewProvider(),
		workspaceProvider.NewProvider(watchers),
		terminalProvider.NewProvider(terminals),
		extensionsProvider.NewProvider(extensions),
	}
	for _, p := range providers {
		if err := registry.Register(p); err != nil {
			logger.Warn("Failed to register provider",
				zap.String("service", p.Definition().ID),
				zap.Error(err))
		}
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Run serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.Addr()))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, drops every bridge connection, kills
// every terminal session, tears down every watch and disposes every
// extension runtime.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var err error
	if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil {
		err = fmt.Errorf("failed to shut down http server: %w", shutdownErr)
	}

	s.bridge.Close()
	s.sessions.Shutdown()
	s.terminals.Close()
	s.watchers.Close()
	if closeErr := s.backend.Close(); closeErr != nil {
		s.logger.Warn("Failed to close file watcher", zap.Error(closeErr))
	}
	s.extensions.Close()

	s.tracer.Close()
	s.metrics.Close()
	_ = s.logger.Sync()
	return err
}
