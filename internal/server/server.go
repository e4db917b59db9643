package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/poolkeeper/internal/api/http"
	"github.com/GriffinCanCode/poolkeeper/internal/api/middleware"
	"github.com/GriffinCanCode/poolkeeper/internal/edge"
	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/config"
	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/poolkeeper/internal/interop"
	"github.com/GriffinCanCode/poolkeeper/internal/offline"
	"github.com/GriffinCanCode/poolkeeper/internal/offline/cachestore"
	"github.com/GriffinCanCode/poolkeeper/internal/offline/manifest"
	"github.com/GriffinCanCode/poolkeeper/internal/offline/network"
	"github.com/GriffinCanCode/poolkeeper/internal/storage"
	"github.com/GriffinCanCode/poolkeeper/internal/ws"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	container  *offline.Container
	ports      *ws.Handler
	store      storage.Store
	caches     cachestore.Store
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
}

// NewServer creates a new server instance.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger.Info("Initializing poolkeeper",
		zap.String("port", cfg.Server.Port),
		zap.String("upstream", cfg.Offline.Upstream),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("cache", cfg.Cache.Driver),
	)

	metrics := monitoring.NewMetrics()

	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open preference storage: %w", err)
	}
	caches, err := cachestore.Open(cfg.Cache.Driver, cfg.Cache.Path)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open cache storage: %w", err)
	}

	s := &Server{
		store:   store,
		caches:  caches,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}
	if err := s.setup(); err != nil {
		s.closeStores()
		return nil, err
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) setup() error {
	cfg := s.config
	logger := s.logger.Logger

	fetcher, err := network.New(network.Config{Upstream: cfg.Offline.Upstream}, s.breaker(), logger, s.metrics)
	if err != nil {
		return fmt.Errorf("failed to create fetcher: %w", err)
	}

	scope, err := offline.NewScope(cfg.Offline.PublicOrigin, interop.WorkerScriptURL, cfg.Offline.Bypass)
	if err != nil {
		return fmt.Errorf("invalid offline scope: %w", err)
	}

	// Load the manifest once up front so a broken file fails startup.
	if _, err := manifest.Load(cfg.Offline.Manifest); err != nil {
		return fmt.Errorf("failed to load offline manifest: %w", err)
	}

	s.container = offline.NewContainer(logger, s.metrics)
	s.container.Define(interop.WorkerScriptURL, func() (*offline.Worker, error) {
		// Read on every instantiation so a reload picks up a bumped bucket.
		m, err := manifest.Load(cfg.Offline.Manifest)
		if err != nil {
			return nil, err
		}
		return offline.NewWorker(offline.Config{
			Bucket:       m.Bucket,
			Precache:     m.Precache,
			Scope:        scope,
			FetchTimeout: cfg.Offline.FetchTimeout,
		}, s.caches, fetcher,
			offline.WithLogger(logger),
			offline.WithMetrics(s.metrics),
		), nil
	})

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID(logger))
	router.Use(monitoring.Middleware(s.metrics))

	api := router.Group("")
	api.Use(middleware.CORS(middleware.DefaultCORSConfig().ForOrigin(cfg.Offline.PublicOrigin)))
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		api.Use(middleware.RateLimit(rl))
	}

	handlers := apihttp.NewHandlers(s.container, interop.WorkerScriptURL, s.metrics)
	s.ports = ws.NewHandler(s.store, s.container, logger, s.metrics)
	if cfg.Offline.PublicOrigin != "" {
		s.ports.WithCheckOrigin(originIs(cfg.Offline.PublicOrigin))
	}

	api.GET("/health", handlers.Health)
	api.GET("/metrics", handlers.Metrics)
	api.GET("/ports", s.ports.HandleConnection)

	router.NoRoute(edge.New(s.container, fetcher.Upstream(), interop.WorkerScriptURL, logger, s.metrics).Handle)

	s.router = router
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// originIs accepts upgrades whose Origin header names origin. Requests
// without an Origin header come from non-browser clients and pass.
func originIs(origin string) func(r *http.Request) bool {
	want := strings.TrimSuffix(origin, "/")
	return func(r *http.Request) bool {
		got := r.Header.Get("Origin")
		return got == "" || strings.EqualFold(got, want)
	}
}

func (s *Server) breaker() *resilience.Breaker {
	cfg := s.config.Breaker
	if !cfg.Enabled {
		return nil
	}
	settings := network.BreakerSettings(cfg.Failures, cfg.Timeout)
	settings.OnStateChange = func(name string, from, to resilience.State) {
		s.logger.Warn("Circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		s.metrics.SetBreakerState(name, int(to))
	}
	return resilience.New("upstream", settings)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Reload installs a fresh worker from the current manifest. The active
// worker keeps serving if the new one fails to install.
func (s *Server) Reload(ctx context.Context) error {
	if err := s.container.Update(ctx, interop.WorkerScriptURL); err != nil {
		s.logger.Error("Worker reload failed", zap.Error(err))
		return err
	}
	s.logger.Info("Worker reloaded")
	return nil
}

// Run serves HTTP until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server, ends port sessions (which Shutdown does
// not wait for once hijacked), drains pending cache stores and closes the
// stores.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop http server: %w", err))
	}
	if err := s.ports.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close port sessions: %w", err))
	}
	if err := s.container.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close worker container: %w", err))
	}
	if err := s.closeStores(); err != nil {
		errs = append(errs, err)
	}

	_ = s.logger.Sync()
	return errors.Join(errs...)
}

func (s *Server) closeStores() error {
	var errs []error
	if err := s.caches.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close cache storage: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close preference storage: %w", err))
	}
	return errors.Join(errs...)
}
