package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/subha-wp/advisorpro-crm-sub002/internal/auth"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/infrastructure/config"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/infrastructure/logging"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/ratelimit"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is a dependency probed by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	App      config.AppConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Auth     *auth.Service
	Resolver *auth.Resolver

	// Guard applies the signup and login budgets. Nil disables limiting.
	Guard *ratelimit.Guard

	// RefreshGuard applies the refresh budget over its own store so refresh
	// traffic cannot exhaust the key capacity used by login. Nil falls back
	// to Guard.
	RefreshGuard *ratelimit.Guard

	// Metrics records request and auth counters. Nil disables recording.
	Metrics *Metrics

	// MetricsHandler serves /metrics. Nil leaves the route unregistered.
	MetricsHandler http.Handler

	// Health lists named probes reported by /health.
	Health map[string]HealthChecker

	Version string
}

// Server is the HTTP API server for AdvisorPro.
//
// It manages the HTTP listener, routes and middleware.
// The server is created with New() and started with Start().
type Server struct {
	cfg            config.APIConfig
	rateCfg        config.RateLimitConfig
	logger         *logging.Logger
	auth           *auth.Service
	resolver       *auth.Resolver
	guard          *ratelimit.Guard
	refreshGuard   *ratelimit.Guard
	metrics        *Metrics
	metricsHandler http.Handler
	health         map[string]HealthChecker
	cookies        cookieJar
	version        string
	now            func() time.Time
	server         *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil || deps.Resolver == nil {
		return nil, fmt.Errorf("%w: session service and resolver are required", auth.ErrMisconfigured)
	}

	return &Server{
		cfg:            deps.Config,
		rateCfg:        deps.Security.RateLimit,
		logger:         deps.Logger,
		auth:           deps.Auth,
		resolver:       deps.Resolver,
		guard:          deps.Guard,
		refreshGuard:   deps.RefreshGuard,
		metrics:        deps.Metrics,
		metricsHandler: deps.MetricsHandler,
		health:         deps.Health,
		cookies:        newCookieJar(deps.Security, deps.App.IsProduction(), deps.Auth.AccessTTL()),
		version:        deps.Version,
		now:            time.Now,
	}, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
