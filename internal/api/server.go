package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/vidguard/internal/api/middleware"
	v2 "github.com/tphakala/vidguard/internal/api/v2"
	"github.com/tphakala/vidguard/internal/buildinfo"
	"github.com/tphakala/vidguard/internal/conf"
	"github.com/tphakala/vidguard/internal/logger"
	"github.com/tphakala/vidguard/internal/observability"
)

// Server is the HTTP server for vidguard. It owns the echo instance, the
// middleware stack and the v2 routes.
type Server struct {
	echo   *echo.Echo
	config *Config
	logger logger.Logger

	// Dependencies
	service   v2.Service
	metrics   *observability.Metrics
	buildInfo buildinfo.BuildInfo

	apiController *v2.Controller

	wg        sync.WaitGroup
	startTime time.Time
	errCh     chan error
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithService sets the moderation service behind the API.
func WithService(svc v2.Service) ServerOption {
	return func(s *Server) {
		s.service = svc
	}
}

// WithMetrics sets the observability metrics for the server.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithBuildInfo sets the version metadata reported by health endpoints.
func WithBuildInfo(info buildinfo.BuildInfo) ServerOption {
	return func(s *Server) {
		s.buildInfo = info
	}
}

// WithLogger replaces the server logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// New creates a new HTTP server with the given settings and options.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	return NewWithConfig(ConfigFromSettings(settings), opts...)
}

// NewWithConfig creates a server from an explicit Config.
func NewWithConfig(config *Config, opts ...ServerOption) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:    config,
		startTime: time.Now(),
		errCh:     make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = GetLogger()
	}
	if s.buildInfo == nil {
		s.buildInfo = &buildinfo.Context{}
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}

	s.logger.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.Bool("metrics", config.ServeMetrics && s.metrics != nil),
		logger.Bool("debug", config.Debug))

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())

	// Request id before logging so every log line carries it
	s.echo.Use(mw.NewRequestID())
	s.echo.Use(mw.NewRequestLogger(s.logger))

	s.echo.Use(mw.Hardening(mw.HardeningConfig{
		AllowedOrigins: s.config.AllowedOrigins,
		BodyLimit:      s.config.BodyLimit,
	})...)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() error {
	s.echo.GET("/health", s.healthCheck)

	if s.config.ServeMetrics && s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	opts := []v2.Option{
		v2.WithBuildInfo(s.buildInfo),
		v2.WithSubmitRateLimit(s.config.RateLimit, s.config.RateBurst),
		v2.WithLogger(s.logger),
	}
	if s.metrics != nil {
		opts = append(opts, v2.WithMetrics(s.metrics.HTTP))
	}

	apiController, err := v2.New(s.echo, s.service, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize API v2: %w", err)
	}
	s.apiController = apiController

	s.logger.Debug("Routes initialized", logger.String("api_version", "v2"))
	return nil
}

// healthCheck handles the root liveness endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)

	resp := map[string]any{
		"status":         "healthy",
		"version":        s.buildInfo.GetVersion(),
		"build_date":     s.buildInfo.GetBuildDate(),
		"uptime":         uptime.Round(time.Second).String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	}
	if s.metrics != nil {
		resp["active_jobs"] = s.metrics.Jobs.ActiveJobs()
	}
	return c.JSON(http.StatusOK, resp)
}

// Start begins serving HTTP requests in a background goroutine and returns
// immediately. Listener errors are reported on Errors.
func (s *Server) Start() {
	s.wg.Go(func() {
		if err := s.startBlocking(); err != nil {
			s.logger.Error("Server error", logger.Error(err))
			s.errCh <- err
		}
	})
	s.logger.Info("HTTP server starting", logger.String("address", s.config.Address()))
}

// startBlocking serves until the server is shut down.
func (s *Server) startBlocking() error {
	err := s.echo.Start(s.config.Address())
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Errors delivers a listener failure, at most once.
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.logger.Error("Error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.wg.Wait()
	s.logger.Info("Server shutdown complete")
	return nil
}

// APIController returns the v2 API controller.
func (s *Server) APIController() *v2.Controller {
	return s.apiController
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
