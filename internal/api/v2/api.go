// Package api implements the vidguard JSON API under /api/v2.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/vidguard/internal/buildinfo"
	"github.com/tphakala/vidguard/internal/datastore"
	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/logger"
	"github.com/tphakala/vidguard/internal/moderation"
	"github.com/tphakala/vidguard/internal/observability/metrics"
	"github.com/tphakala/vidguard/internal/policy"
)

// Service is the moderation engine the controller exposes. The orchestrator
// implements it.
type Service interface {
	Submit(ctx context.Context, videoRef string, req policy.Request) (*moderation.Job, error)
	Status(ctx context.Context, id string) (*moderation.Job, error)
	Cancel(ctx context.Context, id string) (*moderation.Job, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter datastore.Filter) ([]*moderation.Job, error)
	Stats(ctx context.Context) (datastore.Stats, error)
	PolicyTable() *policy.Table
	ActiveJobs() int
}

// Controller manages the API routes and handlers.
type Controller struct {
	Echo    *echo.Echo
	Group   *echo.Group
	Service Service

	metrics   *metrics.HTTPMetrics
	buildInfo buildinfo.BuildInfo
	rateLimit float64
	rateBurst int
	startTime time.Time
	logger    logger.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithMetrics records request counts and latencies.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithBuildInfo sets the version reported by the health endpoint.
func WithBuildInfo(info buildinfo.BuildInfo) Option {
	return func(c *Controller) {
		c.buildInfo = info
	}
}

// WithSubmitRateLimit limits submissions per client IP. A non-positive
// rate disables the limiter.
func WithSubmitRateLimit(perSecond float64, burst int) Option {
	return func(c *Controller) {
		c.rateLimit = perSecond
		c.rateBurst = burst
	}
}

// WithLogger replaces the controller logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// New creates the v2 controller and registers its routes on e.
func New(e *echo.Echo, svc Service, opts ...Option) (*Controller, error) {
	if e == nil {
		return nil, errors.Newf("echo instance is required").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if svc == nil {
		return nil, errors.Newf("moderation service is required").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	c := &Controller{
		Echo:      e,
		Service:   svc,
		buildInfo: &buildinfo.Context{},
		startTime: time.Now(),
		logger:    logger.Global().Module("api"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Group = e.Group("/api/v2", c.MetricsMiddleware())
	c.initRoutes()
	return c, nil
}

// initRoutes registers all API endpoints
func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)

	c.initAnalysisRoutes()
	c.initReportRoutes()
}

// MetricsMiddleware records request count, latency and error categories per
// route template.
func (c *Controller) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if c.metrics == nil {
				return next(ctx)
			}
			start := time.Now()
			err := next(ctx)

			status := ctx.Response().Status
			var he *echo.HTTPError
			if err != nil && errors.As(err, &he) {
				status = he.Code
			}
			path := ctx.Path()
			if path == "" {
				path = "unmatched"
			}
			method := ctx.Request().Method
			c.metrics.ObserveRequest(method, path, status, time.Since(start))
			if status >= http.StatusBadRequest {
				if cat, ok := ctx.Get(ctxKeyErrorCategory).(errors.ErrorCategory); ok {
					c.metrics.CountError(method, path, string(cat))
				}
			}
			return err
		}
	}
}

// HealthCheck handles the API health check endpoint
func (c *Controller) HealthCheck(ctx echo.Context) error {
	uptime := time.Since(c.startTime)
	response := map[string]any{
		"status":         "healthy",
		"version":        c.buildInfo.GetVersion(),
		"build_date":     c.buildInfo.GetBuildDate(),
		"active_jobs":    c.Service.ActiveJobs(),
		"uptime":         uptime.Round(time.Second).String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	}

	if table := c.Service.PolicyTable(); table != nil {
		response["policy_version"] = table.Version
	}

	// a one-row listing is enough to prove the store answers
	if _, err := c.Service.List(ctx.Request().Context(), datastore.Filter{Limit: 1}); err != nil {
		response["status"] = "degraded"
		response["database_status"] = "unavailable"
		response["database_error"] = err.Error()
		return ctx.JSON(http.StatusServiceUnavailable, response)
	}
	response["database_status"] = "connected"

	return ctx.JSON(http.StatusOK, response)
}

const ctxKeyErrorCategory = "api:errorCategory"

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	Category      string `json:"category,omitempty"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	resp := &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
	if err != nil {
		resp.Category = string(errors.CategoryOf(err))
	}
	return resp
}

// generateCorrelationID creates an identifier for requests that arrive
// without a trace id.
func generateCorrelationID() string {
	return uuid.NewString()
}

// StatusFor maps an error category onto an HTTP status code.
func StatusFor(err error) int {
	switch errors.CategoryOf(err) {
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict, errors.CategoryState:
		return http.StatusConflict
	case errors.CategoryLimit:
		return http.StatusServiceUnavailable
	case errors.CategoryTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// HandleError constructs and returns an appropriate error response
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)
	reqCtx := ctx.Request().Context()
	if traceID := logger.TraceIDFromContext(reqCtx); traceID != "" {
		resp.CorrelationID = traceID
	}
	if err != nil {
		ctx.Set(ctxKeyErrorCategory, errors.CategoryOf(err))
	}

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("path", ctx.Path()),
		logger.String("ip", ctx.RealIP()),
		logger.Int("code", code),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		c.logger.WithContext(reqCtx).Error(message, fields...)
	} else {
		c.logger.WithContext(reqCtx).Debug(message, fields...)
	}

	return ctx.JSON(code, resp)
}

// handleServiceError replies with the status matching err's category.
func (c *Controller) handleServiceError(ctx echo.Context, err error, message string) error {
	return c.HandleError(ctx, err, message, StatusFor(err))
}
