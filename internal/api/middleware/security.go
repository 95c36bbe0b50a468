package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const oneYear = 365 * 24 * 60 * 60

// HardeningConfig configures Hardening.
type HardeningConfig struct {
	AllowedOrigins []string
	BodyLimit      string // e.g. "1M"
	HSTSMaxAge     int    // seconds, defaults to one year
}

// Hardening returns the middleware every route gets, in order: CORS for
// browser clients of the analyses API, a request body cap, gzip for JSON
// replies and security headers. /metrics is left uncompressed because the
// Prometheus handler negotiates its own encoding.
func Hardening(cfg HardeningConfig) []echo.MiddlewareFunc {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.HSTSMaxAge == 0 {
		cfg.HSTSMaxAge = oneYear
	}

	cors := middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  cfg.AllowedOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID},
		ExposeHeaders: []string{echo.HeaderXRequestID, "Retry-After"},
	})

	gzip := middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, "/metrics")
		},
	})

	secure := middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            cfg.HSTSMaxAge,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	})

	chain := []echo.MiddlewareFunc{cors}
	if cfg.BodyLimit != "" {
		chain = append(chain, middleware.BodyLimit(cfg.BodyLimit))
	}
	return append(chain, gzip, secure)
}
