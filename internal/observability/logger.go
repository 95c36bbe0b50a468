package observability

import "github.com/tphakala/vidguard/internal/logger"

// Package-level cached logger instance. All logging in this package should use this variable.
var log = logger.Global().Module("telemetry")
