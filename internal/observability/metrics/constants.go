// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ShutdownTimeout bounds the graceful shutdown of the metrics listener.
const ShutdownTimeout = 5 * time.Second
