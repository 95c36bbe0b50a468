package analysis

import "github.com/tphakala/vidguard/internal/logger"

// GetLogger returns the analysis service logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}
