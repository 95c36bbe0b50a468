// Package logger is the structured logging layer of vidguard, built on
// log/slog. Every package asks the global CentralLogger for a module-scoped
// Logger and logs with typed fields:
//
//	log := logger.Global().Module("orchestrator")
//	log.Info("job admitted", logger.JobID(id), logger.Int("checks", 4))
//
// Console output is text, file output is JSON. Levels can be raised or
// lowered per module. A correlation id stored with WithTraceID is attached
// by Logger.WithContext.
package logger

import (
	"context"
	"time"
)

// LogLevel is a configured severity name.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field is one structured key/value pair.
type Field struct {
	Key   string
	Value any
}

// Logger is implemented by module loggers handed out by CentralLogger.
type Logger interface {
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Log(level LogLevel, msg string, fields ...Field)

	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger

	Flush() error
}

func String(key, value string) Field          { return Field{Key: key, Value: value} }
func Int(key string, value int) Field         { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field     { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field   { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field       { return Field{Key: key, Value: value} }
func Any(key string, value any) Field         { return Field{Key: key, Value: value} }

// Duration logs d in its String form.
func Duration(key string, d time.Duration) Field {
	return Field{Key: key, Value: d.String()}
}

// Error logs err under the "error" key. A nil error logs a nil value.
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// JobID tags a record with the analysis job it belongs to.
func JobID(id string) Field {
	return Field{Key: "job_id", Value: id}
}

// Check tags a record with a policy check name.
func Check(name string) Field {
	return Field{Key: "check", Value: name}
}
