package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/vidguard/internal/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// queryLogger routes GORM output into the "datastore.gorm" module logger.
// Statements are logged at trace level with the caller's correlation id;
// failed and slow statements are raised to warn. Missing rows are not
// errors for the store, so they stay at trace.
type queryLogger struct {
	log  logger.Logger
	slow time.Duration
}

func newQueryLogger(debug bool) *queryLogger {
	slow := slowQueryThreshold
	if debug {
		slow /= 4
	}
	return &queryLogger{log: GetLogger().Module("gorm"), slow: slow}
}

func (q *queryLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return q }

func (q *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	q.log.WithContext(ctx).Debug(fmt.Sprintf(msg, args...))
}

func (q *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	q.log.WithContext(ctx).Warn(fmt.Sprintf(msg, args...))
}

func (q *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	q.log.WithContext(ctx).Error(fmt.Sprintf(msg, args...))
}

func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	stmt, rows := fc()
	log := q.log.WithContext(ctx).With(
		logger.String("sql", stmt),
		logger.Int64("rows", rows),
		logger.Duration("elapsed", elapsed),
	)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		log.Warn("statement failed", logger.Error(err))
	case q.slow > 0 && elapsed > q.slow:
		log.Warn("slow statement", logger.Duration("threshold", q.slow))
	default:
		log.Trace("statement")
	}
}
