package datastore

import (
	"database/sql"
	"sync"
	"time"

	"github.com/tphakala/vidguard/internal/logger"
)

// PoolRecorder receives connection pool statistics.
type PoolRecorder interface {
	UpdateConnectionMetrics(inUse, idle, maxOpen int)
	RecordPoolWaits(count int64, seconds float64)
}

// PoolStatser is implemented by stores backed by a SQL connection pool.
type PoolStatser interface {
	PoolStats() (sql.DBStats, error)
}

// PoolStats returns the statistics of the underlying connection pool.
func (s *GormStore) PoolStats() (sql.DBStats, error) {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return sql.DBStats{}, dbError(err, "pool-stats", "")
	}
	return sqlDB.Stats(), nil
}

// poolOf finds the connection pool behind any cache or instrumentation
// wrappers.
func poolOf(store Interface) (PoolStatser, bool) {
	for store != nil {
		if ps, ok := store.(PoolStatser); ok {
			return ps, true
		}
		w, ok := store.(interface{ Unwrap() Interface })
		if !ok {
			return nil, false
		}
		store = w.Unwrap()
	}
	return nil, false
}

// MonitorPool reports the pool statistics of store every interval until
// quit is closed. Stores without a connection pool are not monitored.
func MonitorPool(store Interface, rec PoolRecorder, interval time.Duration, wg *sync.WaitGroup, quit <-chan struct{}) {
	ps, ok := poolOf(store)
	if !ok || rec == nil || interval <= 0 {
		return
	}
	wg.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last sql.DBStats
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				stats, err := ps.PoolStats()
				if err != nil {
					GetLogger().Error("failed to read connection pool statistics", logger.Error(err))
					continue
				}
				reportPoolStats(rec, stats, last)
				last = stats
			}
		}
	})
}

func reportPoolStats(rec PoolRecorder, stats, last sql.DBStats) {
	rec.UpdateConnectionMetrics(stats.InUse, stats.Idle, stats.MaxOpenConnections)

	waits := stats.WaitCount - last.WaitCount
	if waits <= 0 {
		return
	}
	waited := stats.WaitDuration - last.WaitDuration
	rec.RecordPoolWaits(waits, waited.Seconds())
	GetLogger().Warn("queries waited for a free database connection",
		logger.Int64("waits", waits),
		logger.Duration("waited", waited),
		logger.Int("in_use", stats.InUse),
		logger.Int("max_open", stats.MaxOpenConnections))
}
