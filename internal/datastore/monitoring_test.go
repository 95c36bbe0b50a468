package datastore

import (
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPoolRecorder struct {
	mock.Mock
}

func (m *mockPoolRecorder) UpdateConnectionMetrics(inUse, idle, maxOpen int) {
	m.Called(inUse, idle, maxOpen)
}

func (m *mockPoolRecorder) RecordPoolWaits(count int64, seconds float64) {
	m.Called(count, seconds)
}

func TestReportPoolStatsRecordsOnlyNewWaits(t *testing.T) {
	rec := new(mockPoolRecorder)
	rec.On("UpdateConnectionMetrics", 3, 2, 50).Return().Twice()
	rec.On("RecordPoolWaits", int64(4), 1.5).Return().Once()

	first := sql.DBStats{InUse: 3, Idle: 2, MaxOpenConnections: 50, WaitCount: 6, WaitDuration: 2 * time.Second}
	second := sql.DBStats{InUse: 3, Idle: 2, MaxOpenConnections: 50, WaitCount: 10, WaitDuration: 3500 * time.Millisecond}

	reportPoolStats(rec, second, first)
	reportPoolStats(rec, second, second)

	rec.AssertExpectations(t)
}

func TestMonitorPoolReportsSQLiteStats(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "pool.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	rec := new(mockPoolRecorder)
	reported := make(chan struct{}, 1)
	rec.On("UpdateConnectionMetrics", mock.Anything, mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		select {
		case reported <- struct{}{}:
		default:
		}
	}).Return()

	quit := make(chan struct{})
	var wg sync.WaitGroup
	wrapped := NewInstrumentedStore(NewCachedStore(store, time.Minute), nil)
	MonitorPool(wrapped, rec, 10*time.Millisecond, &wg, quit)

	select {
	case <-reported:
	case <-time.After(2 * time.Second):
		t.Fatal("pool statistics were not reported")
	}
	close(quit)
	wg.Wait()
}

func TestMonitorPoolIgnoresMemoryStore(t *testing.T) {
	var wg sync.WaitGroup
	rec := new(mockPoolRecorder)
	MonitorPool(NewMemoryStore(), rec, time.Millisecond, &wg, make(chan struct{}))
	wg.Wait()
	rec.AssertNotCalled(t, "UpdateConnectionMetrics", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, rec.Calls)
}
