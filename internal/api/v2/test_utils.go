package api

import (
	"context"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/vidguard/internal/datastore"
	"github.com/tphakala/vidguard/internal/moderation"
	"github.com/tphakala/vidguard/internal/policy"
)

// MockService implements Service for handler tests.
type MockService struct {
	mock.Mock
}

func (m *MockService) Submit(ctx context.Context, videoRef string, req policy.Request) (*moderation.Job, error) {
	args := m.Called(ctx, videoRef, req)
	job, _ := args.Get(0).(*moderation.Job)
	return job, args.Error(1)
}

func (m *MockService) Status(ctx context.Context, id string) (*moderation.Job, error) {
	args := m.Called(ctx, id)
	job, _ := args.Get(0).(*moderation.Job)
	return job, args.Error(1)
}

func (m *MockService) Cancel(ctx context.Context, id string) (*moderation.Job, error) {
	args := m.Called(ctx, id)
	job, _ := args.Get(0).(*moderation.Job)
	return job, args.Error(1)
}

func (m *MockService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockService) List(ctx context.Context, filter datastore.Filter) ([]*moderation.Job, error) {
	args := m.Called(ctx, filter)
	jobs, _ := args.Get(0).([]*moderation.Job)
	return jobs, args.Error(1)
}

func (m *MockService) Stats(ctx context.Context) (datastore.Stats, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(datastore.Stats)
	return stats, args.Error(1)
}

func (m *MockService) PolicyTable() *policy.Table {
	args := m.Called()
	table, _ := args.Get(0).(*policy.Table)
	return table
}

func (m *MockService) ActiveJobs() int {
	args := m.Called()
	return args.Int(0)
}

// setupTestEnvironment creates an echo instance with a controller over a
// fresh MockService.
func setupTestEnvironment(t *testing.T, opts ...Option) (*echo.Echo, *MockService, *Controller) {
	t.Helper()

	e := echo.New()
	svc := new(MockService)
	controller, err := New(e, svc, opts...)
	require.NoError(t, err)

	t.Cleanup(func() { svc.AssertExpectations(t) })
	return e, svc, controller
}
