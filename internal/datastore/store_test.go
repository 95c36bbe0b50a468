package datastore

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/moderation"
)

var baseTime = time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

func testConfig() moderation.SensitivityConfig {
	return moderation.SensitivityConfig{
		PolicyVersion: "test-1",
		MergeEpsilon:  0.5,
		Checks: map[moderation.CheckType]moderation.CheckConfig{
			moderation.CheckNudity: {Level: moderation.LevelModerate, Policy: moderation.LevelPolicy{Threshold: 70, MinIntervals: 1}},
			moderation.CheckFraud:  {Level: moderation.LevelStrict, Policy: moderation.LevelPolicy{Threshold: 50, MinIntervals: 1}},
		},
	}
}

func queuedJob(i int) *moderation.Job {
	return moderation.NewJob(fmt.Sprintf("job-%02d", i), fmt.Sprintf("video-%d.mp4", i), testConfig(), baseTime.Add(time.Duration(i)*time.Minute))
}

func completedJob(t *testing.T, i int, verdict moderation.Verdict, triggered ...moderation.CheckType) *moderation.Job {
	t.Helper()
	job := queuedJob(i)
	require.NoError(t, job.Start(job.CreatedAt.Add(time.Second)))
	for k := range job.Checks {
		job.Checks[k].Status = moderation.CheckSucceeded
		job.Checks[k].Score = 12.5
	}
	d := &moderation.Decision{Verdict: verdict, Confidence: 95, Reasoning: "All checks passed.", DecidedAt: job.CreatedAt.Add(3 * time.Second)}
	for _, c := range triggered {
		d.Triggers = append(d.Triggers, moderation.Trigger{Check: c, Threshold: 50, MaxScore: 90})
	}
	require.NoError(t, job.Complete(d, job.CreatedAt.Add(3*time.Second)))
	return job
}

func failedJob(t *testing.T, i int) *moderation.Job {
	t.Helper()
	job := queuedJob(i)
	require.NoError(t, job.Start(job.CreatedAt.Add(time.Second)))
	require.NoError(t, job.Fail(moderation.JobError{Kind: moderation.ErrorKindTimeout, Message: "job timed out"},
		moderation.CheckTimedOut, job.CreatedAt.Add(5*time.Second)))
	return job
}

type storeFactory func(t *testing.T) Interface

// extraStoreFactories holds backends registered by tagged test files.
var extraStoreFactories = map[string]storeFactory{}

func storeFactories() map[string]storeFactory {
	factories := map[string]storeFactory{
		"memory": func(t *testing.T) Interface {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Interface {
			t.Helper()
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "vidguard.db"), false)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"cached_memory": func(t *testing.T) Interface {
			return NewCachedStore(NewMemoryStore(), time.Minute)
		},
	}
	maps.Copy(factories, extraStoreFactories)
	return factories
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Interface)) {
	t.Helper()
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			fn(t, factory(t))
		})
	}
}

func TestStoreCreateGetSave(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, s Interface) {
		ctx := context.Background()
		job := queuedJob(1)
		require.NoError(t, s.Create(ctx, job))

		err := s.Create(ctx, job)
		assert.True(t, errors.IsCategory(err, errors.CategoryConflict), "duplicate create: %v", err)

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, moderation.JobQueued, got.State)
		assert.Equal(t, job.VideoRef, got.VideoRef)
		assert.Equal(t, job.Config, got.Config)
		assert.True(t, job.CreatedAt.Equal(got.CreatedAt))

		// callers own returned copies
		got.State = moderation.JobFailed
		again, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, moderation.JobQueued, again.State)

		done := completedJob(t, 1, moderation.VerdictApproved)
		require.NoError(t, s.Save(ctx, done))
		got, err = s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, moderation.JobCompleted, got.State)
		require.NotNil(t, got.Decision)
		assert.Equal(t, moderation.VerdictApproved, got.Decision.Verdict)

		// saving identical content twice is not an error
		require.NoError(t, s.Save(ctx, done))
	})
}

func TestStoreNotFound(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, s Interface) {
		ctx := context.Background()
		_, err := s.Get(ctx, "missing")
		assert.True(t, errors.IsNotFound(err))
		assert.True(t, errors.IsNotFound(s.Save(ctx, queuedJob(9))))
		assert.True(t, errors.IsNotFound(s.Delete(ctx, "missing")))
	})
}

func TestStoreListAndPending(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, s Interface) {
		ctx := context.Background()
		jobs := []*moderation.Job{
			queuedJob(1),
			completedJob(t, 2, moderation.VerdictApproved),
			completedJob(t, 3, moderation.VerdictRejected, moderation.CheckNudity),
			failedJob(t, 4),
			completedJob(t, 5, moderation.VerdictRejected, moderation.CheckNudity, moderation.CheckFraud),
		}
		analyzing := queuedJob(6)
		require.NoError(t, analyzing.Start(analyzing.CreatedAt))
		jobs = append(jobs, analyzing)
		for _, j := range jobs {
			require.NoError(t, s.Create(ctx, j))
		}

		all, err := s.List(ctx, Filter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"job-06", "job-05", "job-04", "job-03", "job-02", "job-01"}, ids(all))

		rejected, err := s.List(ctx, Filter{Verdict: moderation.VerdictRejected})
		require.NoError(t, err)
		assert.Equal(t, []string{"job-05", "job-03"}, ids(rejected))

		failed, err := s.List(ctx, Filter{State: moderation.JobFailed})
		require.NoError(t, err)
		assert.Equal(t, []string{"job-04"}, ids(failed))

		page, err := s.List(ctx, Filter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"job-05", "job-04"}, ids(page))

		empty, err := s.List(ctx, Filter{Offset: 50})
		require.NoError(t, err)
		assert.Empty(t, empty)

		pending, err := s.Pending(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"job-01", "job-06"}, ids(pending))
	})
}

func TestStoreDeleteAndStats(t *testing.T) {
	t.Parallel()
	forEachStore(t, func(t *testing.T, s Interface) {
		ctx := context.Background()
		for _, j := range []*moderation.Job{
			completedJob(t, 1, moderation.VerdictApproved),
			completedJob(t, 2, moderation.VerdictRejected, moderation.CheckNudity),
			completedJob(t, 3, moderation.VerdictRejected, moderation.CheckNudity, moderation.CheckFraud),
			failedJob(t, 4),
			queuedJob(5),
		} {
			require.NoError(t, s.Create(ctx, j))
		}

		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, st.Total)
		assert.Equal(t, 3, st.ByState[moderation.JobCompleted])
		assert.Equal(t, 1, st.ByState[moderation.JobFailed])
		assert.Equal(t, 1, st.ByState[moderation.JobQueued])
		assert.Equal(t, 1, st.Approved)
		assert.Equal(t, 2, st.Rejected)
		assert.InDelta(t, 1.0/3, st.ApprovalRate, 1e-9)
		assert.InDelta(t, 2.0/3, st.RejectionRate, 1e-9)
		assert.Equal(t, 2, st.ViolationBreakdown[moderation.CheckNudity])
		assert.Equal(t, 1, st.ViolationBreakdown[moderation.CheckFraud])
		// three completed jobs took 2s, the failed one 4s
		assert.InDelta(t, 2.5, st.AvgProcessingSecs, 1e-9)

		_, err = s.Get(ctx, "job-02")
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, "job-02"))
		_, err = s.Get(ctx, "job-02")
		assert.True(t, errors.IsNotFound(err))

		st, err = s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, st.Total)
	})
}

func TestStatsEmpty(t *testing.T) {
	t.Parallel()
	st, err := NewMemoryStore().Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Total)
	assert.Zero(t, st.ApprovalRate)
	assert.NotNil(t, st.ByState)
}

func TestCachedStoreServesTerminalJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backing := NewMemoryStore()
	c := NewCachedStore(backing, time.Minute)

	queued := queuedJob(1)
	require.NoError(t, c.Create(ctx, queued))
	_, err := c.Get(ctx, queued.ID)
	require.NoError(t, err)
	assert.Zero(t, c.CachedItems(), "non-terminal jobs are not cached")

	done := completedJob(t, 1, moderation.VerdictApproved)
	require.NoError(t, c.Save(ctx, done))
	assert.Equal(t, 1, c.CachedItems())

	// the cache answers even if the backing store loses the row
	require.NoError(t, backing.Delete(ctx, done.ID))
	got, err := c.Get(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, moderation.JobCompleted, got.State)

	assert.True(t, errors.IsNotFound(c.Delete(ctx, done.ID)))
	assert.Zero(t, c.CachedItems())
}

// pausedGetStore holds Get after reading the row until resume is closed.
type pausedGetStore struct {
	*MemoryStore
	read   chan struct{}
	resume chan struct{}
}

func (s *pausedGetStore) Get(ctx context.Context, id string) (*moderation.Job, error) {
	job, err := s.MemoryStore.Get(ctx, id)
	close(s.read)
	<-s.resume
	return job, err
}

func TestCachedStoreDeleteDuringRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backing := NewMemoryStore()
	done := completedJob(t, 1, moderation.VerdictRejected)
	require.NoError(t, backing.Create(ctx, done))

	paused := &pausedGetStore{MemoryStore: backing, read: make(chan struct{}), resume: make(chan struct{})}
	c := NewCachedStore(paused, time.Minute)

	type getResult struct {
		job *moderation.Job
		err error
	}
	inflight := make(chan getResult, 1)
	go func() {
		job, err := c.Get(ctx, done.ID)
		inflight <- getResult{job, err}
	}()

	<-paused.read
	require.NoError(t, c.Delete(ctx, done.ID))
	close(paused.resume)

	res := <-inflight
	require.NoError(t, res.err)
	assert.Equal(t, done.ID, res.job.ID)
	assert.Zero(t, c.CachedItems(), "a read overlapping a delete must not repopulate the cache")

	_, err := backing.Get(ctx, done.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestFilterNormalize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultListLimit, Filter{}.Normalize().Limit)
	assert.Equal(t, MaxListLimit, Filter{Limit: 5000}.Normalize().Limit)
	assert.Equal(t, 0, Filter{Offset: -3}.Normalize().Offset)
}

func ids(jobs []*moderation.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}

type countingRecorder struct {
	ops    map[string]int
	errors map[string]int
}

func (c *countingRecorder) RecordOperation(op, status string) { c.ops[op+":"+status]++ }
func (c *countingRecorder) RecordDuration(string, float64)    {}
func (c *countingRecorder) RecordError(op, category string)   { c.errors[op+":"+category]++ }

func TestInstrumentedStoreRecordsOutcomes(t *testing.T) {
	t.Parallel()

	rec := &countingRecorder{ops: map[string]int{}, errors: map[string]int{}}
	store := NewInstrumentedStore(NewMemoryStore(), rec)
	ctx := context.Background()

	job := queuedJob(1)
	require.NoError(t, store.Create(ctx, job))
	require.Error(t, store.Create(ctx, job))
	_, err := store.Get(ctx, "unknown")
	require.Error(t, err)

	assert.Equal(t, 1, rec.ops["create:success"])
	assert.Equal(t, 1, rec.ops["create:error"])
	assert.Equal(t, 1, rec.errors["create:conflict"])
	assert.Equal(t, 1, rec.ops["get:success"], "a missing job is not a store failure")
}
