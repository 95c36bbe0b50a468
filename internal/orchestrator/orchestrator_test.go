package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/vidguard/internal/datastore"
	"github.com/tphakala/vidguard/internal/detector"
	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/moderation"
	"github.com/tphakala/vidguard/internal/policy"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func allClean() []detector.Detector {
	return []detector.Detector{
		clean(moderation.CheckNudity),
		clean(moderation.CheckCopyright),
		clean(moderation.CheckFraud),
		clean(moderation.CheckBlur),
	}
}

func TestNudityIntervalRejectsEndToEnd(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(),
		result(moderation.CheckNudity, detector.RawResult{
			Score: 0.4, Scale: detector.ScaleUnit, TimeUnit: detector.UnitSeconds,
			Detections: []detector.RawDetection{{Start: 15, End: 20, Label: "partial", Score: 0.85}},
		}),
		clean(moderation.CheckCopyright),
		clean(moderation.CheckFraud),
		clean(moderation.CheckBlur),
	)

	submitted := h.submit("clip.mp4", policy.Request{})
	assert.Equal(t, moderation.JobQueued, submitted.State)

	job := h.wait(submitted.ID)
	require.Equal(t, moderation.JobCompleted, job.State, "job error: %v", job.Error)
	require.NotNil(t, job.Decision)
	assert.Equal(t, moderation.VerdictRejected, job.Decision.Verdict)
	assert.Contains(t, job.Decision.Reasoning, "0:15–0:20")
	require.Len(t, job.Decision.Triggers, 1)
	assert.Equal(t, moderation.CheckNudity, job.Decision.Triggers[0].Check)

	nudity := job.Result(moderation.CheckNudity)
	require.NotNil(t, nudity)
	assert.Equal(t, moderation.CheckSucceeded, nudity.Status)
	assert.Equal(t, []moderation.Interval{{Start: 15, End: 20, Category: "partial", Score: 85}}, nudity.Intervals)
	assert.Equal(t, 1, nudity.Attempts)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
}

func TestAllCleanApprovesEndToEnd(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), allClean()...)
	job := h.wait(h.submit("holiday.mp4", policy.Request{}).ID)

	require.Equal(t, moderation.JobCompleted, job.State)
	assert.Equal(t, moderation.VerdictApproved, job.Decision.Verdict)
	assert.Equal(t, "All checks passed.", job.Decision.Reasoning)
	assert.Empty(t, job.Decision.Triggers)
	assert.NotNil(t, job.Decision.Triggers, "triggers serialize as an empty list")
	for _, c := range job.Checks {
		assert.Equal(t, moderation.CheckSucceeded, c.Status, c.Check)
	}

	assert.Eventually(t, func() bool {
		states := h.seen.statesOf(job.ID)
		return len(states) > 0 && states[len(states)-1] == moderation.JobCompleted
	}, waitFor, 5*time.Millisecond)
	states := h.seen.statesOf(job.ID)
	assert.Equal(t, moderation.JobQueued, states[0])
	assert.Contains(t, states, moderation.JobAnalyzing)
}

func TestSimultaneousCheckCompletionDecidesOnce(t *testing.T) {
	t.Parallel()

	for round := range 10 {
		g := newGate()
		h := newHarness(t, testConfig(),
			g.detector(moderation.CheckNudity),
			g.detector(moderation.CheckCopyright),
			g.detector(moderation.CheckFraud),
			g.detector(moderation.CheckBlur),
		)

		submitted := h.submit(fmt.Sprintf("burst-%d.mp4", round), policy.Request{})
		for range moderation.AllChecks {
			select {
			case <-g.entered:
			case <-time.After(waitFor):
				t.Fatalf("round %d: detectors were not dispatched in parallel", round)
			}
		}
		g.release()

		job := h.wait(submitted.ID)
		require.Equal(t, moderation.JobCompleted, job.State, "round %d", round)
		require.NotNil(t, job.Decision)
		assert.Equal(t, moderation.VerdictApproved, job.Decision.Verdict)

		completed := func() int {
			n := 0
			for _, s := range h.seen.statesOf(job.ID) {
				if s == moderation.JobCompleted {
					n++
				}
			}
			return n
		}
		require.Eventually(t, func() bool { return completed() == 1 }, waitFor, 5*time.Millisecond)
		assert.Never(t, func() bool { return completed() > 1 }, 50*time.Millisecond, 5*time.Millisecond)

		stats, err := h.o.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Approved, "round %d", round)
		assert.Equal(t, 1, stats.ByState[moderation.JobCompleted], "round %d", round)
	}
}

func TestJobTimeoutFailsWithPendingChecks(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.JobTimeout = 100 * time.Millisecond
	cfg.DetectorTimeout = 5 * time.Second

	g := newGate()
	t.Cleanup(g.release)
	h := newHarness(t, cfg,
		clean(moderation.CheckNudity),
		g.detector(moderation.CheckCopyright),
	)

	job := h.wait(h.submit("slow.mp4", policy.Request{Checks: []string{"nudity", "copyright"}}).ID)

	require.Equal(t, moderation.JobFailed, job.State)
	assert.Nil(t, job.Decision, "a timed out job is never approved")
	require.NotNil(t, job.Error)
	assert.Equal(t, moderation.ErrorKindTimeout, job.Error.Kind)
	assert.Contains(t, job.Error.Message, "copyright")
	assert.Equal(t, moderation.CheckSucceeded, job.Result(moderation.CheckNudity).Status)
	assert.Equal(t, moderation.CheckTimedOut, job.Result(moderation.CheckCopyright).Status)
}

func TestJobTimeoutResolvePolicyDecidesOnPartialEvidence(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.JobTimeout = 100 * time.Millisecond
	cfg.DetectorTimeout = 5 * time.Second
	cfg.TimeoutPolicy = TimeoutPolicyResolve

	g := newGate()
	t.Cleanup(g.release)
	h := newHarness(t, cfg,
		clean(moderation.CheckNudity),
		g.detector(moderation.CheckCopyright),
	)

	job := h.wait(h.submit("slow.mp4", policy.Request{Checks: []string{"nudity", "copyright"}}).ID)

	require.Equal(t, moderation.JobCompleted, job.State)
	assert.Equal(t, moderation.VerdictApproved, job.Decision.Verdict)
	assert.Contains(t, job.Decision.Reasoning, "Copyright (timed_out)")
	assert.Equal(t, moderation.CheckTimedOut, job.Result(moderation.CheckCopyright).Status)
}

func TestJobTimeoutResolvePolicyStillFailsOnPendingRequired(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.JobTimeout = 100 * time.Millisecond
	cfg.DetectorTimeout = 5 * time.Second
	cfg.TimeoutPolicy = TimeoutPolicyResolve

	g := newGate()
	t.Cleanup(g.release)
	h := newHarness(t, cfg,
		clean(moderation.CheckNudity),
		g.detector(moderation.CheckCopyright),
	)

	job := h.wait(h.submit("slow.mp4", policy.Request{
		Checks:   []string{"nudity", "copyright"},
		Required: []string{"copyright"},
	}).ID)

	require.Equal(t, moderation.JobFailed, job.State)
	assert.Equal(t, moderation.ErrorKindTimeout, job.Error.Kind)
	assert.Equal(t, moderation.CheckCopyright, job.Error.Check)
}

func TestRequiredCheckFailureFailsJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(),
		clean(moderation.CheckNudity),
		failing(moderation.CheckCopyright, detector.Permanent(fmt.Errorf("fingerprint index unavailable"))),
		clean(moderation.CheckFraud),
		clean(moderation.CheckBlur),
	)

	job := h.wait(h.submit("clip.mp4", policy.Request{Required: []string{"copyright"}}).ID)

	require.Equal(t, moderation.JobFailed, job.State)
	assert.Equal(t, moderation.ErrorKindRequired, job.Error.Kind)
	assert.Equal(t, moderation.CheckCopyright, job.Error.Check)
	copyright := job.Result(moderation.CheckCopyright)
	assert.Equal(t, moderation.CheckFailed, copyright.Status)
	assert.Equal(t, string(detector.KindPermanent), copyright.ErrorKind)
	assert.Equal(t, 1, copyright.Attempts, "permanent errors are not retried")
}

func TestOptionalCheckFailureStillDecides(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	flaky := detector.Func{CheckType: moderation.CheckFraud, Fn: func(ctx context.Context, req detector.Request) (detector.RawResult, error) {
		calls.Add(1)
		return detector.RawResult{}, detector.Transient(fmt.Errorf("503 from upstream"))
	}}
	h := newHarness(t, testConfig(),
		clean(moderation.CheckNudity),
		clean(moderation.CheckCopyright),
		flaky,
		clean(moderation.CheckBlur),
	)

	job := h.wait(h.submit("clip.mp4", policy.Request{}).ID)

	require.Equal(t, moderation.JobCompleted, job.State)
	assert.Equal(t, moderation.VerdictApproved, job.Decision.Verdict)
	assert.Contains(t, job.Decision.Reasoning, "Fraud (failed)")
	fraud := job.Result(moderation.CheckFraud)
	assert.Equal(t, moderation.CheckFailed, fraud.Status)
	assert.Equal(t, 2, fraud.Attempts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNoSucceededCheckFailsJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(),
		failing(moderation.CheckNudity, detector.Permanent(fmt.Errorf("model not loaded"))),
		failing(moderation.CheckFraud, detector.Permanent(fmt.Errorf("model not loaded"))),
	)

	job := h.wait(h.submit("clip.mp4", policy.Request{Checks: []string{"nudity", "fraud"}}).ID)

	require.Equal(t, moderation.JobFailed, job.State)
	assert.Equal(t, moderation.ErrorKindDetector, job.Error.Kind)
	assert.Contains(t, job.Error.Message, "no check succeeded")
}

func TestMalformedDetectorOutputFailsCheck(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(),
		clean(moderation.CheckNudity),
		result(moderation.CheckBlur, detector.RawResult{
			Score: 0.5, Scale: detector.ScaleUnit, TimeUnit: detector.UnitFrames,
			Detections: []detector.RawDetection{{Start: 1, End: 2, Label: "violence", Score: 0.5}},
		}),
	)

	job := h.wait(h.submit("clip.mp4", policy.Request{Checks: []string{"nudity", "blur"}}).ID)

	require.Equal(t, moderation.JobCompleted, job.State)
	blur := job.Result(moderation.CheckBlur)
	assert.Equal(t, moderation.CheckFailed, blur.Status)
	assert.Equal(t, string(detector.KindPermanent), blur.ErrorKind)
}

func TestCancelInFlightIsIdempotent(t *testing.T) {
	t.Parallel()

	g := newGate()
	t.Cleanup(g.release)
	h := newHarness(t, testConfig(), g.detector(moderation.CheckNudity))

	submitted := h.submit("clip.mp4", policy.Request{Checks: []string{"nudity"}})
	<-g.entered
	h.waitState(submitted.ID, moderation.JobAnalyzing)

	first, err := h.o.Cancel(context.Background(), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, moderation.JobFailed, first.State)
	assert.Equal(t, moderation.ErrorKindCancelled, first.Error.Kind)

	second, err := h.o.Cancel(context.Background(), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, first.CompletedAt, second.CompletedAt)
	assert.Equal(t, first.Error, second.Error)

	// the detector result arriving after cancellation is discarded
	g.release()
	require.Eventually(t, func() bool { return h.o.ActiveJobs() == 0 }, waitFor, 5*time.Millisecond)
	stored, err := h.o.Status(context.Background(), submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, moderation.JobFailed, stored.State)
	assert.Equal(t, moderation.CheckFailed, stored.Result(moderation.CheckNudity).Status)
}

func TestAdmissionLimitKeepsJobsQueued(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxConcurrentJobs = 1
	g := newGate()
	t.Cleanup(g.release)
	h := newHarness(t, cfg, g.detector(moderation.CheckNudity))

	first := h.submit("one.mp4", policy.Request{Checks: []string{"nudity"}})
	<-g.entered
	second := h.submit("two.mp4", policy.Request{Checks: []string{"nudity"}})

	// give the second runner a chance to run; it must not be admitted
	time.Sleep(50 * time.Millisecond)
	queued, err := h.o.Status(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, moderation.JobQueued, queued.State)

	// a queued job can be cancelled before it ever starts
	cancelled, err := h.o.Cancel(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, moderation.JobFailed, cancelled.State)
	assert.Nil(t, cancelled.StartedAt)

	g.release()
	done := h.wait(first.ID)
	assert.Equal(t, moderation.JobCompleted, done.State)
}

func TestStatusIsStableAfterCompletion(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), allClean()...)
	job := h.wait(h.submit("clip.mp4", policy.Request{}).ID)

	first, err := json.Marshal(job)
	require.NoError(t, err)
	for range 5 {
		again, err := h.o.Status(context.Background(), job.ID)
		require.NoError(t, err)
		b, err := json.Marshal(again)
		require.NoError(t, err)
		assert.JSONEq(t, string(first), string(b))
		assert.Equal(t, first, b)
	}
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), allClean()...)

	tests := []struct {
		name string
		ref  string
		req  policy.Request
	}{
		{"unresolvable video", "missing.mp4", policy.Request{}},
		{"empty video", "  ", policy.Request{}},
		{"unknown level", "clip.mp4", policy.Request{Levels: map[string]string{"nudity": "paranoid"}}},
		{"unknown check", "clip.mp4", policy.Request{Checks: []string{"violence"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.o.Submit(context.Background(), tt.ref, tt.req)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation), "got %v", err)
		})
	}

	jobs, err := h.o.List(context.Background(), datastore.Filter{})
	require.NoError(t, err)
	assert.Empty(t, jobs, "rejected submissions are not stored")
}

func TestSubmitRequiresDetectorForEveryCheck(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), clean(moderation.CheckNudity))
	_, err := h.o.Submit(context.Background(), "clip.mp4", policy.Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no detector registered")
}

func TestSubmitAfterStop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(), allClean()...)
	require.NoError(t, h.o.Stop())

	_, err := h.o.Submit(context.Background(), "clip.mp4", policy.Request{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLimit))
}

func TestDeleteRequiresTerminalJob(t *testing.T) {
	t.Parallel()

	g := newGate()
	t.Cleanup(g.release)
	h := newHarness(t, testConfig(), g.detector(moderation.CheckNudity))

	job := h.submit("clip.mp4", policy.Request{Checks: []string{"nudity"}})
	<-g.entered

	err := h.o.Delete(context.Background(), job.ID)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict), "got %v", err)

	g.release()
	h.wait(job.ID)
	require.NoError(t, h.o.Delete(context.Background(), job.ID))

	_, err = h.o.Status(context.Background(), job.ID)
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.IsNotFound(h.o.Delete(context.Background(), job.ID)))
}

func TestResumeRestartsInterruptedJobs(t *testing.T) {
	t.Parallel()

	store := datastore.NewMemoryStore()
	cfg, err := testResolver().Snapshot(policy.Request{Checks: []string{"nudity"}})
	require.NoError(t, err)
	created := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	queued := moderation.NewJob("queued-1", "a.mp4", cfg, created)
	require.NoError(t, store.Create(ctx, queued))

	analyzing := moderation.NewJob("analyzing-1", "b.mp4", cfg, created.Add(time.Second))
	require.NoError(t, analyzing.Start(created.Add(2*time.Second)))
	require.NoError(t, store.Create(ctx, analyzing))

	gone := moderation.NewJob("gone-1", "missing.mp4", cfg, created.Add(3*time.Second))
	require.NoError(t, store.Create(ctx, gone))

	h := newHarnessWithStore(t, testConfig(), store, clean(moderation.CheckNudity))

	for _, id := range []string{"queued-1", "analyzing-1"} {
		job := h.wait(id)
		assert.Equal(t, moderation.JobCompleted, job.State, id)
		assert.Equal(t, moderation.VerdictApproved, job.Decision.Verdict, id)
	}

	resumed, err := h.o.Status(ctx, "analyzing-1")
	require.NoError(t, err)
	assert.True(t, resumed.CreatedAt.Equal(created.Add(time.Second)), "creation time survives resume")

	job := h.wait("gone-1")
	assert.Equal(t, moderation.JobFailed, job.State)
	assert.Equal(t, moderation.ErrorKindInternal, job.Error.Kind)
}

func TestStopLeavesUnfinishedJobsForResume(t *testing.T) {
	t.Parallel()

	store := datastore.NewMemoryStore()
	g := newGate()
	t.Cleanup(g.release)
	h := newHarnessWithStore(t, testConfig(), store, g.detector(moderation.CheckNudity))

	job := h.submit("clip.mp4", policy.Request{Checks: []string{"nudity"}})
	<-g.entered
	h.waitState(job.ID, moderation.JobAnalyzing)

	require.NoError(t, h.o.Stop())

	stored, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, moderation.JobAnalyzing, stored.State, "shutdown does not fail jobs")

	// cancelling while stopped goes straight to the store
	cancelled, err := h.o.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, moderation.JobFailed, cancelled.State)
	assert.Equal(t, moderation.ErrorKindCancelled, cancelled.Error.Kind)
}

func TestStatsAndList(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig(),
		result(moderation.CheckNudity, detector.RawResult{
			Score: 0.8, Scale: detector.ScaleUnit, Detections: []detector.RawDetection{},
		}),
	)

	reject := h.wait(h.submit("a.mp4", policy.Request{Checks: []string{"nudity"}}).ID)
	approve := h.wait(h.submit("b.mp4", policy.Request{Checks: []string{"nudity"}, Levels: map[string]string{"nudity": "lenient"}}).ID)
	require.Equal(t, moderation.VerdictRejected, reject.Decision.Verdict)
	require.Equal(t, moderation.VerdictApproved, approve.Decision.Verdict)

	stats, err := h.o.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Approved)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.ViolationBreakdown[moderation.CheckNudity])

	rejected, err := h.o.List(context.Background(), datastore.Filter{Verdict: moderation.VerdictRejected})
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, reject.ID, rejected[0].ID)
	assert.NotNil(t, h.o.PolicyTable())
}

func TestNewValidatesDependencies(t *testing.T) {
	t.Parallel()

	reg, err := detector.NewRegistry(allClean()...)
	require.NoError(t, err)
	full := Dependencies{
		Store:     datastore.NewMemoryStore(),
		Detectors: reg,
		Policy:    testResolver(),
		Media:     testMedia(),
	}

	_, err = New(testConfig(), full)
	require.NoError(t, err)

	missing := full
	missing.Store = nil
	_, err = New(testConfig(), missing)
	assert.True(t, errors.IsCategory(err, errors.CategoryInternal))

	cfg := testConfig()
	cfg.TimeoutPolicy = "ignore"
	_, err = New(cfg, full)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestNotifierPanicDoesNotStopDelivery(t *testing.T) {
	t.Parallel()

	reg, err := detector.NewRegistry(allClean()...)
	require.NoError(t, err)
	var delivered atomic.Int32
	o, err := New(testConfig(), Dependencies{
		Store:     datastore.NewMemoryStore(),
		Detectors: reg,
		Policy:    testResolver(),
		Media:     testMedia(),
		Notifiers: []Notifier{
			NotifierFunc(func(*moderation.Job) { panic("broken subscriber") }),
			NotifierFunc(func(*moderation.Job) { delivered.Add(1) }),
		},
	})
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, o.Stop()) })

	job, err := o.Submit(context.Background(), "clip.mp4", policy.Request{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		j, err := o.Status(context.Background(), job.ID)
		return err == nil && j.State.Terminal()
	}, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return delivered.Load() >= 3 }, waitFor, 5*time.Millisecond)
}
