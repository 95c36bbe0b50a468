package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/vidguard/internal/datastore"
	"github.com/tphakala/vidguard/internal/detector"
	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/media"
	"github.com/tphakala/vidguard/internal/moderation"
	"github.com/tphakala/vidguard/internal/policy"
)

const waitFor = 5 * time.Second

func testConfig() Config {
	return Config{
		MaxConcurrentJobs: 2,
		DetectorTimeout:   time.Second,
		JobTimeout:        3 * time.Second,
		TimeoutPolicy:     TimeoutPolicyFail,
		Retry:             detector.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		StopTimeout:       5 * time.Second,
	}
}

func testResolver() *policy.Resolver {
	return policy.NewResolver(policy.Default(), policy.Defaults{
		Levels: map[string]string{
			"nudity": "moderate", "copyright": "moderate", "fraud": "strict", "blur": "moderate",
		},
		MergeEpsilon: 0.5,
	})
}

// testMedia accepts any reference except those containing "missing".
func testMedia() media.Resolver {
	return media.ResolverFunc(func(ctx context.Context, ref string) (media.Video, error) {
		if strings.Contains(ref, "missing") || strings.TrimSpace(ref) == "" {
			return media.Video{}, errors.Newf("video %q not found", ref).Category(errors.CategoryValidation).Build()
		}
		return media.Video{Ref: ref, Location: "/videos/" + ref, Name: ref}, nil
	})
}

// clean returns a detector reporting a low score and no evidence.
func clean(check moderation.CheckType) detector.Detector {
	return result(check, detector.RawResult{Score: 0.1, Scale: detector.ScaleUnit, Detections: []detector.RawDetection{}})
}

func result(check moderation.CheckType, res detector.RawResult) detector.Detector {
	return detector.Func{CheckType: check, Fn: func(ctx context.Context, req detector.Request) (detector.RawResult, error) {
		return res, nil
	}}
}

func failing(check moderation.CheckType, err error) detector.Detector {
	return detector.Func{CheckType: check, Fn: func(ctx context.Context, req detector.Request) (detector.RawResult, error) {
		return detector.RawResult{}, err
	}}
}

// gate blocks detectors until opened or their context ends.
type gate struct {
	once    sync.Once
	open    chan struct{}
	entered chan moderation.CheckType
}

func newGate() *gate {
	return &gate{open: make(chan struct{}), entered: make(chan moderation.CheckType, 64)}
}

func (g *gate) release() { g.once.Do(func() { close(g.open) }) }

func (g *gate) detector(check moderation.CheckType) detector.Detector {
	return detector.Func{CheckType: check, Fn: func(ctx context.Context, req detector.Request) (detector.RawResult, error) {
		g.entered <- check
		select {
		case <-g.open:
			return detector.RawResult{Score: 0.1, Scale: detector.ScaleUnit}, nil
		case <-ctx.Done():
			return detector.RawResult{}, ctx.Err()
		}
	}}
}

type harness struct {
	t     *testing.T
	o     *Orchestrator
	store *datastore.MemoryStore
	seen  *recorder
}

// recorder collects notifications.
type recorder struct {
	mu     sync.Mutex
	states map[string][]moderation.JobState
}

func (r *recorder) Notify(job *moderation.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[job.ID] = append(r.states[job.ID], job.State)
}

func (r *recorder) statesOf(id string) []moderation.JobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]moderation.JobState(nil), r.states[id]...)
}

func newHarness(t *testing.T, cfg Config, detectors ...detector.Detector) *harness {
	t.Helper()
	return newHarnessWithStore(t, cfg, datastore.NewMemoryStore(), detectors...)
}

func newHarnessWithStore(t *testing.T, cfg Config, store *datastore.MemoryStore, detectors ...detector.Detector) *harness {
	t.Helper()
	reg, err := detector.NewRegistry(detectors...)
	require.NoError(t, err)

	rec := &recorder{states: make(map[string][]moderation.JobState)}
	o, err := New(cfg, Dependencies{
		Store:     store,
		Detectors: reg,
		Policy:    testResolver(),
		Media:     testMedia(),
		Notifiers: []Notifier{rec},
	})
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, o.Stop()) })
	return &harness{t: t, o: o, store: store, seen: rec}
}

func (h *harness) submit(ref string, req policy.Request) *moderation.Job {
	h.t.Helper()
	job, err := h.o.Submit(context.Background(), ref, req)
	require.NoError(h.t, err)
	return job
}

// wait polls until the job reaches a terminal state.
func (h *harness) wait(id string) *moderation.Job {
	h.t.Helper()
	var job *moderation.Job
	require.Eventually(h.t, func() bool {
		var err error
		job, err = h.o.Status(context.Background(), id)
		require.NoError(h.t, err)
		return job.State.Terminal()
	}, waitFor, 5*time.Millisecond)
	return job
}

func (h *harness) waitState(id string, state moderation.JobState) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		job, err := h.o.Status(context.Background(), id)
		require.NoError(h.t, err)
		return job.State == state
	}, waitFor, 5*time.Millisecond)
}
