package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/tphakala/vidguard/internal/aggregator"
	"github.com/tphakala/vidguard/internal/datastore"
	"github.com/tphakala/vidguard/internal/detector"
	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/logger"
	"github.com/tphakala/vidguard/internal/media"
	"github.com/tphakala/vidguard/internal/moderation"
	"github.com/tphakala/vidguard/internal/normalizer"
	"github.com/tphakala/vidguard/internal/policy"
)

// Dependencies are the collaborators of an Orchestrator. Normalizer and
// Aggregator default to the built-in implementations when nil.
type Dependencies struct {
	Store      datastore.Interface
	Detectors  *detector.Registry
	Policy     *policy.Resolver
	Media      media.Resolver
	Normalizer *normalizer.Normalizer
	Aggregator *aggregator.Aggregator
	Notifiers  []Notifier
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the clock. Timestamps are always stored in UTC.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator replaces the job id generator.
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// Orchestrator owns the lifecycle of analysis jobs.
type Orchestrator struct {
	cfg        Config
	store      datastore.Interface
	detectors  *detector.Registry
	policy     *policy.Resolver
	media      media.Resolver
	normalizer *normalizer.Normalizer
	aggregator *aggregator.Aggregator
	events     *dispatcher
	now        func() time.Time
	newID      func() string

	admission *semaphore.Weighted

	mu          sync.Mutex
	runners     map[string]*runner
	isRunning   bool
	stopping    bool
	baseCtx     context.Context
	cancelAll   context.CancelFunc
	runningJobs sync.WaitGroup
}

// New creates an orchestrator. Call Start before submitting jobs.
func New(cfg Config, deps Dependencies, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.InternalFault("orchestrator needs a result store")
	case deps.Detectors == nil:
		return nil, errors.InternalFault("orchestrator needs a detector registry")
	case deps.Policy == nil:
		return nil, errors.InternalFault("orchestrator needs a policy resolver")
	case deps.Media == nil:
		return nil, errors.InternalFault("orchestrator needs a media resolver")
	}
	cfg = cfg.withDefaults()
	if cfg.TimeoutPolicy != TimeoutPolicyFail && cfg.TimeoutPolicy != TimeoutPolicyResolve {
		return nil, errors.Newf("unknown timeout policy %q", cfg.TimeoutPolicy).
			Component("orchestrator").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = normalizer.Default()
	}
	if deps.Aggregator == nil {
		deps.Aggregator = aggregator.New()
	}

	o := &Orchestrator{
		cfg:        cfg,
		store:      deps.Store,
		detectors:  deps.Detectors,
		policy:     deps.Policy,
		media:      deps.Media,
		normalizer: deps.Normalizer,
		aggregator: deps.Aggregator,
		events:     newDispatcher(deps.Notifiers, cfg.EventBuffer),
		now:        time.Now,
		newID:      uuid.NewString,
		admission:  semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
		runners:    make(map[string]*runner),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Start begins processing and resumes every job the store still holds in a
// non-terminal state. ctx bounds the resume reads only; jobs run until Stop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.isRunning {
		o.mu.Unlock()
		return nil
	}
	o.baseCtx, o.cancelAll = context.WithCancel(context.WithoutCancel(ctx))
	o.isRunning = true
	o.stopping = false
	o.mu.Unlock()

	o.events.start()
	return o.resume(ctx)
}

// Stop stops processing and waits for running jobs to wind down.
func (o *Orchestrator) Stop() error {
	return o.StopWithTimeout(o.cfg.StopTimeout)
}

// StopWithTimeout stops processing. Jobs that have not finished stay queued
// or analyzing in the store and are resumed by the next Start.
func (o *Orchestrator) StopWithTimeout(timeout time.Duration) error {
	o.mu.Lock()
	if !o.isRunning {
		o.mu.Unlock()
		return nil
	}
	o.isRunning = false
	o.stopping = true
	o.cancelAll()
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.runningJobs.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = errors.Newf("timed out waiting for jobs to stop after %v", timeout).
			Component("orchestrator").
			Category(errors.CategoryTimeout).
			Build()
	}
	o.events.stop()
	return err
}

// Submit validates the request, records a queued job and schedules it. It
// never waits for detectors.
func (o *Orchestrator) Submit(ctx context.Context, videoRef string, req policy.Request) (*moderation.Job, error) {
	if !o.running() {
		return nil, errStopped()
	}
	video, err := o.media.Resolve(ctx, videoRef)
	if err != nil {
		return nil, err
	}
	cfg, err := o.policy.Snapshot(req)
	if err != nil {
		return nil, err
	}
	if err := o.detectors.Supports(cfg); err != nil {
		return nil, err
	}

	job := moderation.NewJob(o.newID(), strings.TrimSpace(videoRef), cfg, o.clock())
	if err := o.store.Create(ctx, job); err != nil {
		return nil, err
	}
	GetLogger().Info("analysis submitted",
		logger.JobID(job.ID),
		logger.String("video_ref", job.VideoRef),
		logger.String("policy_version", cfg.PolicyVersion),
		logger.Int("checks", len(job.Checks)))
	o.events.publish(job.Clone())

	if err := o.schedule(job, video); err != nil {
		return nil, err
	}
	return job.Clone(), nil
}

// Status returns the current state of a job.
func (o *Orchestrator) Status(ctx context.Context, id string) (*moderation.Job, error) {
	return o.store.Get(ctx, id)
}

// Cancel fails a non-terminal job with a cancellation error. Cancelling a
// terminal job is a no-op that returns it unchanged.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*moderation.Job, error) {
	if r := o.runner(id); r != nil {
		return r.cancelJob(), nil
	}

	job, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State.Terminal() {
		return job, nil
	}
	// not owned by this process, for example while stopped
	if err := job.Fail(cancelledError(), moderation.CheckFailed, o.clock()); err != nil {
		return nil, err
	}
	if err := o.store.Save(ctx, job); err != nil {
		return nil, err
	}
	o.events.publish(job.Clone())
	return job, nil
}

// Delete removes a terminal job.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	job, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !job.State.Terminal() {
		return errors.Newf("analysis job %s is %s; cancel it before deleting", id, job.State).
			Component("orchestrator").
			Category(errors.CategoryConflict).
			Context("job_id", id).
			Build()
	}
	return o.store.Delete(ctx, id)
}

// List returns stored jobs, newest first.
func (o *Orchestrator) List(ctx context.Context, filter datastore.Filter) ([]*moderation.Job, error) {
	return o.store.List(ctx, filter)
}

// Stats summarizes stored jobs.
func (o *Orchestrator) Stats(ctx context.Context) (datastore.Stats, error) {
	return o.store.Stats(ctx)
}

// PolicyTable returns the policy table new jobs are resolved against.
func (o *Orchestrator) PolicyTable() *policy.Table {
	return o.policy.Table()
}

// ActiveJobs returns the number of jobs owned by this process.
func (o *Orchestrator) ActiveJobs() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.runners)
}

// schedule registers a runner for job and starts its goroutine.
func (o *Orchestrator) schedule(job *moderation.Job, video media.Video) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.isRunning {
		return errStopped()
	}
	if _, exists := o.runners[job.ID]; exists {
		return nil
	}
	ctx, cancel := context.WithCancel(o.baseCtx)
	r := &runner{o: o, job: job.Clone(), video: video, ctx: ctx, cancel: cancel}
	o.runners[job.ID] = r
	o.runningJobs.Add(1)
	go r.run()
	return nil
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.runners, id)
}

func (o *Orchestrator) runner(id string) *runner {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runners[id]
}

func (o *Orchestrator) running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isRunning
}

func (o *Orchestrator) isStopping() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopping
}

func (o *Orchestrator) clock() time.Time {
	return o.now().UTC()
}

func cancelledError() moderation.JobError {
	return moderation.JobError{Kind: moderation.ErrorKindCancelled, Message: "analysis cancelled by caller"}
}
