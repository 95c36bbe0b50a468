package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/vidguard/internal/detector"
	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/logger"
	"github.com/tphakala/vidguard/internal/media"
	"github.com/tphakala/vidguard/internal/moderation"
)

// runner is the single writer of one job. Every mutation of job happens with
// mu held and is written through to the store before mu is released.
type runner struct {
	o      *Orchestrator
	video  media.Video
	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	job *moderation.Job
}

func (r *runner) log() logger.Logger {
	return GetLogger().With(logger.JobID(r.job.ID))
}

func (r *runner) run() {
	defer r.o.runningJobs.Done()
	defer r.o.release(r.job.ID)
	defer r.cancel()

	if err := r.o.admission.Acquire(r.ctx, 1); err != nil {
		// cancelled while queued, or shutting down
		return
	}
	defer r.o.admission.Release(1)

	checks, ok := r.start()
	if !ok {
		return
	}

	if r.o.cfg.JobTimeout > 0 {
		fired := make(chan struct{})
		timer := time.AfterFunc(r.o.cfg.JobTimeout, func() {
			defer close(fired)
			r.timeout()
		})
		defer func() {
			if !timer.Stop() {
				<-fired
			}
		}()
	}

	g := new(errgroup.Group)
	if limit := r.o.cfg.DetectorParallelism; limit > 0 {
		g.SetLimit(limit)
	}
	for _, check := range checks {
		d, _ := r.o.detectors.Get(check)
		req := detector.Request{
			JobID:  r.job.ID,
			Video:  r.video,
			Check:  check,
			Config: r.job.Config.Checks[check],
		}
		g.Go(func() error {
			if r.ctx.Err() != nil {
				r.record(check, detector.Outcome{Err: detector.Classify(check, r.ctx.Err())})
				return nil
			}
			r.record(check, detector.Call(r.ctx, d, req, r.o.cfg.DetectorTimeout, r.o.cfg.Retry))
			return nil
		})
	}
	_ = g.Wait()
}

// start moves the job to analyzing and returns the checks to dispatch.
func (r *runner) start() ([]moderation.CheckType, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.job.State != moderation.JobQueued {
		return nil, false
	}
	now := r.o.clock()
	if err := r.job.Start(now); err != nil {
		r.log().Error("cannot start job", logger.Error(err))
		return nil, false
	}
	if !r.persist() {
		return nil, false
	}
	r.log().Info("analysis started", logger.Int("checks", len(r.job.Checks)))
	return r.job.Config.CheckOrder(), true
}

// record applies one detector outcome. Outcomes that arrive after the job
// left analyzing are discarded.
func (r *runner) record(check moderation.CheckType, out detector.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.job.State != moderation.JobAnalyzing {
		r.log().Debug("discarding late detector result", logger.Check(string(check)))
		return
	}
	if out.Err != nil && r.o.isStopping() && errors.Is(out.Err, context.Canceled) {
		// shutting down; the job is resumed on the next start
		return
	}
	res := r.job.Result(check)
	if res == nil || res.Status.Terminal() {
		return
	}

	now := r.o.clock()
	res.Attempts = out.Attempts
	res.CompletedAt = &now
	derr := out.Err
	if derr == nil {
		ev, err := r.o.normalizer.Normalize(check, out.Result)
		if err == nil {
			res.Status = moderation.CheckSucceeded
			res.Score = ev.Score
			res.Intervals = ev.Intervals
			res.Labels = ev.Labels
		} else {
			derr = detector.Classify(check, err)
		}
	}
	if derr != nil {
		res.Status = moderation.CheckFailed
		if derr.Kind == detector.KindTimeout {
			res.Status = moderation.CheckTimedOut
		}
		res.Error = derr.Error()
		res.ErrorKind = string(derr.Kind)
		r.log().Warn("check did not succeed",
			logger.Check(string(check)),
			logger.String("kind", string(derr.Kind)),
			logger.Int("attempts", out.Attempts),
			logger.Error(derr))
	}

	if res.Required && res.Status != moderation.CheckSucceeded {
		r.fail(moderation.JobError{
			Kind:    moderation.ErrorKindRequired,
			Check:   check,
			Message: fmt.Sprintf("required check %s %s: %s", check, res.Status, res.Error),
		}, moderation.CheckFailed)
		return
	}
	if r.job.AllChecksTerminal() {
		r.resolve()
		return
	}
	r.persist()
}

// timeout fires when the whole-job timeout elapses.
func (r *runner) timeout() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.job.State != moderation.JobAnalyzing || r.o.isStopping() {
		return
	}

	var pending []string
	var pendingRequired []moderation.CheckType
	for _, c := range r.job.Checks {
		if !c.Status.Terminal() {
			pending = append(pending, string(c.Check))
			if c.Required {
				pendingRequired = append(pendingRequired, c.Check)
			}
		}
	}
	jerr := moderation.JobError{
		Kind: moderation.ErrorKindTimeout,
		Message: fmt.Sprintf("analysis exceeded the job timeout of %s with pending checks: %s",
			r.o.cfg.JobTimeout, strings.Join(pending, ", ")),
	}
	r.log().Warn("job timeout elapsed", logger.String("pending", strings.Join(pending, ",")))

	if r.o.cfg.TimeoutPolicy == TimeoutPolicyResolve && len(pendingRequired) == 0 {
		now := r.o.clock()
		for i := range r.job.Checks {
			c := &r.job.Checks[i]
			if !c.Status.Terminal() {
				c.Status = moderation.CheckTimedOut
				c.ErrorKind = string(detector.KindTimeout)
				c.Error = "job timeout elapsed before the check reported"
				c.CompletedAt = &now
			}
		}
		r.resolve()
		return
	}
	if len(pendingRequired) > 0 {
		jerr.Check = pendingRequired[0]
	}
	r.fail(jerr, moderation.CheckTimedOut)
}

// cancelJob fails the job with a cancellation error. It is idempotent.
func (r *runner) cancelJob() *moderation.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.job.State.Terminal() {
		r.log().Info("analysis cancelled")
		r.fail(cancelledError(), moderation.CheckFailed)
	}
	return r.job.Clone()
}

// resolve aggregates a job whose checks are all terminal. Called with mu held.
func (r *runner) resolve() {
	succeeded := 0
	var failures []string
	for _, c := range r.job.Checks {
		if c.Status == moderation.CheckSucceeded {
			succeeded++
			continue
		}
		failures = append(failures, fmt.Sprintf("%s %s", c.Check, c.Status))
	}
	if succeeded == 0 {
		r.fail(moderation.JobError{
			Kind:    moderation.ErrorKindDetector,
			Message: "no check succeeded: " + strings.Join(failures, ", "),
		}, moderation.CheckFailed)
		return
	}

	decision, err := r.o.aggregator.Aggregate(r.job)
	if err != nil {
		r.log().Error("aggregation failed", logger.Error(err))
		r.fail(moderation.JobError{Kind: moderation.ErrorKindInternal, Message: err.Error()}, moderation.CheckFailed)
		return
	}
	if err := r.job.Complete(decision, r.o.clock()); err != nil {
		r.fail(moderation.JobError{Kind: moderation.ErrorKindInternal, Message: err.Error()}, moderation.CheckFailed)
		return
	}
	r.cancel()
	if r.persist() {
		r.log().Info("analysis completed",
			logger.String("verdict", string(decision.Verdict)),
			logger.Float64("confidence", decision.Confidence),
			logger.Int("triggers", len(decision.Triggers)),
			logger.Duration("processing_time", r.job.ProcessingTime()))
	}
}

// fail moves the job to failed. Called with mu held.
func (r *runner) fail(jerr moderation.JobError, pendingStatus moderation.CheckStatus) {
	if err := r.job.Fail(jerr, pendingStatus, r.o.clock()); err != nil {
		r.log().Error("cannot fail job", logger.Error(err))
		return
	}
	r.cancel()
	if r.persist() {
		r.log().Info("analysis failed",
			logger.String("kind", string(jerr.Kind)),
			logger.Check(string(jerr.Check)),
			logger.String("error", jerr.Message))
	}
}

// persist writes the job through to the store and notifies subscribers. A
// failed write of a non-terminal job fails the job. Called with mu held.
func (r *runner) persist() bool {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), persistTimeout)
	defer cancel()

	err := r.o.store.Save(ctx, r.job)
	if err == nil {
		r.o.events.publish(r.job.Clone())
		return true
	}
	r.log().Error("failed to persist job", logger.Error(err))
	if r.job.State.Terminal() {
		return false
	}
	fault := errors.InternalFault("persisting job %s: %v", r.job.ID, err)
	_ = r.job.Fail(moderation.JobError{Kind: moderation.ErrorKindInternal, Message: fault.Error()},
		moderation.CheckFailed, r.o.clock())
	r.cancel()
	if err := r.o.store.Save(ctx, r.job); err != nil {
		r.log().Error("failed to persist job failure", logger.Error(err))
		return false
	}
	r.o.events.publish(r.job.Clone())
	return false
}

const persistTimeout = 10 * time.Second
