package moderation

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/tphakala/vidguard/internal/errors"
)

// Job is one analysis request and its progress. Once State is terminal the
// job is immutable.
type Job struct {
	ID          string            `json:"id"`
	VideoRef    string            `json:"video_ref"`
	Config      SensitivityConfig `json:"config"`
	State       JobState          `json:"state"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Checks      []CheckResult     `json:"checks"`
	Decision    *Decision         `json:"decision,omitempty"`
	Error       *JobError         `json:"error,omitempty"`
}

// NewJob creates a queued job with one pending result per configured check.
func NewJob(id, videoRef string, cfg SensitivityConfig, now time.Time) *Job {
	j := &Job{
		ID:        id,
		VideoRef:  videoRef,
		Config:    cfg,
		State:     JobQueued,
		CreatedAt: now,
	}
	for _, ct := range cfg.CheckOrder() {
		j.Checks = append(j.Checks, CheckResult{
			Check:     ct,
			Status:    CheckPending,
			Intervals: []Interval{},
			Required:  cfg.Checks[ct].Required,
		})
	}
	return j
}

// Result returns a pointer to the result for check, or nil.
func (j *Job) Result(check CheckType) *CheckResult {
	for i := range j.Checks {
		if j.Checks[i].Check == check {
			return &j.Checks[i]
		}
	}
	return nil
}

// AllChecksTerminal reports whether every check has reported.
func (j *Job) AllChecksTerminal() bool {
	for i := range j.Checks {
		if !j.Checks[i].Status.Terminal() {
			return false
		}
	}
	return true
}

// ProcessingTime is the time from start to completion, zero while running.
func (j *Job) ProcessingTime() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// Start moves a queued job to analyzing.
func (j *Job) Start(now time.Time) error {
	if j.State != JobQueued {
		return illegalTransition(j, JobAnalyzing)
	}
	j.State = JobAnalyzing
	j.StartedAt = &now
	for i := range j.Checks {
		j.Checks[i].StartedAt = &now
	}
	return nil
}

// Complete records the decision and moves an analyzing job to completed.
func (j *Job) Complete(d *Decision, now time.Time) error {
	if j.State != JobAnalyzing {
		return illegalTransition(j, JobCompleted)
	}
	if d == nil {
		return errors.InternalFault("job %s completed without a decision", j.ID)
	}
	j.State = JobCompleted
	j.Decision = d
	j.CompletedAt = &now
	return nil
}

// Fail moves a non-terminal job to failed. Pending checks are closed with
// pendingStatus so partial evidence stays readable.
func (j *Job) Fail(jerr JobError, pendingStatus CheckStatus, now time.Time) error {
	if j.State.Terminal() {
		return illegalTransition(j, JobFailed)
	}
	for i := range j.Checks {
		if !j.Checks[i].Status.Terminal() {
			j.Checks[i].Status = pendingStatus
			j.Checks[i].CompletedAt = &now
		}
	}
	j.State = JobFailed
	j.Error = &jerr
	j.CompletedAt = &now
	return nil
}

func illegalTransition(j *Job, to JobState) error {
	return errors.Newf("illegal transition of job %s from %s to %s", j.ID, j.State, to).
		Category(errors.CategoryState).
		Context("job_id", j.ID).
		Build()
}

// Clone returns a deep copy safe to hand out to readers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Config = j.Config.Clone()
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	c.Checks = make([]CheckResult, len(j.Checks))
	for i := range j.Checks {
		c.Checks[i] = j.Checks[i].Clone()
	}
	if j.Decision != nil {
		d := *j.Decision
		d.Triggers = make([]Trigger, len(j.Decision.Triggers))
		for i, t := range j.Decision.Triggers {
			t.Intervals = slices.Clone(t.Intervals)
			t.Spans = slices.Clone(t.Spans)
			d.Triggers[i] = t
		}
		c.Decision = &d
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	return &c
}

// Clone returns a deep copy of the result.
func (r CheckResult) Clone() CheckResult {
	r.Intervals = slices.Clone(r.Intervals)
	if r.Intervals == nil {
		r.Intervals = []Interval{}
	}
	r.Labels = slices.Clone(r.Labels)
	r.StartedAt = cloneTime(r.StartedAt)
	r.CompletedAt = cloneTime(r.CompletedAt)
	return r
}

// Clone returns a deep copy of the snapshot.
func (c SensitivityConfig) Clone() SensitivityConfig {
	c.Checks = maps.Clone(c.Checks)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// String implements fmt.Stringer for log output.
func (e JobError) String() string {
	if e.Check != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Check, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
