// Package moderation holds the data model shared by the analysis pipeline:
// jobs, per-check results, evidence intervals, sensitivity snapshots and decisions.
package moderation

import (
	"slices"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CheckType identifies one policy-check capability.
type CheckType string

const (
	CheckNudity    CheckType = "nudity"
	CheckCopyright CheckType = "copyright"
	CheckFraud     CheckType = "fraud"
	CheckBlur      CheckType = "blur"
)

// AllChecks lists the known checks in canonical order. Canonical order breaks
// ties when ordering triggering checks and fixes the order of PerCheckResults.
var AllChecks = []CheckType{CheckNudity, CheckCopyright, CheckFraud, CheckBlur}

// Valid reports whether c is a known check type.
func (c CheckType) Valid() bool {
	return slices.Contains(AllChecks, c)
}

// Rank returns the canonical position of c, or len(AllChecks) for unknown checks.
func (c CheckType) Rank() int {
	if i := slices.Index(AllChecks, c); i >= 0 {
		return i
	}
	return len(AllChecks)
}

// DisplayName is the capitalized label used in reasoning text.
func (c CheckType) DisplayName() string {
	if c == CheckBlur {
		return "Sensitive content"
	}
	// Casers are stateful, so each call gets its own.
	return cases.Title(language.English).String(string(c))
}

// CheckStatus is the lifecycle of one PerCheckResult.
type CheckStatus string

const (
	CheckPending   CheckStatus = "pending"
	CheckSucceeded CheckStatus = "succeeded"
	CheckFailed    CheckStatus = "failed"
	CheckTimedOut  CheckStatus = "timed_out"
)

// Terminal reports whether the check will not change again.
func (s CheckStatus) Terminal() bool {
	return s != CheckPending
}

// JobState is the lifecycle of an AnalysisJob.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobAnalyzing JobState = "analyzing"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether s is absorbing.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Valid reports whether s is a known state.
func (s JobState) Valid() bool {
	switch s {
	case JobQueued, JobAnalyzing, JobCompleted, JobFailed:
		return true
	}
	return false
}

// Verdict is the binary outcome of a completed job.
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictRejected Verdict = "rejected"
)

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	return v == VerdictApproved || v == VerdictRejected
}

// Level is a named sensitivity level.
type Level string

const (
	LevelStrict   Level = "strict"
	LevelModerate Level = "moderate"
	LevelLenient  Level = "lenient"
)

// Levels lists the supported sensitivity levels from most to least sensitive.
var Levels = []Level{LevelStrict, LevelModerate, LevelLenient}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	return slices.Contains(Levels, l)
}

// Interval is one piece of evidence produced by a detector, in seconds.
// A zero-length interval is a point event.
type Interval struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
	Detail   string  `json:"detail,omitempty"`
}

// Duration returns End-Start.
func (iv Interval) Duration() float64 {
	return iv.End - iv.Start
}

// CheckResult is the outcome of one detector on one job.
type CheckResult struct {
	Check       CheckType   `json:"check"`
	Status      CheckStatus `json:"status"`
	Score       float64     `json:"score"`
	Intervals   []Interval  `json:"intervals"`
	Labels      []string    `json:"labels,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Attempts    int         `json:"attempts,omitempty"`
	Error       string      `json:"error,omitempty"`
	ErrorKind   string      `json:"error_kind,omitempty"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// LevelPolicy is what a sensitivity level resolves to for one check.
type LevelPolicy struct {
	Threshold    float64 `json:"threshold" yaml:"threshold"`
	MinIntervals int     `json:"min_intervals" yaml:"min_intervals"`
	MinDuration  float64 `json:"min_duration" yaml:"min_duration"`
}

// CheckConfig is the resolved configuration of one check in a job snapshot.
type CheckConfig struct {
	Level    Level       `json:"level"`
	Policy   LevelPolicy `json:"policy"`
	Required bool        `json:"required,omitempty"`
}

// SensitivityConfig is the per-job configuration snapshot. It is captured at
// submission and never changes afterwards.
type SensitivityConfig struct {
	PolicyVersion string                    `json:"policy_version"`
	MergeEpsilon  float64                   `json:"merge_epsilon"`
	Checks        map[CheckType]CheckConfig `json:"checks"`
}

// CheckOrder returns the configured checks in canonical order.
func (c SensitivityConfig) CheckOrder() []CheckType {
	out := make([]CheckType, 0, len(c.Checks))
	for _, ct := range AllChecks {
		if _, ok := c.Checks[ct]; ok {
			out = append(out, ct)
		}
	}
	return out
}

// Span is a merged trigger span used in reasoning.
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Trigger references the evidence that made a check trigger. Intervals is
// empty when the aggregate score alone triggered.
type Trigger struct {
	Check     CheckType  `json:"check"`
	Level     Level      `json:"level"`
	Threshold float64    `json:"threshold"`
	MaxScore  float64    `json:"max_score"`
	Aggregate bool       `json:"aggregate"`
	Intervals []Interval `json:"intervals,omitempty"`
	Spans     []Span     `json:"spans,omitempty"`
}

// Decision is the final outcome of a completed job.
type Decision struct {
	Verdict    Verdict   `json:"verdict"`
	Confidence float64   `json:"confidence"`
	Triggers   []Trigger `json:"triggers"`
	Reasoning  string    `json:"reasoning"`
	DecidedAt  time.Time `json:"decided_at"`
}

// ErrorKind classifies why a job failed.
type ErrorKind string

const (
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindCancelled ErrorKind = "cancelled"
	ErrorKindDetector  ErrorKind = "detector"
	ErrorKindRequired  ErrorKind = "required_check"
	ErrorKindInternal  ErrorKind = "internal"
)

// JobError is the failure detail of a failed job.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Check   CheckType `json:"check,omitempty"`
}
