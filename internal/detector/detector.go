// Package detector defines the contract every content detector implements,
// the error kinds it may report, and the registry the orchestrator dispatches from.
package detector

import (
	"context"
	"fmt"

	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/media"
	"github.com/tphakala/vidguard/internal/moderation"
)

// TimeUnit is the unit a detector reports interval boundaries in.
type TimeUnit string

const (
	UnitSeconds      TimeUnit = "seconds"
	UnitMilliseconds TimeUnit = "milliseconds"
	UnitFrames       TimeUnit = "frames"
)

// ScoreScale is the range a detector reports scores in.
type ScoreScale string

const (
	ScaleUnit    ScoreScale = "unit"    // 0..1
	ScalePercent ScoreScale = "percent" // 0..100
)

// RawDetection is one native detection. End may equal Start for point events.
type RawDetection struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Label  string  `json:"label"`
	Score  float64 `json:"score"`
	Detail string  `json:"detail,omitempty"`
}

// RawResult is a detector's native output before normalization.
type RawResult struct {
	Score      float64        `json:"score"`
	Scale      ScoreScale     `json:"scale"`
	TimeUnit   TimeUnit       `json:"time_unit"`
	FrameRate  float64        `json:"frame_rate,omitempty"`
	Detections []RawDetection `json:"detections"`
	Labels     []string       `json:"labels,omitempty"` // best-effort labels such as copyright sources
}

// Request is one detector invocation.
type Request struct {
	JobID  string
	Video  media.Video
	Check  moderation.CheckType
	Config moderation.CheckConfig
}

// Detector runs one policy check against a video. Implementations must be
// idempotent and should honor ctx; the caller enforces a timeout either way.
type Detector interface {
	Name() string
	Check() moderation.CheckType
	Detect(ctx context.Context, req Request) (RawResult, error)
}

// Func adapts a function to the Detector interface.
type Func struct {
	CheckType moderation.CheckType
	Label     string
	Fn        func(ctx context.Context, req Request) (RawResult, error)
}

func (f Func) Name() string {
	if f.Label != "" {
		return f.Label
	}
	return string(f.CheckType)
}

func (f Func) Check() moderation.CheckType { return f.CheckType }

func (f Func) Detect(ctx context.Context, req Request) (RawResult, error) {
	return f.Fn(ctx, req)
}

// Kind classifies detector failures.
type Kind string

const (
	KindTransient Kind = "transient" // worth retrying
	KindPermanent Kind = "permanent" // will fail again
	KindTimeout   Kind = "timeout"   // exceeded the per-call timeout
)

// Error is the error type detectors report. Other errors are classified by Classify.
type Error struct {
	Kind  Kind
	Check moderation.CheckType
	Err   error
}

func (e *Error) Error() string {
	if e.Check != "" {
		return fmt.Sprintf("%s detector %s error: %v", e.Check, e.Kind, e.Err)
	}
	return fmt.Sprintf("detector %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCategory implements errors.CategorizedError.
func (e *Error) ErrorCategory() errors.ErrorCategory {
	if e.Kind == KindTimeout {
		return errors.CategoryTimeout
	}
	return errors.CategoryDetector
}

// Transient wraps err as a retryable detector error.
func Transient(err error) *Error { return &Error{Kind: KindTransient, Err: err} }

// Permanent wraps err as a non-retryable detector error.
func Permanent(err error) *Error { return &Error{Kind: KindPermanent, Err: err} }

// Timeout wraps err as a timeout.
func Timeout(err error) *Error { return &Error{Kind: KindTimeout, Err: err} }

// Classify converts any error returned by a detector into *Error. Deadline
// errors become timeouts, unknown errors are treated as transient.
func Classify(check moderation.CheckType, err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		out := *de
		if out.Check == "" {
			out.Check = check
		}
		return &out
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Check: check, Err: err}
	}
	return &Error{Kind: KindTransient, Check: check, Err: err}
}
