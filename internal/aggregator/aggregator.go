// Package aggregator turns the terminal check results of a job into a
// verdict with ordered triggers and reasoning text.
package aggregator

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/moderation"
)

// Aggregator renders decisions. It is stateless and safe for concurrent use.
type Aggregator struct {
	now func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock sets the clock used for Decision.DecidedAt.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Aggregate decides job. Every check must be terminal; anything else is an
// internal fault and never yields a verdict.
func (a *Aggregator) Aggregate(job *moderation.Job) (*moderation.Decision, error) {
	if job == nil {
		return nil, errors.InternalFault("aggregate called with nil job")
	}
	if len(job.Checks) == 0 {
		return nil, errors.New(errors.NewStd("job has no checks")).
			Component("aggregator").
			Category(errors.CategoryInternal).
			JobContext(job.ID, "").
			Build()
	}
	if job.State.Terminal() || !job.AllChecksTerminal() {
		return nil, errors.Newf("cannot aggregate job %s in state %s (pending checks: %v)",
			job.ID, job.State, pendingChecks(job)).
			Component("aggregator").
			Category(errors.CategoryInternal).
			Priority(errors.PriorityHigh).
			JobContext(job.ID, "").
			Build()
	}

	var triggers []moderation.Trigger
	var sentences []string
	var missingRequired []moderation.CheckResult
	for _, ct := range orderedChecks(job.Checks) {
		result := job.Result(ct)
		cfg := job.Config.Checks[ct]
		if result.Status != moderation.CheckSucceeded {
			if result.Required || cfg.Required {
				missingRequired = append(missingRequired, *result)
			}
			continue
		}
		if t, ok := Evaluate(*result, cfg, job.Config.MergeEpsilon); ok {
			triggers = append(triggers, t)
		}
	}
	SortTriggers(triggers)

	d := &moderation.Decision{
		Triggers:  triggers,
		DecidedAt: a.now().UTC(),
	}
	switch {
	case len(triggers) > 0:
		d.Verdict = moderation.VerdictRejected
		for _, t := range triggers {
			sentences = append(sentences, triggerSentence(t, *job.Result(t.Check)))
		}
		d.Reasoning = strings.Join(sentences, " ")
	case len(missingRequired) > 0:
		d.Verdict = moderation.VerdictRejected
		d.Triggers = []moderation.Trigger{}
		d.Reasoning = failSafeReasoning(missingRequired)
	default:
		d.Verdict = moderation.VerdictApproved
		d.Triggers = []moderation.Trigger{}
		d.Reasoning = approvalReasoning(job.Checks)
	}
	d.Confidence = Confidence(d.Verdict, triggers, job.Checks)
	return d, nil
}

// Evaluate reports whether one succeeded check triggers under cfg. A check
// triggers when its aggregate score reaches the threshold, or when its
// above-threshold intervals satisfy the level's minimum count and minimum
// merged duration. An aggregate-only trigger carries no spans.
func Evaluate(result moderation.CheckResult, cfg moderation.CheckConfig, epsilon float64) (moderation.Trigger, bool) {
	if result.Status != moderation.CheckSucceeded {
		return moderation.Trigger{}, false
	}
	threshold := cfg.Policy.Threshold

	var hits []moderation.Interval
	for _, iv := range result.Intervals {
		if iv.Score >= threshold {
			hits = append(hits, iv)
		}
	}
	spans := MergeSpans(hits, epsilon)
	intervalHit := len(hits) > 0 &&
		len(hits) >= cfg.Policy.MinIntervals &&
		SpanDuration(spans) >= cfg.Policy.MinDuration
	aggregateHit := result.Score >= threshold
	if !aggregateHit && !intervalHit {
		return moderation.Trigger{}, false
	}

	trigger := moderation.Trigger{
		Check:     result.Check,
		Level:     cfg.Level,
		Threshold: threshold,
		MaxScore:  maxScore(result),
		Aggregate: aggregateHit,
	}
	if intervalHit {
		trigger.Intervals = hits
		trigger.Spans = spans
	}
	return trigger, true
}

// SortTriggers orders triggers by descending max score, then canonical check
// order, so the most severe violation leads the reasoning.
func SortTriggers(triggers []moderation.Trigger) {
	slices.SortStableFunc(triggers, func(a, b moderation.Trigger) int {
		return cmp.Or(
			cmp.Compare(b.MaxScore, a.MaxScore),
			cmp.Compare(a.Check.Rank(), b.Check.Rank()),
		)
	})
}

// Confidence derives the overall decision confidence in [0,100]. Approvals
// score higher the further the worst check stayed below 100. Rejections
// start at 70 and gain up to 20 for severity and up to 10 for the number of
// triggering checks.
func Confidence(verdict moderation.Verdict, triggers []moderation.Trigger, checks []moderation.CheckResult) float64 {
	if verdict == moderation.VerdictApproved {
		var risk float64
		for _, c := range checks {
			if c.Status == moderation.CheckSucceeded {
				risk = max(risk, maxScore(c)/100)
			}
		}
		return round1(min(90+(1-risk)*10, 100))
	}

	var risk float64
	for _, t := range triggers {
		risk = max(risk, t.MaxScore/100)
	}
	severity := min(risk*20, 20)
	count := min(float64(len(triggers))*5, 10)
	return round1(min(70+severity+count, 100))
}

// maxScore is the highest of the aggregate score and every interval score.
func maxScore(r moderation.CheckResult) float64 {
	best := r.Score
	for _, iv := range r.Intervals {
		best = max(best, iv.Score)
	}
	return best
}

func orderedChecks(results []moderation.CheckResult) []moderation.CheckType {
	out := make([]moderation.CheckType, 0, len(results))
	for _, r := range results {
		out = append(out, r.Check)
	}
	slices.SortFunc(out, func(a, b moderation.CheckType) int { return cmp.Compare(a.Rank(), b.Rank()) })
	return out
}

func pendingChecks(job *moderation.Job) []moderation.CheckType {
	var out []moderation.CheckType
	for _, c := range job.Checks {
		if !c.Status.Terminal() {
			out = append(out, c.Check)
		}
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
