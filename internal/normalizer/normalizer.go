// Package normalizer converts native detector output into evidence intervals
// in seconds with scores in [0,100] and categories from each check's enum.
package normalizer

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/tphakala/vidguard/internal/detector"
	"github.com/tphakala/vidguard/internal/errors"
	"github.com/tphakala/vidguard/internal/logger"
	"github.com/tphakala/vidguard/internal/moderation"
)

const (
	maxLabels   = 10
	maxLabelLen = 200
)

// GetLogger returns the normalizer module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("normalizer")
}

// Evidence is the normalized output of one detector call.
type Evidence struct {
	Score     float64
	Intervals []moderation.Interval
	Labels    []string
	Dropped   int // malformed intervals that were discarded
}

// Normalizer holds one mapping per check.
type Normalizer struct {
	mu       sync.RWMutex
	mappings map[moderation.CheckType]Mapping
}

// New creates a normalizer with the given mappings.
func New(mappings ...Mapping) *Normalizer {
	n := &Normalizer{mappings: make(map[moderation.CheckType]Mapping, len(mappings))}
	for _, m := range mappings {
		n.Register(m)
	}
	return n
}

// Default returns a normalizer for the built-in checks.
func Default() *Normalizer {
	return New(DefaultMappings()...)
}

// Register adds or replaces the mapping for m.Check.
func (n *Normalizer) Register(m Mapping) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mappings[m.Check] = m
}

// Mapping returns the mapping for check.
func (n *Normalizer) Mapping(check moderation.CheckType) (Mapping, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	m, ok := n.mappings[check]
	return m, ok
}

// Normalize converts raw into Evidence. Output that cannot be interpreted as
// a whole (unknown units, missing frame rate, non-numeric aggregate score) is
// a permanent detector error; individual malformed intervals are dropped.
func (n *Normalizer) Normalize(check moderation.CheckType, raw detector.RawResult) (Evidence, error) {
	m, ok := n.Mapping(check)
	if !ok {
		return Evidence{}, errors.Newf("no normalizer mapping for check %q", check).
			Component("normalizer").
			Category(errors.CategoryNormalizer).
			Build()
	}

	toSeconds, err := timeConverter(raw)
	if err != nil {
		return Evidence{}, malformed(check, err)
	}
	toPercent, err := scoreConverter(raw.Scale)
	if err != nil {
		return Evidence{}, malformed(check, err)
	}
	if !finite(raw.Score) {
		return Evidence{}, malformed(check, fmt.Errorf("aggregate score %v is not a finite number", raw.Score))
	}

	ev := Evidence{
		Score:     clampScore(toPercent(raw.Score)),
		Intervals: make([]moderation.Interval, 0, len(raw.Detections)),
		Labels:    cleanLabels(raw.Labels),
	}

	best := make(map[dedupeKey]int, len(raw.Detections))
	for _, d := range raw.Detections {
		iv, ok := convertDetection(d, m, toSeconds, toPercent)
		if !ok {
			ev.Dropped++
			continue
		}
		key := dedupeKey{start: iv.Start, end: iv.End, category: iv.Category}
		if i, seen := best[key]; seen {
			if iv.Score > ev.Intervals[i].Score {
				ev.Intervals[i] = iv
			}
			continue
		}
		best[key] = len(ev.Intervals)
		ev.Intervals = append(ev.Intervals, iv)
	}

	slices.SortStableFunc(ev.Intervals, compareIntervals)

	if ev.Dropped > 0 {
		GetLogger().Debug("dropped malformed detector intervals",
			logger.Check(string(check)),
			logger.Int("dropped", ev.Dropped),
			logger.Int("kept", len(ev.Intervals)))
	}
	return ev, nil
}

type dedupeKey struct {
	start, end float64
	category   string
}

func convertDetection(d detector.RawDetection, m Mapping, toSeconds, toPercent func(float64) float64) (moderation.Interval, bool) {
	if !finite(d.Start) || !finite(d.End) || !finite(d.Score) {
		return moderation.Interval{}, false
	}
	start := roundMillis(toSeconds(d.Start))
	end := roundMillis(toSeconds(d.End))
	if end < start {
		return moderation.Interval{}, false
	}
	if start < 0 {
		start = 0
	}
	if end < 0 {
		return moderation.Interval{}, false
	}
	return moderation.Interval{
		Start:    start,
		End:      end,
		Category: m.Category(d.Label),
		Score:    clampScore(toPercent(d.Score)),
		Detail:   truncate(strings.TrimSpace(d.Detail), maxLabelLen),
	}, true
}

func compareIntervals(a, b moderation.Interval) int {
	return cmp.Or(
		cmp.Compare(a.Start, b.Start),
		cmp.Compare(a.End, b.End),
		cmp.Compare(a.Category, b.Category),
		cmp.Compare(b.Score, a.Score),
	)
}

func timeConverter(raw detector.RawResult) (func(float64) float64, error) {
	switch raw.TimeUnit {
	case detector.UnitSeconds, "":
		return func(v float64) float64 { return v }, nil
	case detector.UnitMilliseconds:
		return func(v float64) float64 { return v / 1000 }, nil
	case detector.UnitFrames:
		if !finite(raw.FrameRate) || raw.FrameRate <= 0 {
			return nil, fmt.Errorf("frame timestamps need a positive frame rate, got %v", raw.FrameRate)
		}
		fps := raw.FrameRate
		return func(v float64) float64 { return v / fps }, nil
	default:
		return nil, fmt.Errorf("unknown time unit %q", raw.TimeUnit)
	}
}

func scoreConverter(scale detector.ScoreScale) (func(float64) float64, error) {
	switch scale {
	case detector.ScaleUnit, "":
		return func(v float64) float64 { return v * 100 }, nil
	case detector.ScalePercent:
		return func(v float64) float64 { return v }, nil
	default:
		return nil, fmt.Errorf("unknown score scale %q", scale)
	}
}

func clampScore(v float64) float64 {
	return math.Round(min(max(v, 0), 100)*100) / 100
}

func roundMillis(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func cleanLabels(labels []string) []string {
	var out []string
	for _, l := range labels {
		l = truncate(strings.TrimSpace(l), maxLabelLen)
		if l == "" || slices.Contains(out, l) {
			continue
		}
		out = append(out, l)
		if len(out) == maxLabels {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func malformed(check moderation.CheckType, err error) error {
	return &detector.Error{Kind: detector.KindPermanent, Check: check, Err: fmt.Errorf("malformed detector output: %w", err)}
}
