package aggregator

import (
	"cmp"
	"slices"

	"github.com/tphakala/vidguard/internal/moderation"
)

// MergeSpans merges intervals into reasoning spans. Two intervals merge when
// they overlap or the gap between them is strictly less than epsilon. The
// input is not modified.
func MergeSpans(intervals []moderation.Interval, epsilon float64) []moderation.Span {
	if len(intervals) == 0 {
		return nil
	}
	sorted := slices.Clone(intervals)
	slices.SortFunc(sorted, func(a, b moderation.Interval) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.End, b.End))
	})

	spans := []moderation.Span{{Start: sorted[0].Start, End: sorted[0].End}}
	for _, iv := range sorted[1:] {
		last := &spans[len(spans)-1]
		if iv.Start-last.End < epsilon || iv.Start <= last.End {
			last.End = max(last.End, iv.End)
			continue
		}
		spans = append(spans, moderation.Span{Start: iv.Start, End: iv.End})
	}
	return spans
}

// SpanDuration is the total length covered by spans.
func SpanDuration(spans []moderation.Span) float64 {
	var total float64
	for _, s := range spans {
		total += s.End - s.Start
	}
	return total
}
