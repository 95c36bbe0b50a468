package aggregator

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/tphakala/vidguard/internal/moderation"
)

const (
	maxSpansInReasoning  = 3
	maxLabelsInReasoning = 2
)

// FormatTimestamp renders seconds as m:ss, or h:mm:ss from one hour on.
func FormatTimestamp(seconds float64) string {
	total := int(math.Max(seconds, 0))
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatSpan renders a span as "0:15–0:20". Points render as one timestamp.
// The end is rounded up so the text never understates the span.
func FormatSpan(s moderation.Span) string {
	start := FormatTimestamp(math.Floor(s.Start))
	end := FormatTimestamp(math.Ceil(s.End))
	if start == end {
		return start
	}
	return start + "–" + end
}

func triggerSentence(t moderation.Trigger, result moderation.CheckResult) string {
	var b strings.Builder
	b.WriteString(t.Check.DisplayName())

	if len(t.Intervals) > 0 {
		if cats := categories(t.Intervals); cats != "" {
			fmt.Fprintf(&b, " (%s)", cats)
		}
		b.WriteString(" detected at ")
		b.WriteString(spanList(t.Spans))
		fmt.Fprintf(&b, " with score %s", formatScore(t.MaxScore))
	} else {
		fmt.Fprintf(&b, " score %s", formatScore(result.Score))
	}
	fmt.Fprintf(&b, " exceeds the %s threshold of %s", t.Level, formatScore(t.Threshold))

	if labels := firstLabels(result.Labels); labels != "" {
		switch t.Check {
		case moderation.CheckCopyright:
			fmt.Fprintf(&b, " (possible source: %s)", labels)
		default:
			fmt.Fprintf(&b, " (indicators: %s)", labels)
		}
	}
	b.WriteString(".")
	return b.String()
}

func approvalReasoning(checks []moderation.CheckResult) string {
	var passed, skipped []string
	for _, c := range checks {
		if c.Status == moderation.CheckSucceeded {
			passed = append(passed, c.Check.DisplayName())
			continue
		}
		skipped = append(skipped, fmt.Sprintf("%s (%s)", c.Check.DisplayName(), c.Status))
	}
	if len(skipped) == 0 {
		return "All checks passed."
	}
	text := "Not evaluated: " + strings.Join(skipped, ", ") + "."
	if len(passed) > 0 {
		text = "Passed: " + strings.Join(passed, ", ") + ". " + text
	}
	return text
}

func failSafeReasoning(missing []moderation.CheckResult) string {
	names := make([]string, 0, len(missing))
	for _, c := range missing {
		names = append(names, fmt.Sprintf("%s (%s)", c.Check.DisplayName(), c.Status))
	}
	return "Rejected as a precaution: required check did not succeed: " + strings.Join(names, ", ") + "."
}

func spanList(spans []moderation.Span) string {
	parts := make([]string, 0, min(len(spans), maxSpansInReasoning))
	for i, s := range spans {
		if i == maxSpansInReasoning {
			break
		}
		parts = append(parts, FormatSpan(s))
	}
	text := strings.Join(parts, ", ")
	if extra := len(spans) - maxSpansInReasoning; extra > 0 {
		text += fmt.Sprintf(" and %d more", extra)
	}
	return text
}

func categories(intervals []moderation.Interval) string {
	var seen []string
	for _, iv := range intervals {
		if iv.Category == "" {
			continue
		}
		if !slices.Contains(seen, iv.Category) {
			seen = append(seen, iv.Category)
		}
	}
	return strings.Join(seen, ", ")
}

func firstLabels(labels []string) string {
	if len(labels) > maxLabelsInReasoning {
		labels = labels[:maxLabelsInReasoning]
	}
	return strings.Join(labels, ", ")
}

func formatScore(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}
