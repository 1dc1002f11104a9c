package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/lepax/api/internal/domain"
)

// eventTimestampLayouts are tried in order when parsing producer timestamps.
var eventTimestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseEventTime parses a producer timestamp. Events whose timestamp is
// absent or unparseable carry no time and are excluded from all buckets.
func parseEventTime(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range eventTimestampLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// eventDateKey extracts the date-only portion of the raw timestamp used for
// range filtering. ISO-8601 strings order correctly under lexicographic
// comparison of this prefix.
func eventDateKey(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < 10 {
		return trimmed
	}
	return trimmed[:10]
}

// withinDateRange reports whether the date key falls inside the inclusive
// [start, end] range. An empty bound is unbounded on that side.
func withinDateRange(dateKey, start, end string) bool {
	if start != "" && dateKey < start {
		return false
	}
	if end != "" && dateKey > end {
		return false
	}
	return true
}

// bucketKey renders the aggregation label for the event time at the given
// granularity. Weekly labels use weeks anchored at January 1st, week 1
// covering days 1-7 of the year, not ISO-8601 week numbering; changing the
// scheme would renumber historical report output.
func bucketKey(t time.Time, granularity SeriesGranularity) (string, bool) {
	utc := t.UTC()
	switch granularity {
	case SeriesDaily:
		return utc.Format("2006-01-02"), true
	case SeriesWeekly:
		week := (utc.YearDay()-1)/7 + 1
		return fmt.Sprintf("%04d-W%02d", utc.Year(), week), true
	case SeriesMonthly:
		return utc.Format("2006-01"), true
	case SeriesYearly:
		return utc.Format("2006"), true
	default:
		return "", false
	}
}

// BucketEvents aggregates events into ascending-by-label time buckets at the
// requested granularity, keeping only events inside the inclusive date range.
func BucketEvents(events []domain.AnalyticsEvent, granularity SeriesGranularity, startDate, endDate string) ([]TimeBucket, bool) {
	switch granularity {
	case SeriesDaily, SeriesWeekly, SeriesMonthly, SeriesYearly:
	default:
		return nil, false
	}

	counts := make(map[string]int)
	for _, event := range events {
		t, ok := parseEventTime(event.OccurredAt)
		if !ok {
			continue
		}
		if !withinDateRange(eventDateKey(event.OccurredAt), startDate, endDate) {
			continue
		}
		key, _ := bucketKey(t, granularity)
		counts[key]++
	}

	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	buckets := make([]TimeBucket, 0, len(labels))
	for _, label := range labels {
		buckets = append(buckets, TimeBucket{Label: label, Count: counts[label]})
	}
	return buckets, true
}
