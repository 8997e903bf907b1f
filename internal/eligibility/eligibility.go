// Package eligibility holds the loyalty card rules shared by scanning and
// wash recording.
package eligibility

import (
	"strings"
	"time"
)

// lastWashLayouts are the date formats the backend has been seen to send.
// Layouts without a zone are interpreted in the caller's location.
var lastWashLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CanAddWashToday reports whether a customer whose last wash happened at
// lastWashDate may record another wash on now's calendar date.
// An empty or unparseable date allows the wash.
func CanAddWashToday(lastWashDate string, now time.Time) bool {
	raw := strings.TrimSpace(lastWashDate)
	if raw == "" {
		return true
	}

	last, ok := parseLastWash(raw, now.Location())
	if !ok {
		return true
	}

	return dateOf(last.In(now.Location())).Before(dateOf(now))
}

// RewardEarned reports whether the stamp threshold has been reached.
// A non-positive threshold is always reached.
func RewardEarned(current, required int) bool {
	if required <= 0 {
		return true
	}
	return current >= required
}

// ProgressPercent returns the card completion in percent, capped at 100.
func ProgressPercent(current, required int) float64 {
	if required <= 0 {
		return 100
	}
	if current <= 0 {
		return 0
	}
	p := float64(current) * 100 / float64(required)
	if p > 100 {
		return 100
	}
	return p
}

func parseLastWash(raw string, loc *time.Location) (time.Time, bool) {
	for _, layout := range lastWashLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
