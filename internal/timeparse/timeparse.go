// Package timeparse converts human time expressions into durations and
// absolute times. It backs the timeout and scheduling tools, which receive
// phrases like "10 minutes", "in 2 hours", or "tomorrow at 9:30" from the
// model rather than machine-formatted timestamps.
package timeparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var unitDurations = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
}

var (
	durationRe = regexp.MustCompile(`^\s*(\d+)\s*(second|minute|hour|day|week)s?\s*$`)
	relativeRe = regexp.MustCompile(`^\s*in\s+(\d+)\s+(second|minute|hour|day|week)s?\s*$`)
	atClockRe  = regexp.MustCompile(`^\s*(today|tomorrow)\s+at\s+(.+?)\s*$`)
)

// clockLayouts are accepted for the HH:MM part of "today at …" expressions.
var clockLayouts = []string{"15:04", "3:04pm", "3pm", "15"}

// absoluteLayouts are accepted for full date expressions.
var absoluteLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	time.RFC3339,
	"2006-01-02",
	"January 2 at 3:04pm",
	"January 2 at 3pm",
}

// ParseDuration parses expressions like "30 seconds", "5 minutes", "2 hours",
// "1 day". Unknown units or malformed input return an error naming the
// accepted vocabulary.
func ParseDuration(expr string) (time.Duration, error) {
	m := durationRe.FindStringSubmatch(strings.ToLower(expr))
	if m == nil {
		return 0, fmt.Errorf("could not parse duration %q (try forms like \"30 seconds\", \"5 minutes\", \"2 hours\", \"1 day\")", expr)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("duration amount must be a positive number, got %q", m[1])
	}
	return time.Duration(n) * unitDurations[m[2]], nil
}

// ParseFuture parses a human expression for a future point in time, relative
// to now. Accepted forms:
//
//	"in N seconds|minutes|hours|days|weeks"
//	"today at HH:MM" / "tomorrow at 3pm"
//	absolute dates: "2026-03-01 09:00", "2026-03-01", RFC3339
//
// Times without an explicit zone use now's location.
func ParseFuture(expr string, now time.Time) (time.Time, error) {
	lower := strings.ToLower(strings.TrimSpace(expr))

	if m := relativeRe.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return time.Time{}, fmt.Errorf("amount must be a positive number, got %q", m[1])
		}
		return now.Add(time.Duration(n) * unitDurations[m[2]]), nil
	}

	if m := atClockRe.FindStringSubmatch(lower); m != nil {
		clock, err := parseClock(m[2])
		if err != nil {
			return time.Time{}, err
		}
		day := now
		if m[1] == "tomorrow" {
			day = now.AddDate(0, 0, 1)
		}
		return time.Date(day.Year(), day.Month(), day.Day(),
			clock.Hour(), clock.Minute(), 0, 0, now.Location()), nil
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(expr)); err == nil {
			// Layouts without a zone parse in UTC; rebuild in now's location.
			if layout != time.RFC3339 {
				t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
			}
			// Year-less layouts parse as year 0; assume the next occurrence.
			if t.Year() == 0 {
				t = t.AddDate(now.Year(), 0, 0)
				if t.Before(now) {
					t = t.AddDate(1, 0, 0)
				}
			}
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("could not parse time %q (try \"in 30 minutes\", \"tomorrow at 9:00\", or \"2026-03-01 09:00\")", expr)
}

func parseClock(s string) (time.Time, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse clock time %q (try \"14:30\" or \"2:30pm\")", s)
}
