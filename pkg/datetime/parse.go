// Package datetime provides date and time utility functions.
package datetime

import (
	"fmt"
	"time"

	"github.com/iwvelando/autocall-forecast/pkg/constants"
)

const (
	// DateLayout is the format expected in config files and is also the output
	// date format.
	DateLayout = constants.DateLayout
)

// MustParseTime parses a date string using the given layout and panics on error.
// This is intended for use in tests where the date string is known to be valid.
func MustParseTime(layout, dateStr string) time.Time {
	t, err := time.Parse(layout, dateStr)
	if err != nil {
		panic(err)
	}
	return t
}

// MustParseDate parses a DateLayout date and panics on error.
func MustParseDate(dateStr string) time.Time {
	return MustParseTime(DateLayout, dateStr)
}

// ParseDate parses a DateLayout date, rejecting empty input.
func ParseDate(dateStr string) (time.Time, error) {
	if dateStr == "" {
		return time.Time{}, fmt.Errorf("date cannot be empty")
	}
	t, err := time.Parse(DateLayout, dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %s with layout %s: %w", dateStr, DateLayout, err)
	}
	return t, nil
}

// Truncate drops the time-of-day component, keeping the calendar date in UTC.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// OffsetMonths returns the date offset by the given number of months.
// Month-end overflow follows time.AddDate normalisation.
func OffsetMonths(t time.Time, months int) time.Time {
	return t.AddDate(0, months, 0)
}

// OffsetDays returns the date offset by the given number of calendar days.
func OffsetDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

// Format renders a date with DateLayout.
func Format(t time.Time) string {
	return t.Format(DateLayout)
}

// StrictlyIncreasing reports whether every date is after its predecessor.
func StrictlyIncreasing(dates []time.Time) bool {
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return false
		}
	}
	return true
}
