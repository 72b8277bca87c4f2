// Package datemath holds the calendar arithmetic shared by the planner:
// month grids, day equality, recurrence steps and the persisted
// YYYY-MM-DD representation.
//
// All functions work on civil dates in the location carried by their
// arguments. A time.Time is never compared across locations by instant when
// the question is "which day".
package datemath

import (
	"cmp"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ISODateLayout is the persisted due-date layout.
const ISODateLayout = "2006-01-02"

// GridSize is the number of cells in a month grid: six full weeks.
const GridSize = 42

// Kind is a recurrence step.
type Kind string

const (
	Daily   Kind = "daily"
	Weekly  Kind = "weekly"
	Monthly Kind = "monthly"
)

// ErrUnknownKind is returned by Advance for a step it does not know.
var ErrUnknownKind = errors.New("unknown recurrence kind")

// CalendarGrid returns the 42 dates of the grid for the given month. The grid
// starts on the Sunday on or before the 1st and always spans six weeks.
func CalendarGrid(year int, month time.Month, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.Local
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	start := first.AddDate(0, 0, -int(first.Weekday()))

	days := make([]time.Time, 0, GridSize)
	for i := 0; i < GridSize; i++ {
		days = append(days, start.AddDate(0, 0, i))
	}
	return days
}

// IsSameDay compares year, month and day only.
func IsSameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Advance moves date one recurrence step forward. Monthly steps clamp to the
// last day of the target month: Jan 31 becomes Feb 28 (or 29), and the next
// step continues from that day.
func Advance(date time.Time, kind Kind) (time.Time, error) {
	switch kind {
	case Daily:
		return date.AddDate(0, 0, 1), nil
	case Weekly:
		return date.AddDate(0, 0, 7), nil
	case Monthly:
		return AddMonthsClamped(date, 1), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// AddMonthsClamped adds n months keeping the day of month when it exists and
// using the last day of the target month otherwise.
func AddMonthsClamped(date time.Time, n int) time.Time {
	year, month, day := date.Date()
	hour, minute, sec := date.Clock()

	target := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, date.Location())
	last := DaysInMonth(target.Month(), target.Year())
	if day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, hour, minute, sec, date.Nanosecond(), date.Location())
}

// DaysInMonth returns the number of days in the month.
func DaysInMonth(month time.Month, year int) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// FormatISODate renders the date as zero-padded YYYY-MM-DD.
func FormatISODate(date time.Time) string {
	return date.Format(ISODateLayout)
}

// ParseISODate parses YYYY-MM-DD as midnight in loc.
func ParseISODate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	parsed, err := time.ParseInLocation(ISODateLayout, strings.TrimSpace(value), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return parsed, nil
}

// ParseMonth parses YYYY-MM.
func ParseMonth(value string) (int, time.Month, error) {
	parsed, err := time.Parse("2006-01", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("parse month %q: %w", value, err)
	}
	return parsed.Year(), parsed.Month(), nil
}

// ParseClock validates an HH:MM time of day and returns it normalized.
func ParseClock(value string) (string, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", value)
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable instant of t's day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// AddDays moves t by n civil days, keeping the wall clock across DST changes.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// CompareDays orders a and b by civil date: -1, 0 or 1.
func CompareDays(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	switch {
	case ay != by:
		return cmp.Compare(ay, by)
	case am != bm:
		return cmp.Compare(am, bm)
	default:
		return cmp.Compare(ad, bd)
	}
}
