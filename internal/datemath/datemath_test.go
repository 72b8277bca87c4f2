package datemath

import (
	"errors"
	"testing"
	"time"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestCalendarGrid(t *testing.T) {
	for year := 2023; year <= 2025; year++ {
		for month := time.January; month <= time.December; month++ {
			grid := CalendarGrid(year, month, time.UTC)
			if len(grid) != GridSize {
				t.Fatalf("%d-%02d: grid has %d cells, want %d", year, month, len(grid), GridSize)
			}
			if grid[0].Weekday() != time.Sunday {
				t.Fatalf("%d-%02d: grid starts on %s", year, month, grid[0].Weekday())
			}
			if grid[0].After(date(year, month, 1)) {
				t.Fatalf("%d-%02d: grid starts after the 1st", year, month)
			}
			found := false
			for i, day := range grid {
				if IsSameDay(day, date(year, month, 1)) {
					found = true
				}
				if i > 0 && CompareDays(grid[i-1], day) != -1 {
					t.Fatalf("%d-%02d: cell %d not after cell %d", year, month, i, i-1)
				}
			}
			if !found {
				t.Fatalf("%d-%02d: 1st of month missing from grid", year, month)
			}
		}
	}
}

func TestCalendarGridStartsOnFirstWhenSunday(t *testing.T) {
	// 2023-10-01 was a Sunday.
	grid := CalendarGrid(2023, time.October, time.UTC)
	if !IsSameDay(grid[0], date(2023, time.October, 1)) {
		t.Fatalf("grid[0] = %s, want 2023-10-01", FormatISODate(grid[0]))
	}
	if got := FormatISODate(grid[41]); got != "2023-11-11" {
		t.Fatalf("grid[41] = %s, want 2023-11-11", got)
	}
}

func TestIsSameDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	tests := []struct {
		name string
		a, b time.Time
		want bool
	}{
		{"identical", date(2024, 1, 30), date(2024, 1, 30), true},
		{"different time of day", time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 30, 23, 59, 59, 0, time.UTC), true},
		{"next day", date(2024, 1, 30), date(2024, 1, 31), false},
		{"same day number other month", date(2024, 1, 30), date(2024, 3, 30), false},
		{"compares wall dates per location", time.Date(2024, 1, 31, 1, 0, 0, 0, tokyo), date(2024, 1, 31), true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsSameDay(test.a, test.b); got != test.want {
				t.Fatalf("IsSameDay = %v, want %v", got, test.want)
			}
			if !IsSameDay(test.a, test.a) {
				t.Fatalf("IsSameDay(a, a) = false")
			}
		})
	}
}

func TestAdvance(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		kind  Kind
		want  string
	}{
		{"daily", date(2024, 1, 31), Daily, "2024-02-01"},
		{"daily year end", date(2023, 12, 31), Daily, "2024-01-01"},
		{"weekly", date(2024, 2, 26), Weekly, "2024-03-04"},
		{"monthly plain", date(2024, 1, 15), Monthly, "2024-02-15"},
		{"monthly clamps leap february", date(2024, 1, 31), Monthly, "2024-02-29"},
		{"monthly clamps february", date(2023, 1, 30), Monthly, "2023-02-28"},
		{"monthly clamps thirty day month", date(2024, 3, 31), Monthly, "2024-04-30"},
		{"monthly december", date(2024, 12, 31), Monthly, "2025-01-31"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Advance(test.start, test.kind)
			if err != nil {
				t.Fatalf("Advance: %v", err)
			}
			if FormatISODate(got) != test.want {
				t.Fatalf("Advance = %s, want %s", FormatISODate(got), test.want)
			}
		})
	}
}

func TestAdvanceUnknownKind(t *testing.T) {
	_, err := Advance(date(2024, 1, 1), Kind("yearly"))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
}

func TestFormatAndParseISODate(t *testing.T) {
	if got := FormatISODate(date(2024, 3, 5)); got != "2024-03-05" {
		t.Fatalf("FormatISODate = %q", got)
	}
	loc := time.FixedZone("X", -5*3600)
	parsed, err := ParseISODate("2024-03-05", loc)
	if err != nil {
		t.Fatalf("ParseISODate: %v", err)
	}
	if parsed.Location() != loc || parsed.Hour() != 0 || parsed.Day() != 5 {
		t.Fatalf("ParseISODate = %v", parsed)
	}
	for _, bad := range []string{"", "2024-13-01", "2024-02-30", "03/05/2024"} {
		if _, err := ParseISODate(bad, loc); err == nil {
			t.Fatalf("ParseISODate(%q) succeeded", bad)
		}
	}
}

func TestParseClock(t *testing.T) {
	got, err := ParseClock("9:05")
	if err != nil || got != "09:05" {
		t.Fatalf("ParseClock = %q, %v", got, err)
	}
	for _, bad := range []string{"24:00", "12:60", "noon", "12"} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("ParseClock(%q) succeeded", bad)
		}
	}
}

func TestEndOfDay(t *testing.T) {
	now := time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC)
	end := EndOfDay(now)
	if !IsSameDay(end, now) {
		t.Fatalf("EndOfDay left the day: %v", end)
	}
	if !end.Add(time.Nanosecond).Equal(date(2024, 5, 11)) {
		t.Fatalf("EndOfDay = %v", end)
	}
}

func TestDaysInMonth(t *testing.T) {
	if DaysInMonth(time.February, 2024) != 29 || DaysInMonth(time.February, 2023) != 28 {
		t.Fatalf("february length wrong")
	}
	if DaysInMonth(time.April, 2024) != 30 || DaysInMonth(time.December, 2024) != 31 {
		t.Fatalf("month length wrong")
	}
}
