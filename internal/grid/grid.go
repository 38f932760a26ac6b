// Package grid computes the days shown by the month and week views and holds
// the transient view state that drives them.
package grid

import (
	"time"

	"journeycal/internal/model"
)

// DefaultWeekStart is the first column of the grid.
const DefaultWeekStart = time.Sunday

// ComputeGridDays returns the ordered days displayed for ref in the given
// mode, with weeks starting on Sunday. When showWeekends is false, Saturdays
// and Sundays are dropped so each week contributes five days.
func ComputeGridDays(ref time.Time, mode model.ViewMode, showWeekends bool) []time.Time {
	return ComputeGridDaysFrom(ref, mode, showWeekends, DefaultWeekStart)
}

// ComputeGridDaysFrom is ComputeGridDays with a configurable week start.
// Unknown modes are treated as month.
func ComputeGridDaysFrom(ref time.Time, mode model.ViewMode, showWeekends bool, weekStart time.Weekday) []time.Time {
	loc := ref.Location()
	var start, end time.Time
	switch mode {
	case model.ViewWeek:
		start = weekStartCivil(civil(ref), weekStart)
		end = start.AddDate(0, 0, 6)
	default:
		y, m, _ := ref.Date()
		start = weekStartCivil(time.Date(y, m, 1, 0, 0, 0, 0, time.UTC), weekStart)
		end = weekStartCivil(time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC), weekStart).AddDate(0, 0, 6)
	}

	days := make([]time.Time, 0, 42)
	// Iterate over UTC dates; local midnight does not exist everywhere.
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !showWeekends && IsWeekend(d) {
			continue
		}
		days = append(days, inZone(d, loc))
	}
	return days
}

// civil maps t's calendar day onto midnight UTC, where every day has 24h.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// inZone returns the first instant of civil day c in loc. Where DST starts
// at midnight that is 01:00 rather than 00:00.
func inZone(c time.Time, loc *time.Location) time.Time {
	y, m, d := c.Date()
	t := time.Date(y, m, d, 0, 0, 0, 0, loc)
	for h := 1; h < 24 && !IsSameDay(t, c); h++ {
		t = time.Date(y, m, d, h, 0, 0, 0, loc)
	}
	return t
}

func weekStartCivil(c time.Time, weekStart time.Weekday) time.Time {
	diff := (int(c.Weekday()) - int(weekStart) + 7) % 7
	return c.AddDate(0, 0, -diff)
}

// StartOfDay returns the first instant of t's day in its own location.
func StartOfDay(t time.Time) time.Time {
	return inZone(civil(t), t.Location())
}

func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return inZone(time.Date(y, m, 1, 0, 0, 0, 0, time.UTC), t.Location())
}

// EndOfMonth returns the start of the last day of t's month.
func EndOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return inZone(time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC), t.Location())
}

// StartOfWeek returns the start of the first day of the week containing t.
func StartOfWeek(t time.Time, weekStart time.Weekday) time.Time {
	return inZone(weekStartCivil(civil(t), weekStart), t.Location())
}

// EndOfWeek returns the start of the last day of the week containing t.
func EndOfWeek(t time.Time, weekStart time.Weekday) time.Time {
	return inZone(weekStartCivil(civil(t), weekStart).AddDate(0, 0, 6), t.Location())
}

// AddDays moves t by n calendar days and returns the start of that day.
func AddDays(t time.Time, n int) time.Time {
	return inZone(civil(t).AddDate(0, 0, n), t.Location())
}

// AddMonths returns the start of the 1st of the month n months from t.
func AddMonths(t time.Time, n int) time.Time {
	y, m, _ := t.Date()
	return inZone(time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC), t.Location())
}

func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsDateInMonth reports whether d falls in the month displayed for ref.
func IsDateInMonth(d, ref time.Time) bool {
	dy, dm, _ := d.Date()
	ry, rm, _ := ref.Date()
	return dy == ry && dm == rm
}

// IsSameDay compares calendar days, ignoring the time of day.
func IsSameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// IsToday reports whether d is the same calendar day as now, evaluated in
// d's location.
func IsToday(d, now time.Time) bool {
	return IsSameDay(d, now.In(d.Location()))
}

// FormatDate renders t as the YYYY-MM-DD key used by events.
func FormatDate(t time.Time) string {
	return t.Format(model.DateLayout)
}

// ParseDate parses a YYYY-MM-DD key in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	c, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return inZone(c, loc), nil
}
