package grid

import (
	"strings"
	"testing"
	"time"

	"journeycal/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestComputeGridDaysMonth(t *testing.T) {
	// November 2025 starts on a Saturday and ends on a Sunday.
	days := ComputeGridDays(time.Date(2025, 11, 15, 14, 30, 0, 0, time.UTC), model.ViewMonth, true)

	if len(days) != 42 {
		t.Fatalf("expected 42 days, got %d", len(days))
	}
	if !days[0].Equal(date(2025, 10, 26)) {
		t.Errorf("first day = %s, want 2025-10-26", FormatDate(days[0]))
	}
	if !days[len(days)-1].Equal(date(2025, 12, 6)) {
		t.Errorf("last day = %s, want 2025-12-06", FormatDate(days[len(days)-1]))
	}
}

func TestComputeGridDaysWeek(t *testing.T) {
	days := ComputeGridDays(date(2025, 11, 19), model.ViewWeek, true)
	if len(days) != 7 {
		t.Fatalf("expected 7 days, got %d", len(days))
	}
	if days[0].Weekday() != time.Sunday || !days[0].Equal(date(2025, 11, 16)) {
		t.Errorf("week should start Sunday 2025-11-16, got %s", FormatDate(days[0]))
	}

	days = ComputeGridDays(date(2025, 11, 19), model.ViewWeek, false)
	if len(days) != 5 {
		t.Fatalf("expected 5 weekdays, got %d", len(days))
	}
	for _, d := range days {
		if IsWeekend(d) {
			t.Errorf("weekend day %s present with weekends hidden", FormatDate(d))
		}
	}
}

func TestComputeGridDaysProperties(t *testing.T) {
	refs := []time.Time{
		date(2024, 2, 10), // leap February
		date(2025, 2, 1),  // February starting on Saturday
		date(2026, 2, 1),  // February starting on Sunday (exactly 4 weeks)
		date(2025, 3, 31),
		date(2025, 12, 31),
		time.Date(2025, 3, 30, 12, 0, 0, 0, mustLoad(t, "Europe/Berlin")), // DST change
		// DST starts at midnight.
		time.Date(2018, 11, 15, 12, 0, 0, 0, mustLoad(t, "America/Sao_Paulo")),
		time.Date(2018, 11, 6, 12, 0, 0, 0, mustLoad(t, "America/Sao_Paulo")),
	}

	for _, ref := range refs {
		for _, mode := range []model.ViewMode{model.ViewMonth, model.ViewWeek} {
			for _, weekends := range []bool{true, false} {
				for _, ws := range []time.Weekday{time.Sunday, time.Monday} {
					days := ComputeGridDaysFrom(ref, mode, weekends, ws)
					per := 7
					if !weekends {
						per = 5
					}
					if len(days) == 0 || len(days)%per != 0 {
						t.Errorf("%s %s weekends=%v ws=%s: len %d not a multiple of %d", FormatDate(ref), mode, weekends, ws, len(days), per)
					}
					seen := map[string]bool{}
					for i, d := range days {
						key := FormatDate(d)
						if !weekends && IsWeekend(d) {
							t.Errorf("%s: weekend %s shown with weekends hidden", FormatDate(ref), key)
						}
						if i > 0 && per == 7 && d.Weekday() != (days[i-1].Weekday()+1)%7 {
							t.Errorf("%s: %s follows %s", FormatDate(ref), d.Weekday(), days[i-1].Weekday())
						}
						if seen[key] {
							t.Errorf("duplicate day %s", key)
						}
						seen[key] = true
						if i > 0 && !d.After(days[i-1]) {
							t.Errorf("days not ascending at %s", key)
						}
					}

					// Coverage of the target month/week.
					var want []time.Time
					if mode == model.ViewMonth {
						for d := StartOfMonth(ref); IsDateInMonth(d, ref); d = AddDays(d, 1) {
							want = append(want, d)
						}
					} else {
						for d := StartOfWeek(ref, ws); len(want) < 7; d = AddDays(d, 1) {
							want = append(want, d)
						}
					}
					for _, d := range want {
						if !weekends && IsWeekend(d) {
							continue
						}
						if !seen[FormatDate(d)] {
							t.Errorf("%s %s: missing %s", FormatDate(ref), mode, FormatDate(d))
						}
					}
				}
			}
		}
	}
}

func TestComputeGridDaysMidnightDST(t *testing.T) {
	loc := mustLoad(t, "America/Sao_Paulo")

	days := ComputeGridDays(time.Date(2018, 11, 15, 12, 0, 0, 0, loc), model.ViewMonth, true)
	if len(days) != 35 {
		t.Fatalf("expected 35 days, got %d", len(days))
	}
	if got := FormatDate(days[0]); got != "2018-10-28" {
		t.Errorf("first day = %s, want 2018-10-28", got)
	}
	if got := FormatDate(days[len(days)-1]); got != "2018-12-01" {
		t.Errorf("last day = %s, want 2018-12-01", got)
	}
	for _, d := range days {
		if d.Location() != loc {
			t.Errorf("%s not in %s", FormatDate(d), loc)
		}
	}
	// 2018-11-04 has no midnight in Sao Paulo.
	nov4 := days[7]
	if FormatDate(nov4) != "2018-11-04" || nov4.Hour() != 1 {
		t.Errorf("days[7] = %s, want 2018-11-04 01:00", nov4)
	}
	if got := FormatDate(days[8]); got != "2018-11-05" || days[8].Hour() != 0 {
		t.Errorf("days[8] = %s, want 2018-11-05 00:00", days[8])
	}

	week := ComputeGridDays(time.Date(2018, 11, 6, 9, 0, 0, 0, loc), model.ViewWeek, true)
	if len(week) != 7 || FormatDate(week[0]) != "2018-11-04" || week[0].Weekday() != time.Sunday {
		t.Fatalf("week = %v, want Sunday 2018-11-04 first", week)
	}
	if got := FormatDate(week[6]); got != "2018-11-10" {
		t.Errorf("week ends %s, want 2018-11-10", got)
	}

	workdays := ComputeGridDays(time.Date(2018, 11, 6, 9, 0, 0, 0, loc), model.ViewWeek, false)
	var got []string
	for _, d := range workdays {
		got = append(got, FormatDate(d))
	}
	want := "2018-11-05 2018-11-06 2018-11-07 2018-11-08 2018-11-09"
	if strings.Join(got, " ") != want {
		t.Errorf("workdays = %v, want %s", got, want)
	}

	d, err := ParseDate("2018-11-04", loc)
	if err != nil || FormatDate(d) != "2018-11-04" {
		t.Errorf("ParseDate = %s, %v", d, err)
	}
	if got := FormatDate(StartOfDay(time.Date(2018, 11, 4, 15, 0, 0, 0, loc))); got != "2018-11-04" {
		t.Errorf("StartOfDay = %s", got)
	}
}

func TestPredicates(t *testing.T) {
	ref := date(2025, 11, 15)
	if !IsDateInMonth(date(2025, 11, 1), ref) || IsDateInMonth(date(2025, 10, 31), ref) {
		t.Error("IsDateInMonth wrong around month boundary")
	}
	if !IsSameDay(time.Date(2025, 11, 15, 23, 59, 0, 0, time.UTC), ref) {
		t.Error("IsSameDay should ignore time of day")
	}
	now := time.Date(2025, 11, 15, 8, 0, 0, 0, time.UTC)
	if !IsToday(ref, now) || IsToday(date(2025, 11, 16), now) {
		t.Error("IsToday wrong")
	}
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("timezone %s unavailable: %v", name, err)
	}
	return loc
}
