package grid

import (
	"testing"
	"time"

	"journeycal/internal/model"
)

func TestViewStateNavigation(t *testing.T) {
	v := NewViewState(time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC))

	v.Next()
	if got := FormatDate(v.Current); got != "2025-02-01" {
		t.Fatalf("Next from Jan 31 = %s, want 2025-02-01", got)
	}
	if v.Title() != "February 2025" {
		t.Errorf("Title = %q", v.Title())
	}

	v.Previous()
	v.Previous()
	if got := FormatDate(v.Current); got != "2024-12-01" {
		t.Fatalf("Previous twice = %s, want 2024-12-01", got)
	}

	v.SetViewMode(model.ViewWeek)
	v.Next()
	if got := FormatDate(v.Current); got != "2024-12-08" {
		t.Fatalf("week Next = %s, want 2024-12-08", got)
	}
	if len(v.Days()) != 7 {
		t.Errorf("week view should have 7 days, got %d", len(v.Days()))
	}

	if v.SetViewMode("year") {
		t.Error("unknown view mode should be rejected")
	}
	if v.Mode != model.ViewWeek {
		t.Errorf("mode changed to %q on rejected input", v.Mode)
	}
}

func TestViewStateSelectionAndToday(t *testing.T) {
	now := time.Date(2025, 11, 15, 9, 0, 0, 0, time.UTC)
	v := NewViewState(now.AddDate(0, -3, 0))
	if v.Selected != nil {
		t.Fatal("new view should have no selection")
	}

	v.GoToToday(now)
	if !IsSameDay(v.Current, now) || !v.IsSelected(now) {
		t.Fatal("GoToToday should move and select today")
	}

	v.Select(date(2025, 11, 20))
	if v.IsSelected(now) || !v.IsSelected(date(2025, 11, 20)) {
		t.Error("Select did not replace selection")
	}
	if !v.InCurrentMonth(date(2025, 11, 30)) {
		t.Error("Nov 30 should be in current month")
	}

	v.ToggleWeekends()
	if len(v.Days())%5 != 0 {
		t.Errorf("hidden weekends should give multiples of 5, got %d", len(v.Days()))
	}
}

func TestViewStateNavigationAcrossMidnightDST(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skipf("timezone unavailable: %v", err)
	}
	v := NewViewState(time.Date(2018, 10, 28, 10, 0, 0, 0, loc))
	v.SetViewMode(model.ViewWeek)

	v.Next()
	if got := FormatDate(v.Current); got != "2018-11-04" {
		t.Fatalf("week Next = %s, want 2018-11-04", got)
	}
	v.Next()
	if got := FormatDate(v.Current); got != "2018-11-11" {
		t.Fatalf("week Next = %s, want 2018-11-11", got)
	}

	v.SetViewMode(model.ViewMonth)
	v.Previous()
	if got := FormatDate(v.Current); got != "2018-10-01" {
		t.Errorf("month Previous = %s, want 2018-10-01", got)
	}
}
