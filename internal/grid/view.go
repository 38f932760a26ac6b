package grid

import (
	"time"

	"journeycal/internal/model"
)

// ViewState is the navigation state of a calendar view. It is never
// persisted; NewViewState starts it at now.
type ViewState struct {
	Current      time.Time
	Selected     *time.Time
	Mode         model.ViewMode
	ShowWeekends bool
	WeekStart    time.Weekday
}

func NewViewState(now time.Time) *ViewState {
	return &ViewState{
		Current:      StartOfDay(now),
		Mode:         model.ViewMonth,
		ShowWeekends: true,
		WeekStart:    DefaultWeekStart,
	}
}

// Days returns the grid for the current state.
func (v *ViewState) Days() []time.Time {
	return ComputeGridDaysFrom(v.Current, v.Mode, v.ShowWeekends, v.WeekStart)
}

// Next moves forward one month or one week depending on the mode.
func (v *ViewState) Next() {
	v.step(1)
}

func (v *ViewState) Previous() {
	v.step(-1)
}

func (v *ViewState) step(n int) {
	if v.Mode == model.ViewWeek {
		v.Current = AddDays(v.Current, 7*n)
		return
	}
	// Anchor on the 1st so Jan 31 + 1 month does not skip February.
	v.Current = AddMonths(v.Current, n)
}

// GoToToday moves the view to now and selects it.
func (v *ViewState) GoToToday(now time.Time) {
	today := StartOfDay(now)
	v.Current = today
	v.Selected = &today
}

func (v *ViewState) Select(d time.Time) {
	day := StartOfDay(d)
	v.Selected = &day
}

// SetViewMode switches mode; unknown modes are ignored.
func (v *ViewState) SetViewMode(mode model.ViewMode) bool {
	switch mode {
	case model.ViewMonth, model.ViewWeek:
		v.Mode = mode
		return true
	}
	return false
}

func (v *ViewState) ToggleWeekends() {
	v.ShowWeekends = !v.ShowWeekends
}

func (v *ViewState) IsSelected(d time.Time) bool {
	return v.Selected != nil && IsSameDay(d, *v.Selected)
}

func (v *ViewState) InCurrentMonth(d time.Time) bool {
	return IsDateInMonth(d, v.Current)
}

// Title is the heading shown above the grid, e.g. "November 2025".
func (v *ViewState) Title() string {
	return v.Current.Format("January 2006")
}
