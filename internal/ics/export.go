package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"journeycal/internal/model"
)

// ProductID is written as the calendar PRODID.
const ProductID = "-//journeycal//journeycal//EN"

// exportDuration is the length given to reminders, which only have a start.
const exportDuration = time.Hour

// Export renders events as an iCalendar document. Date and time are read as
// wall clock in loc. Events with an unparsable date or time are skipped.
func Export(events []model.CalendarEvent, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	cal.SetXWRCalName("journeycal")
	cal.SetXWRTimezone(loc.String())

	for _, ev := range events {
		start, err := time.ParseInLocation(model.DateLayout+" "+model.TimeLayout, ev.Date+" "+ev.Time, loc)
		if err != nil {
			continue
		}

		vev := cal.AddEvent(ev.ID)
		vev.SetSummary(ev.Title)
		vev.SetStartAt(start)
		vev.SetEndAt(start.Add(exportDuration))
		vev.SetDtStampTime(ev.UpdatedAt)
		vev.SetCreatedTime(ev.CreatedAt)
		vev.SetModifiedAt(ev.UpdatedAt)
		vev.SetLocation(locationText(ev))
		vev.SetProperty(ical.ComponentPropertyCategories, ev.Calendar)
		vev.SetProperty(ical.ComponentPropertyColor, string(ev.Color))
		if ev.CityLocation != nil {
			vev.SetProperty(ical.ComponentPropertyGeo, fmt.Sprintf("%.6f;%.6f", ev.CityLocation.Latitude, ev.CityLocation.Longitude))
		}
		if ev.Weather != nil {
			vev.SetDescription(fmt.Sprintf("Weather: %s, %d°/%d°", ev.Weather.Type, ev.Weather.TemperatureMax, ev.Weather.TemperatureMin))
		}
	}

	return cal.Serialize()
}

func locationText(ev model.CalendarEvent) string {
	if ev.CityLocation == nil {
		return ev.City
	}
	parts := []string{ev.CityLocation.Name}
	if ev.CityLocation.Admin1 != "" {
		parts = append(parts, ev.CityLocation.Admin1)
	}
	if ev.CityLocation.Country != "" {
		parts = append(parts, ev.CityLocation.Country)
	}
	return strings.Join(parts, ", ")
}
