package model

import "time"

// Layouts used for the string-typed date/time fields of CalendarEvent.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// MaxTitleLength is the maximum number of characters in an event title.
const MaxTitleLength = 30

// Color is the color tag shared by events and calendars.
type Color string

const (
	ColorGray   Color = "gray"
	ColorBlue   Color = "blue"
	ColorPurple Color = "purple"
	ColorGreen  Color = "green"
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorOrange Color = "orange"
)

// Colors lists every valid Color in display order.
var Colors = []Color{ColorGray, ColorBlue, ColorPurple, ColorGreen, ColorRed, ColorYellow, ColorOrange}

func (c Color) Valid() bool {
	for _, v := range Colors {
		if c == v {
			return true
		}
	}
	return false
}

// WeatherType is the coarse classification of a daily forecast.
type WeatherType string

const (
	WeatherSunny   WeatherType = "sunny"
	WeatherCloudy  WeatherType = "cloudy"
	WeatherDrizzle WeatherType = "drizzle"
	WeatherRainy   WeatherType = "rainy"
	WeatherSnowy   WeatherType = "snowy"
)

func (w WeatherType) Valid() bool {
	switch w {
	case WeatherSunny, WeatherCloudy, WeatherDrizzle, WeatherRainy, WeatherSnowy:
		return true
	}
	return false
}

// ViewMode selects whether the grid shows a month or a single week.
type ViewMode string

const (
	ViewMonth ViewMode = "month"
	ViewWeek  ViewMode = "week"
)

// CityLocation is the geocoded location attached to an event.
type CityLocation struct {
	Name        string  `json:"name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Admin1      string  `json:"admin1,omitempty"`
	Timezone    string  `json:"timezone"`
}

// Weather is a forecast snapshot taken for the event's date and city.
type Weather struct {
	Type           WeatherType `json:"type" validate:"weathertype"`
	TemperatureMax int         `json:"temperatureMax"`
	TemperatureMin int         `json:"temperatureMin"`
	WeatherCode    int         `json:"weatherCode"`
}

// CalendarEvent is a single reminder. Date and Time are kept as strings
// (YYYY-MM-DD / HH:MM) so they round-trip the persisted slot unchanged.
type CalendarEvent struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Date         string        `json:"date"`
	Time         string        `json:"time"`
	City         string        `json:"city"`
	CityLocation *CityLocation `json:"cityLocation,omitempty"`
	Calendar     string        `json:"calendar"`
	Color        Color         `json:"color"`
	Weather      *Weather      `json:"weather,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share the optional pointers.
func (e CalendarEvent) Clone() CalendarEvent {
	if e.CityLocation != nil {
		loc := *e.CityLocation
		e.CityLocation = &loc
	}
	if e.Weather != nil {
		w := *e.Weather
		e.Weather = &w
	}
	return e
}

// Minutes returns the time-of-day in minutes since midnight, or -1 if Time
// is malformed.
func (e CalendarEvent) Minutes() int {
	t, err := time.Parse(TimeLayout, e.Time)
	if err != nil {
		return -1
	}
	return t.Hour()*60 + t.Minute()
}

// CreateEventInput carries the fields accepted when creating an event.
type CreateEventInput struct {
	Title        string        `json:"title" validate:"required,title"`
	Date         string        `json:"date" validate:"required,caldate"`
	Time         string        `json:"time" validate:"required,clock"`
	City         string        `json:"city" validate:"required"`
	CityLocation *CityLocation `json:"cityLocation,omitempty"`
	Weather      *Weather      `json:"weather,omitempty"`
	Calendar     string        `json:"calendar" validate:"required"`
	Color        Color         `json:"color" validate:"required,color"`
}

// UpdateEventInput is a partial update; nil fields are left untouched.
type UpdateEventInput struct {
	ID           string        `json:"id" validate:"required"`
	Title        *string       `json:"title,omitempty" validate:"omitnil,title"`
	Date         *string       `json:"date,omitempty" validate:"omitnil,caldate"`
	Time         *string       `json:"time,omitempty" validate:"omitnil,clock"`
	City         *string       `json:"city,omitempty" validate:"omitnil,min=1"`
	CityLocation *CityLocation `json:"cityLocation,omitempty"`
	Weather      *Weather      `json:"weather,omitempty"`
	Calendar     *string       `json:"calendar,omitempty" validate:"omitnil,min=1"`
	Color        *Color        `json:"color,omitempty" validate:"omitnil,color"`
}

// Calendar is a named category events belong to.
type Calendar struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Color   Color  `json:"color"`
	Visible bool   `json:"visible"`
}

// DefaultCalendars is the seed set used when no calendars are persisted.
func DefaultCalendars() []Calendar {
	return []Calendar{
		{ID: "work", Name: "Work", Color: ColorGray, Visible: true},
		{ID: "personal", Name: "Personal", Color: ColorBlue, Visible: true},
		{ID: "birthdays", Name: "Birthdays", Color: ColorGreen, Visible: true},
		{ID: "tasks", Name: "Tasks", Color: ColorRed, Visible: true},
	}
}
