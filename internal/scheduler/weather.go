package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLog "journeycal/internal/log"
	"journeycal/internal/model"
	"journeycal/internal/store"
)

// ForecastHorizonDays matches how far ahead open-meteo forecasts.
const ForecastHorizonDays = 16

// Forecaster is the part of the weather client the refresher needs.
type Forecaster interface {
	ForecastFor(ctx context.Context, loc model.CityLocation, date string) (*model.Weather, error)
}

// WeatherRefresher re-fetches forecasts for upcoming events that carry a
// geocoded city, so snapshots taken weeks ago converge on the latest
// forecast.
type WeatherRefresher struct {
	events     *store.Events
	forecaster Forecaster
	loc        *time.Location
	now        func() time.Time
}

func NewWeatherRefresher(events *store.Events, forecaster Forecaster, loc *time.Location) *WeatherRefresher {
	if loc == nil {
		loc = time.Local
	}
	return &WeatherRefresher{events: events, forecaster: forecaster, loc: loc, now: time.Now}
}

type forecastKey struct {
	lat, lon float64
	date     string
}

// Refresh updates the weather of every event dated today through the
// forecast horizon. It returns how many events changed. Lookups are shared
// between events on the same day and place.
func (r *WeatherRefresher) Refresh(ctx context.Context) (int, error) {
	today := r.now().In(r.loc)
	from := today.Format(model.DateLayout)
	to := today.AddDate(0, 0, ForecastHorizonDays-1).Format(model.DateLayout)

	cache := make(map[forecastKey]*model.Weather)
	var errs []error
	updated := 0

	for _, ev := range r.events.InRange(from, to) {
		if ev.CityLocation == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		key := forecastKey{ev.CityLocation.Latitude, ev.CityLocation.Longitude, ev.Date}
		w, ok := cache[key]
		if !ok {
			var err error
			w, err = r.forecaster.ForecastFor(ctx, *ev.CityLocation, ev.Date)
			if err != nil {
				errs = append(errs, fmt.Errorf("event %s: %w", ev.ID, err))
				continue
			}
			cache[key] = w
		}
		if w == nil || (ev.Weather != nil && *ev.Weather == *w) {
			continue
		}

		_, found, err := r.events.Update(ctx, model.UpdateEventInput{ID: ev.ID, Weather: w})
		if err != nil {
			errs = append(errs, err)
		}
		if found {
			updated++
		}
	}

	appLog.Info("weather refresh done", "from", from, "to", to, "updated", updated, "errors", len(errs))
	return updated, errors.Join(errs...)
}
