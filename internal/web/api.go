package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"journeycal/internal/grid"
	"journeycal/internal/ics"
	appLog "journeycal/internal/log"
	"journeycal/internal/model"
	"journeycal/internal/store"
)

type gridDay struct {
	Date      string                `json:"date"`
	InMonth   bool                  `json:"inMonth"`
	IsToday   bool                  `json:"isToday"`
	IsWeekend bool                  `json:"isWeekend"`
	Selected  bool                  `json:"selected"`
	Events    []model.CalendarEvent `json:"events"`
}

type gridResponse struct {
	Title        string         `json:"title"`
	Mode         model.ViewMode `json:"mode"`
	ShowWeekends bool           `json:"showWeekends"`
	Current      string         `json:"current"`
	Previous     string         `json:"previous"`
	Next         string         `json:"next"`
	Days         []gridDay      `json:"days"`
}

// viewFromQuery builds the view state for ?date=&mode=&weekends=&selected=.
// Unknown or malformed values fall back to the configured defaults.
func (s *Server) viewFromQuery(r *http.Request) *grid.ViewState {
	q := r.URL.Query()
	now := s.now().In(s.loc)

	v := grid.NewViewState(now)
	v.WeekStart = s.cfg.WeekStartDay()
	v.ShowWeekends = s.cfg.ShowWeekends

	if d, err := grid.ParseDate(q.Get("date"), s.loc); err == nil {
		v.Current = d
	}
	if m := q.Get("mode"); m != "" {
		v.SetViewMode(model.ViewMode(m))
	}
	if b, err := strconv.ParseBool(q.Get("weekends")); err == nil {
		v.ShowWeekends = b
	}
	if d, err := grid.ParseDate(q.Get("selected"), s.loc); err == nil {
		v.Select(d)
	}
	return v
}

func (s *Server) buildGrid(v *grid.ViewState) gridResponse {
	now := s.now().In(s.loc)
	visible := s.calendars.VisibleIDs()

	prev, next := *v, *v
	prev.Previous()
	next.Next()

	days := v.Days()
	resp := gridResponse{
		Title:        v.Title(),
		Mode:         v.Mode,
		ShowWeekends: v.ShowWeekends,
		Current:      grid.FormatDate(v.Current),
		Previous:     grid.FormatDate(prev.Current),
		Next:         grid.FormatDate(next.Current),
		Days:         make([]gridDay, 0, len(days)),
	}
	for _, d := range days {
		date := grid.FormatDate(d)
		resp.Days = append(resp.Days, gridDay{
			Date:      date,
			InMonth:   v.InCurrentMonth(d),
			IsToday:   grid.IsToday(d, now),
			IsWeekend: grid.IsWeekend(d),
			Selected:  v.IsSelected(d),
			Events:    s.events.VisibleByDate(date, visible),
		})
	}
	return resp
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.buildGrid(s.viewFromQuery(r)))
}

// handleListEvents serves GET /api/events with optional ?date= or
// ?from=&to= filters; without filters every event is returned.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Get("date") != "":
		if q.Get("visible") == "true" {
			writeJSON(w, http.StatusOK, s.events.VisibleByDate(q.Get("date"), s.calendars.VisibleIDs()))
			return
		}
		writeJSON(w, http.StatusOK, s.events.ByDate(q.Get("date")))
	case q.Get("from") != "" || q.Get("to") != "":
		from, to := q.Get("from"), q.Get("to")
		if to == "" {
			to = "9999-12-31"
		}
		writeJSON(w, http.StatusOK, s.events.InRange(from, to))
	default:
		writeJSON(w, http.StatusOK, s.events.All())
	}
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in model.CreateEventInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, ok := s.calendars.Get(in.Calendar); !ok && in.Calendar != "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid input", Fields: []store.FieldError{{Field: "calendar", Rule: "exists"}}})
		return
	}
	s.enrichWeather(r, &in)

	ev, err := s.events.Create(r.Context(), in)
	if err != nil {
		var kept *model.CalendarEvent
		if ev.ID != "" {
			kept = &ev
		}
		s.writeStoreError(w, err, kept)
		return
	}
	appLog.Info("event created", "id", ev.ID, "date", ev.Date)
	writeJSON(w, http.StatusCreated, ev)
}

// enrichWeather attaches a forecast when the input has a geocoded city and
// no weather yet. Lookup failures only cost the enrichment.
func (s *Server) enrichWeather(r *http.Request, in *model.CreateEventInput) {
	if s.weather == nil || in.CityLocation == nil || in.Weather != nil || in.Date == "" {
		return
	}
	w, err := s.weather.Forecast(r.Context(), in.CityLocation.Latitude, in.CityLocation.Longitude, in.Date)
	if err != nil {
		appLog.Warn("weather enrichment skipped", "city", in.City, "date", in.Date, "err", err.Error())
		return
	}
	in.Weather = w
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.events.ByID(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var in model.UpdateEventInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	in.ID = r.PathValue("id")

	ev, found, err := s.events.Update(r.Context(), in)
	if err != nil {
		var kept *model.CalendarEvent
		if found {
			kept = &ev
		}
		s.writeStoreError(w, err, kept)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	removed, err := s.events.DeleteByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err, nil)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteByDate(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid input", Fields: []store.FieldError{{Field: "date", Rule: "caldate"}}})
		return
	}
	n, err := s.events.DeleteByDate(r.Context(), date)
	if err != nil {
		s.writeStoreError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	if err := s.events.ClearAll(r.Context()); err != nil {
		s.writeStoreError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCalendars(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.calendars.All())
}

func (s *Server) handleToggleCalendar(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := s.calendars.ToggleVisibility(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, "calendar not found")
		return
	}
	cal, _ := s.calendars.Get(id)
	if err != nil {
		if s.metrics != nil {
			s.metrics.PersistFailed()
		}
		appLog.Error("calendar toggle not persisted", err, "id", id)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to persist", "calendar": cal})
		return
	}
	writeJSON(w, http.StatusOK, cal)
}

type cityResponse struct {
	DisplayName string             `json:"displayName"`
	Location    model.CityLocation `json:"location"`
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	if s.weather == nil {
		writeError(w, http.StatusServiceUnavailable, "weather lookup disabled")
		return
	}
	cities, err := s.weather.SearchCities(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, http.StatusBadGateway, "city search failed")
		return
	}
	out := make([]cityResponse, 0, len(cities))
	for _, c := range cities {
		out = append(out, cityResponse{DisplayName: c.DisplayName(), Location: c.Location()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if s.weather == nil {
		writeError(w, http.StatusServiceUnavailable, "weather lookup disabled")
		return
	}
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	date := q.Get("date")
	if _, err := time.Parse(model.DateLayout, date); errLat != nil || errLon != nil || err != nil {
		writeError(w, http.StatusBadRequest, "lat, lon and date (YYYY-MM-DD) are required")
		return
	}
	wx, err := s.weather.Forecast(r.Context(), lat, lon, date)
	if err != nil {
		writeError(w, http.StatusBadGateway, "forecast failed")
		return
	}
	if wx == nil {
		writeError(w, http.StatusNotFound, "no forecast for date")
		return
	}
	writeJSON(w, http.StatusOK, wx)
}

// handleExport serves the events as text/calendar, optionally restricted
// to ?from=&to=.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events := s.events.All()
	if q.Get("from") != "" || q.Get("to") != "" {
		to := q.Get("to")
		if to == "" {
			to = "9999-12-31"
		}
		events = s.events.InRange(q.Get("from"), to)
	}
	body := ics.Export(events, s.loc)
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="journeycal.ics"`)
	_, _ = w.Write([]byte(strings.TrimSpace(body) + "\r\n"))
}
