package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"net/url"

	appLog "journeycal/internal/log"
	"journeycal/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = template.Must(template.New("").Funcs(template.FuncMap{
	"weatherIcon": weatherIcon,
}).ParseFS(templateFS, "templates/*.html"))

type pageData struct {
	Grid      gridResponse
	Weekdays  []string
	Calendars []model.Calendar
	PrevURL   string
	NextURL   string
	TodayURL  string
	ModeURL   string
	OtherMode model.ViewMode
}

// handlePage renders the grid for the same query parameters as /api/grid.
// The root element carries data-ready="true" once rendered, which the
// snapshot command waits for.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	v := s.viewFromQuery(r)
	g := s.buildGrid(v)

	other := model.ViewWeek
	if v.Mode == model.ViewWeek {
		other = model.ViewMonth
	}
	data := pageData{
		Grid:      g,
		Calendars: s.calendars.All(),
		PrevURL:   pageURL(g.Previous, v.Mode, v.ShowWeekends),
		NextURL:   pageURL(g.Next, v.Mode, v.ShowWeekends),
		TodayURL:  pageURL("", v.Mode, v.ShowWeekends),
		ModeURL:   pageURL(g.Current, other, v.ShowWeekends),
		OtherMode: other,
	}
	days := v.Days()
	width := 7
	if !v.ShowWeekends {
		width = 5
	}
	for i := 0; i < width && i < len(days); i++ {
		data.Weekdays = append(data.Weekdays, days[i].Format("Mon"))
	}

	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, "grid.html", data); err != nil {
		appLog.Error("render grid page", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func pageURL(date string, mode model.ViewMode, weekends bool) string {
	q := url.Values{}
	if date != "" {
		q.Set("date", date)
	}
	q.Set("mode", string(mode))
	if !weekends {
		q.Set("weekends", "false")
	}
	return "/?" + q.Encode()
}

func weatherIcon(w *model.Weather) string {
	if w == nil {
		return ""
	}
	switch w.Type {
	case model.WeatherSunny:
		return "☀"
	case model.WeatherDrizzle:
		return "🌦"
	case model.WeatherRainy:
		return "🌧"
	case model.WeatherSnowy:
		return "❄"
	default:
		return "☁"
	}
}
