package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"journeycal/internal/config"
	appLog "journeycal/internal/log"
	"journeycal/internal/metrics"
	"journeycal/internal/model"
	"journeycal/internal/store"
	"journeycal/internal/weather"
)

// Weather is the lookup service used by the city and forecast endpoints and
// by weather enrichment on create.
type Weather interface {
	SearchCities(ctx context.Context, query string) ([]weather.City, error)
	Forecast(ctx context.Context, lat, lon float64, date string) (*model.Weather, error)
}

// Deps are the collaborators a Server needs. Weather and Metrics are
// optional.
type Deps struct {
	Config    *config.Config
	Events    *store.Events
	Calendars *store.Calendars
	Weather   Weather
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Server provides the JSON API and the server-rendered grid page.
type Server struct {
	cfg       *config.Config
	events    *store.Events
	calendars *store.Calendars
	weather   Weather
	metrics   *metrics.Metrics
	now       func() time.Time
	loc       *time.Location
	mux       *http.ServeMux
}

func NewServer(d Deps) *Server {
	cfg := d.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		cfg:       cfg,
		events:    d.Events,
		calendars: d.Calendars,
		weather:   d.Weather,
		metrics:   d.Metrics,
		now:       now,
		loc:       cfg.Location(),
		mux:       http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, with basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "user", s.cfg.BasicAuth.Username)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.PasswordHash != ""
}

// basicAuthMiddleware protects everything except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	auth := s.cfg.BasicAuth
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !auth.Check(u, p) {
			w.Header().Set("WWW-Authenticate", `Basic realm="journeycal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerRoutes() {
	s.handle("GET /health", s.handleHealth)

	s.handle("GET /api/grid", s.handleGrid)

	s.handle("GET /api/events", s.handleListEvents)
	s.handle("POST /api/events", s.handleCreateEvent)
	s.handle("DELETE /api/events", s.handleDeleteByDate)
	s.handle("DELETE /api/events/all", s.handleClearAll)
	s.handle("GET /api/events/{id}", s.handleGetEvent)
	s.handle("PATCH /api/events/{id}", s.handleUpdateEvent)
	s.handle("DELETE /api/events/{id}", s.handleDeleteEvent)

	s.handle("GET /api/calendars", s.handleCalendars)
	s.handle("POST /api/calendars/{id}/toggle", s.handleToggleCalendar)

	s.handle("GET /api/cities", s.handleCities)
	s.handle("GET /api/forecast", s.handleForecast)
	s.handle("GET /api/export.ics", s.handleExport)

	s.handle("GET /{$}", s.handlePage)

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	var h http.Handler = fn
	if s.metrics != nil {
		h = s.metrics.Instrument(pattern, h)
	}
	s.mux.Handle(pattern, h)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

type errorResponse struct {
	Error  string               `json:"error"`
	Fields []store.FieldError   `json:"fields,omitempty"`
	Event  *model.CalendarEvent `json:"event,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeStoreError maps repository errors onto status codes. ev is reported
// back on persist failures, where the change was applied in memory.
func (s *Server) writeStoreError(w http.ResponseWriter, err error, ev *model.CalendarEvent) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid input", Fields: verr.Fields})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrPersist):
		if s.metrics != nil {
			s.metrics.PersistFailed()
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to persist", Event: ev})
	default:
		appLog.Error("request failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
