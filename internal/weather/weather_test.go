package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"journeycal/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	c := New(Options{GeocodingURL: srv.URL, ForecastURL: srv.URL, RatePerSecond: 1000})
	return c, &hits
}

func TestSearchCitiesShortQuerySkipsRequest(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	})

	for _, q := range []string{"", "a", "  b  ", " "} {
		got, err := c.SearchCities(context.Background(), q)
		if err != nil {
			t.Fatalf("SearchCities(%q): %v", q, err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("SearchCities(%q) = %v, want empty", q, got)
		}
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Errorf("expected no requests, got %d", *hits)
	}
}

func TestSearchCitiesCapsCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("count"); got != "10" {
			t.Errorf("count = %s, want 10", got)
		}
		results := make([]string, 0, 15)
		for i := range 15 {
			results = append(results, `{"id":`+strconv.Itoa(i+1)+`,"name":"Springfield","latitude":1,"longitude":2,"country":"United States"}`)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[` + strings.Join(results, ",") + `]}`))
	}))
	defer srv.Close()

	c := New(Options{GeocodingURL: srv.URL, ForecastURL: srv.URL, RatePerSecond: 1000, Count: 50})
	got, err := c.SearchCities(context.Background(), "Springfield")
	if err != nil {
		t.Fatalf("SearchCities: %v", err)
	}
	if len(got) != MaxCount {
		t.Errorf("got %d cities, want %d", len(got), MaxCount)
	}
}

func TestSearchCitiesTrimsAndDecodes(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("name") != "London" || q.Get("count") != "10" || q.Get("language") != "en" || q.Get("format") != "json" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"id":2643743,"name":"London","latitude":51.50853,"longitude":-0.12574,"country":"United Kingdom","country_code":"GB","admin1":"England","timezone":"Europe/London"},{"id":6058560,"name":"London","latitude":42.98339,"longitude":-81.23304,"country":"Canada","country_code":"CA","timezone":"America/Toronto"}],"generationtime_ms":0.5}`))
	})

	got, err := c.SearchCities(context.Background(), "  London  ")
	if err != nil {
		t.Fatalf("SearchCities: %v", err)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("expected 1 request, got %d", *hits)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].DisplayName() != "London, England, United Kingdom" {
		t.Errorf("display name = %q", got[0].DisplayName())
	}
	if got[1].DisplayName() != "London, Canada" {
		t.Errorf("display name without admin1 = %q", got[1].DisplayName())
	}
	loc := got[0].Location()
	if loc.CountryCode != "GB" || loc.Timezone != "Europe/London" || loc.Latitude != 51.50853 {
		t.Errorf("unexpected location %+v", loc)
	}
}

func TestSearchCitiesNoResults(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"generationtime_ms":0.2}`))
	})
	got, err := c.SearchCities(context.Background(), "Nowhereville")
	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("got %v, %v; want empty slice", got, err)
	}
}

func forecastBody(code int, max, min float64) string {
	return `{"latitude":35.7,"longitude":139.7,"timezone":"Asia/Tokyo","daily":{"time":["2025-11-15"],"weathercode":[` +
		strconv.Itoa(code) + `],"temperature_2m_max":[` + strconv.FormatFloat(max, 'f', -1, 64) + `],"temperature_2m_min":[` + strconv.FormatFloat(min, 'f', -1, 64) + `]}}`
}

func TestForecast(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		max, min float64
		want     model.Weather
	}{
		{"rain", 61, 15.4, 9.6, model.Weather{Type: model.WeatherRainy, TemperatureMax: 15, TemperatureMin: 10, WeatherCode: 61}},
		{"unknown code", 120, 20.5, -2.5, model.Weather{Type: model.WeatherCloudy, TemperatureMax: 21, TemperatureMin: -2, WeatherCode: 120}},
		{"clear", 0, 25, 18, model.Weather{Type: model.WeatherSunny, TemperatureMax: 25, TemperatureMin: 18, WeatherCode: 0}},
		{"snow", 77, -1.2, -7.8, model.Weather{Type: model.WeatherSnowy, TemperatureMax: -1, TemperatureMin: -8, WeatherCode: 77}},
		{"drizzle", 55, 12, 8, model.Weather{Type: model.WeatherDrizzle, TemperatureMax: 12, TemperatureMin: 8, WeatherCode: 55}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/forecast" {
					t.Errorf("path = %s", r.URL.Path)
				}
				q := r.URL.Query()
				if q.Get("latitude") != "35.6762" || q.Get("longitude") != "139.6503" ||
					q.Get("daily") != "weathercode,temperature_2m_max,temperature_2m_min" ||
					q.Get("timezone") != "auto" || q.Get("start_date") != "2025-11-15" || q.Get("end_date") != "2025-11-15" {
					t.Errorf("unexpected query %s", r.URL.RawQuery)
				}
				w.Write([]byte(forecastBody(tt.code, tt.max, tt.min)))
			})

			got, err := c.Forecast(context.Background(), 35.6762, 139.6503, "2025-11-15")
			if err != nil {
				t.Fatalf("Forecast: %v", err)
			}
			if got == nil || *got != tt.want {
				t.Errorf("Forecast = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestForecastEmptyDaily(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"daily":{"time":[],"weathercode":[],"temperature_2m_max":[],"temperature_2m_min":[]}}`))
	})
	got, err := c.Forecast(context.Background(), 1, 2, "2030-01-01")
	if err != nil || got != nil {
		t.Errorf("got %+v, %v; want nil, nil", got, err)
	}
}

func TestUpstreamError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":true,"reason":"bad date"}`, http.StatusBadRequest)
	})

	_, err := c.Forecast(context.Background(), 1, 2, "nope")
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
	_, err = c.SearchCities(context.Background(), "Paris")
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}

func TestObserveCalled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	var seen []string
	c := New(Options{GeocodingURL: srv.URL, Observe: func(endpoint string, _ time.Duration, err error) {
		if err != nil {
			t.Errorf("unexpected err %v", err)
		}
		seen = append(seen, endpoint)
	}})
	c.SearchCities(context.Background(), "Rome")
	if len(seen) != 1 || seen[0] != "search" {
		t.Errorf("observed %v", seen)
	}
}

func TestCanceledContext(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.SearchCities(ctx, "Berlin"); err == nil {
		t.Error("expected error for canceled context")
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Error("canceled request should not reach the server")
	}
}

func TestTypeForCode(t *testing.T) {
	cases := map[int]model.WeatherType{
		0: model.WeatherSunny, 3: model.WeatherCloudy, 45: model.WeatherCloudy, 57: model.WeatherDrizzle,
		82: model.WeatherRainy, 86: model.WeatherSnowy, 99: model.WeatherRainy, 4: model.WeatherCloudy, -1: model.WeatherCloudy,
	}
	for code, want := range cases {
		if got := TypeForCode(code); got != want {
			t.Errorf("TypeForCode(%d) = %s, want %s", code, got, want)
		}
	}
}
