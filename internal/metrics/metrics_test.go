package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentCountsByRoute(t *testing.T) {
	m := New()
	h := m.Instrument("GET /api/events/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "missing") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	}))

	for _, p := range []string{"/api/events/a", "/api/events/b", "/api/events/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "GET /api/events/{id}", "200")); got != 2 {
		t.Errorf("200 count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "GET /api/events/{id}", "404")); got != 1 {
		t.Errorf("404 count = %v, want 1", got)
	}
}

func TestUpstreamJobsAndGauge(t *testing.T) {
	m := New()
	m.ObserveUpstream("forecast", 20*time.Millisecond, nil)
	m.ObserveUpstream("forecast", 30*time.Millisecond, errors.New("boom"))
	m.ObserveJob("weather-refresh", nil)
	m.PersistFailed()

	n := 3
	m.RegisterEventCount(func() int { return n })

	if got := testutil.ToFloat64(m.upstreamTotal.WithLabelValues("forecast", "error")); got != 1 {
		t.Errorf("upstream errors = %v", got)
	}
	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("weather-refresh", "ok")); got != 1 {
		t.Errorf("job runs = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"journeycal_events 3", "journeycal_persist_failures_total 1", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}
