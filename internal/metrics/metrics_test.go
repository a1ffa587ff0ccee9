package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	srv := NewServer(":0", reg, NewHealth(), zerolog.Nop())
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCycle("ok", 2*time.Second, time.Unix(1700000000, 0))
	m.SkipTick()
	m.QuoteFetched("nse", nil)
	m.QuoteFetched("nse", errors.New("boom"))
	m.PositionError("fetch")
	m.Transition("hold", "exit")
	m.Promoted(3)
	m.SetMarketOpen(true)

	out := scrape(t, reg)
	for _, want := range []string{
		`sentinel_refresh_cycles_total{result="ok"} 1`,
		`sentinel_quote_fetches_total{result="error",source="nse"} 1`,
		`sentinel_quote_fetches_total{result="ok",source="nse"} 1`,
		`sentinel_position_errors_total{stage="fetch"} 1`,
		`sentinel_status_transitions_total{from="hold",to="exit"} 1`,
		`sentinel_promotions_total 3`,
		`sentinel_market_open 1`,
		`sentinel_last_cycle_timestamp_seconds 1.7e+09`,
		`sentinel_refresh_cycle_duration_seconds_count 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in scrape output", want)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCycle("ok", time.Second, time.Now())
	m.SkipTick()
	m.QuoteFetched("nse", nil)
	m.PositionError("fetch")
	m.Transition("entry", "hold")
	m.Promoted(1)
	m.SetMarketOpen(false)
}

func TestServer_Endpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SkipTick()
	health := NewHealth()
	srv := NewServer(":0", reg, health, zerolog.Nop())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "sentinel_skipped_ticks_total 1") {
		t.Errorf("unexpected /metrics response %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected healthy, got %d", rec.Code)
	}

	health.CycleDone(time.Now(), errors.New("store down"))
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "store down") {
		t.Errorf("expected degraded health, got %d: %s", rec.Code, rec.Body.String())
	}
}
