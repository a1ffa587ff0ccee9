package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds all Prometheus metrics for the price sentinel. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	CyclesTotal    *prometheus.CounterVec // labels: result=ok|error|panic
	CycleDuration  prometheus.Histogram
	SkippedTicks   prometheus.Counter
	QuoteFetches   *prometheus.CounterVec // labels: source, result
	PositionErrors *prometheus.CounterVec // labels: stage
	Transitions    *prometheus.CounterVec // labels: from, to
	Promotions     prometheus.Counter
	MarketOpen     prometheus.Gauge // 0=closed, 1=open
	LastCycle      prometheus.Gauge // unix seconds of the last finished cycle
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_refresh_cycles_total",
			Help: "Refresh cycles run by the scheduler",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentinel_refresh_cycle_duration_seconds",
			Help:    "Wall time of one refresh cycle including the promotion sweep",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		SkippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_skipped_ticks_total",
			Help: "Ticks skipped because a cycle was still in flight",
		}),
		QuoteFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_quote_fetches_total",
			Help: "Quote fetches by source and result",
		}, []string{"source", "result"}),
		PositionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_position_errors_total",
			Help: "Per-position refresh failures by stage",
		}, []string{"stage"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_status_transitions_total",
			Help: "Position status transitions",
		}, []string{"from", "to"}),
		Promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_promotions_total",
			Help: "Exit positions archived as exited after 48 hours",
		}),
		MarketOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_market_open",
			Help: "NSE market session state when the next tick was scheduled (0=closed, 1=open)",
		}),
		LastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_last_cycle_timestamp_seconds",
			Help: "Unix time of the last finished refresh cycle",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.SkippedTicks,
		m.QuoteFetches,
		m.PositionErrors,
		m.Transitions,
		m.Promotions,
		m.MarketOpen,
		m.LastCycle,
	)
	return m
}

// ObserveCycle records a finished cycle. result is ok, error or panic.
func (m *Metrics) ObserveCycle(result string, d time.Duration, at time.Time) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(d.Seconds())
	m.LastCycle.Set(float64(at.Unix()))
}

func (m *Metrics) SkipTick() {
	if m == nil {
		return
	}
	m.SkippedTicks.Inc()
}

func (m *Metrics) QuoteFetched(source string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.QuoteFetches.WithLabelValues(source, result).Inc()
}

func (m *Metrics) PositionError(stage string) {
	if m == nil {
		return
	}
	m.PositionErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Promoted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Promotions.Add(float64(n))
}

func (m *Metrics) SetMarketOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.MarketOpen.Set(1)
	} else {
		m.MarketOpen.Set(0)
	}
}

// Health tracks the outcome of the most recent cycle for /healthz.
type Health struct {
	mu        sync.RWMutex
	startedAt time.Time
	lastCycle time.Time
	lastErr   string
}

func NewHealth() *Health {
	return &Health{startedAt: time.Now()}
}

// CycleDone records the end of a cycle; err may be nil. A nil *Health
// records nothing.
func (h *Health) CycleDone(at time.Time, err error) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCycle = at
	h.lastErr = ""
	if err != nil {
		h.lastErr = err.Error()
	}
}

// ServeHTTP handles the /healthz endpoint.
func (h *Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := struct {
		Status    string `json:"status"`
		Uptime    string `json:"uptime"`
		LastCycle string `json:"last_cycle,omitempty"`
		LastError string `json:"last_error,omitempty"`
	}{
		Status:    "healthy",
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		LastError: h.lastErr,
	}
	if !h.lastCycle.IsZero() {
		status.LastCycle = h.lastCycle.Format(time.RFC3339)
	}
	code := http.StatusOK
	if h.lastErr != "" {
		status.Status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  zerolog.Logger
}

// NewServer creates a metrics and health server for the metrics gathered by g.
func NewServer(addr string, g prometheus.Gatherer, health *Health, log zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		log:  log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the mux, for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("metrics server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("metrics server error")
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
