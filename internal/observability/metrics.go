package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldserve/fieldserve/internal/resilience"
)

// Metrics mengumpulkan metrik Prometheus untuk satu proses.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	breakerState    *prometheus.GaugeVec
	breakerCalls    *prometheus.CounterVec
	gateDecisions   *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldserve_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fieldserve_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	breakerState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fieldserve_breaker_state",
		Help: "Circuit state per caller and target (0 closed, 1 half-open, 2 open).",
	}, []string{"caller", "target"})
	breakerCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldserve_breaker_calls_total",
		Help: "Protected calls partitioned by outcome.",
	}, []string{"caller", "target", "outcome"})
	gateDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fieldserve_gate_decisions_total",
		Help: "Edge authorization decisions partitioned by outcome.",
	}, []string{"outcome"})
	registry.MustRegister(requests, duration, breakerState, breakerCalls, gateDecisions)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		breakerState:    breakerState,
		breakerCalls:    breakerCalls,
		gateDecisions:   gateDecisions,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveState implements resilience.Observer.
func (m *Metrics) ObserveState(caller, target string, state resilience.State) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(caller, target).Set(float64(state))
}

// ObserveCall implements resilience.Observer.
func (m *Metrics) ObserveCall(caller, target string, outcome resilience.Outcome) {
	if m == nil {
		return
	}
	m.breakerCalls.WithLabelValues(caller, target, string(outcome)).Inc()
}

// ObserveGate mencatat keputusan gerbang otorisasi.
func (m *Metrics) ObserveGate(outcome string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(outcome).Inc()
}

var _ resilience.Observer = (*Metrics)(nil)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps streaming proxies working behind the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
