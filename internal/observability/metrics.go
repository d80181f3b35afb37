package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garrison-hq/garrison/internal/session"
)

// Metrics collects Prometheus metrics for the application: the HTTP
// surface plus the session engine lifecycle.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	sessionsActive    prometheus.Gauge
	sessionsOpened    prometheus.Counter
	sessionsClosed    prometheus.Counter
	sessionsExpired   prometheus.Counter
	sessionExtensions prometheus.Counter
	sessionWarnings   prometheus.Counter

	jobsTotal *prometheus.CounterVec
}

// NewMetrics initializes the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "garrison_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "garrison_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "garrison_sessions_active",
		Help: "Live authenticated sessions.",
	})
	sessionsOpened := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "garrison_sessions_opened_total",
		Help: "Sessions opened by login or restore.",
	})
	sessionsClosed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "garrison_sessions_closed_total",
		Help: "Sessions closed by voluntary logout.",
	})
	sessionsExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "garrison_sessions_expired_total",
		Help: "Sessions terminated by the expiry timer.",
	})
	sessionExtensions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "garrison_session_extensions_total",
		Help: "Explicit session extensions.",
	})
	sessionWarnings := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "garrison_session_warnings_total",
		Help: "Sessions that reached the expiry warning window.",
	})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "garrison_jobs_total",
		Help: "Background job runs by type and outcome.",
	}, []string{"type", "status"})

	registry.MustRegister(requests, duration,
		sessionsActive, sessionsOpened, sessionsClosed, sessionsExpired,
		sessionExtensions, sessionWarnings, jobs)

	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		sessionsActive:    sessionsActive,
		sessionsOpened:    sessionsOpened,
		sessionsClosed:    sessionsClosed,
		sessionsExpired:   sessionsExpired,
		sessionExtensions: sessionExtensions,
		sessionWarnings:   sessionWarnings,
		jobsTotal:         jobs,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
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

// SessionOpened records a login or restore.
func (m *Metrics) SessionOpened() {
	m.sessionsActive.Inc()
	m.sessionsOpened.Inc()
}

// SessionClosed records a voluntary logout.
func (m *Metrics) SessionClosed() {
	m.sessionsActive.Dec()
	m.sessionsClosed.Inc()
}

// SessionExpired records a timer-forced logout.
func (m *Metrics) SessionExpired() {
	m.sessionsActive.Dec()
	m.sessionsExpired.Inc()
}

// SessionExtended records an explicit extension.
func (m *Metrics) SessionExtended() {
	m.sessionExtensions.Inc()
}

// SessionWarned records entry into the warning window.
func (m *Metrics) SessionWarned() {
	m.sessionWarnings.Inc()
}

// JobObserved records a background job outcome.
func (m *Metrics) JobObserved(taskType string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.jobsTotal.WithLabelValues(taskType, status).Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

var _ session.Metrics = (*Metrics)(nil)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
