// Package metrics exposes Prometheus counters for page and quiz activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and multiple servers do not
// collide on the global one.
type Metrics struct {
	Registry *prometheus.Registry

	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	PageViews       *prometheus.CounterVec
	Answers         *prometheus.CounterVec
	ExamsSubmitted  *prometheus.CounterVec
	MountsCreated   prometheus.Counter
	MountsClosed    *prometheus.CounterVec
}

// Reasons a mount stops being live.
const (
	ReasonUnmounted = "unmounted"
	ReasonExpired   = "expired"
)

// New creates and registers the service metrics.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"method", "endpoint"},
		),
		PageViews: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursepages_page_views_total",
				Help: "Rendered pages by kind",
			},
			[]string{"kind"},
		),
		Answers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursepages_answers_total",
				Help: "Answers selected by widget and outcome",
			},
			[]string{"widget", "outcome"},
		),
		ExamsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursepages_exams_submitted_total",
				Help: "Submitted mock exams by grade",
			},
			[]string{"grade"},
		),
		MountsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursepages_mounts_created_total",
			Help: "Mounts created by this process",
		}),
		MountsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coursepages_mounts_closed_total",
				Help: "Mounts removed by explicit unmount or by the expiry sweep",
			},
			[]string{"reason"},
		),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestCounter,
		m.RequestDuration,
		m.PageViews,
		m.Answers,
		m.ExamsSubmitted,
		m.MountsCreated,
		m.MountsClosed,
	)
	return m
}

// MountsExpired records n mounts removed by a store sweep. Redis expiry is
// not visible to the process, so only the memory and Postgres janitors call it.
func (m *Metrics) MountsExpired(n int) {
	if n > 0 {
		m.MountsClosed.WithLabelValues(ReasonExpired).Add(float64(n))
	}
}

// Middleware records request counts and durations labelled by route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			endpoint = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
