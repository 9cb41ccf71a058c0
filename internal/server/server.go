// Package server exposes course pages over HTTP.
//
// Rendered pages and their form posts live at the root, a JSON API for the
// same pages and mounts lives under /api, and answers can also be streamed
// over a websocket at /ws/mounts/{id}.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/elec-mate/coursepages/internal/events"
	"github.com/elec-mate/coursepages/internal/metrics"
	"github.com/elec-mate/coursepages/internal/registry"
	"github.com/elec-mate/coursepages/internal/render"
	"github.com/elec-mate/coursepages/internal/seo"
	"github.com/elec-mate/coursepages/internal/session"
)

const requestTimeout = 30 * time.Second

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps holds everything the server needs to answer requests.
type Deps struct {
	Registry *registry.Registry
	Sessions *session.Manager
	Renderer *render.Renderer
	Site     seo.Site
	// Metrics is optional; nil disables /metrics and request instrumentation.
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	// Checks are run by /readyz, keyed by dependency name.
	Checks map[string]HealthCheck
	// Stats is optional; nil disables /api/stats.
	Stats events.Counter
}

// Server routes HTTP requests to the page registry and mount sessions.
type Server struct {
	reg      *registry.Registry
	sessions *session.Manager
	renderer *render.Renderer
	site     seo.Site
	metrics  *metrics.Metrics
	origins  []string
	checks   map[string]HealthCheck
	stats    events.Counter
}

// New creates a server from deps.
func New(d Deps) *Server {
	return &Server{
		reg:      d.Registry,
		sessions: d.Sessions,
		renderer: d.Renderer,
		site:     d.Site,
		metrics:  d.Metrics,
		origins:  d.AllowedOrigins,
		checks:   d.Checks,
		stats:    d.Stats,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// Websocket connections outlive the request timeout.
	r.Get("/ws/mounts/{id}", s.handleSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Route("/api", func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   s.origins,
				AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Content-Type", "If-None-Match", "X-Request-ID"},
				ExposedHeaders:   []string{"ETag", "X-Request-ID"},
				AllowCredentials: false,
				MaxAge:           300,
			}))

			r.Get("/pages", s.handleListPages)
			r.Get("/pages/*", s.handleGetPage)
			r.Get("/modules", s.handleListModules)
			if s.stats != nil {
				r.Get("/stats/pages/*", s.handlePageStats)
			}

			r.Post("/mounts", s.handleCreateMount)
			r.Get("/mounts/{id}", s.handleGetMount)
			r.Delete("/mounts/{id}", s.handleDeleteMount)
			r.Post("/mounts/{id}/answers", s.handleAPIAnswer)
			r.Post("/mounts/{id}/exam/start", s.handleAPIStartExam)
			r.Post("/mounts/{id}/exam/submit", s.handleAPISubmitExam)
		})

		r.Route("/_mount/{id}", func(r chi.Router) {
			r.Post("/answer", s.handleFormAnswer)
			r.Post("/flag", s.handleFormFlag)
			r.Post("/exam/start", s.handleFormStartExam)
			r.Post("/exam/submit", s.handleFormSubmitExam)
			r.Post("/exam/goto", s.handleFormGoto)
		})

		r.Get("/", s.handlePage)
		r.Get("/*", s.handlePage)
	})

	return r
}

// requestLogger logs one line per request with slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}
