package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elec-mate/coursepages/internal/audit"
	"github.com/elec-mate/coursepages/internal/content"
	"github.com/elec-mate/coursepages/internal/events"
	"github.com/elec-mate/coursepages/internal/metrics"
	"github.com/elec-mate/coursepages/internal/platform/cache"
	"github.com/elec-mate/coursepages/internal/platform/config"
	"github.com/elec-mate/coursepages/internal/platform/database"
	"github.com/elec-mate/coursepages/internal/registry"
	"github.com/elec-mate/coursepages/internal/render"
	"github.com/elec-mate/coursepages/internal/seo"
	"github.com/elec-mate/coursepages/internal/server"
	"github.com/elec-mate/coursepages/internal/session"
)

const janitorInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "pages", a.pages)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func newLogger(c config.LogConfig) *slog.Logger {
	level, _ := c.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// app is the wired service: content, sessions and the HTTP handler.
type app struct {
	handler http.Handler
	pages   int
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp loads content, audits it and connects the optional database and
// cache. Without a database events are discarded. Mounts go to the cache when
// there is one, then the database, then memory.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	loader, err := content.NewLoader(cfg.Content.Path)
	if err != nil {
		return nil, err
	}
	reg, dups := registry.FromLoader(loader)
	for _, err := range dups {
		slog.Warn("duplicate route", "error", err)
	}
	a.pages = reg.Len()

	exam := session.ExamSettingsFrom(cfg.Exam)
	issues := audit.Run(reg, audit.Options{Rejections: loader.Rejections(), ExamDefaults: exam})
	errs, warnings := audit.Count(issues)
	for _, i := range issues {
		level := slog.LevelWarn
		if i.Severity == audit.SeverityError {
			level = slog.LevelError
		}
		slog.Log(ctx, level, "content audit", "code", i.Code, "route", i.Route, "message", i.Message)
	}
	slog.Info("content audit complete", "errors", errs, "warnings", warnings)
	if cfg.Content.Strict && (errs > 0 || len(dups) > 0) {
		return nil, fmt.Errorf("content audit reported %d errors and %d duplicate routes", errs, len(dups))
	}

	m := metrics.New()
	checks := map[string]server.HealthCheck{}
	var eventLog events.Logger = events.NopLogger{}
	var stats events.Counter
	var db *database.DB

	if cfg.HasDatabase() {
		db, err = database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		pgLog := events.NewPostgresLogger(db.Pool)
		eventLog, stats = pgLog, pgLog
		checks["database"] = db.HealthCheck
	}

	var store session.Store
	if cfg.HasCache() {
		c, err := cache.New(ctx, cfg.Cache.URL, "coursepages:")
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to cache: %w", err)
		}
		a.closers = append(a.closers, func() { c.Close() })
		store = session.NewRedisStore(c, cfg.Cache.MountTTL)
		checks["cache"] = c.HealthCheck
	} else if db != nil {
		pg := session.NewPostgresStore(db.Pool, cfg.Cache.MountTTL)
		go pg.RunJanitor(ctx, janitorInterval, m.MountsExpired)
		store = pg
	} else {
		mem := session.NewMemoryStore(cfg.Cache.MountTTL)
		go mem.RunJanitor(ctx, janitorInterval, m.MountsExpired)
		store = mem
	}

	renderer, err := render.New(cfg.Site.Name)
	if err != nil {
		a.Close()
		return nil, err
	}

	sessions := session.NewManager(store, reg,
		session.WithEvents(eventLog),
		session.WithMetrics(m),
		session.WithExamDefaults(exam),
	)

	a.handler = server.New(server.Deps{
		Registry: reg,
		Sessions: sessions,
		Renderer: renderer,
		Site: seo.Site{
			Name:               cfg.Site.Name,
			BaseURL:            cfg.Site.BaseURL,
			DefaultTitle:       cfg.Site.DefaultTitle,
			DefaultDescription: cfg.Site.DefaultDescription,
		},
		Metrics:        m,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Checks:         checks,
		Stats:          stats,
	}).Handler()

	if a.pages == 0 {
		slog.Warn("no pages loaded", "path", cfg.Content.Path)
	}
	return a, nil
}
