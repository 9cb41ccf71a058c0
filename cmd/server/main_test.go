package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/elec-mate/coursepages/internal/platform/config"
)

func testConfig(t *testing.T, page string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if page != "" {
		if err := os.WriteFile(filepath.Join(dir, "page.yaml"), []byte(page), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return &config.Config{
		Cache:   config.CacheConfig{MountTTL: time.Minute},
		Content: config.ContentConfig{Path: dir, Strict: true},
		Site:    config.SiteConfig{Name: "Elec-Mate", BaseURL: "http://localhost:8080"},
		Exam:    config.ExamConfig{QuestionCount: 30, Duration: 45 * time.Minute, PassMark: 70, MarginalMark: 60},
		Log:     config.LogConfig{Level: "info", Format: "json"},
	}
}

const guidePage = `
route: /guides/rcd-testing
kind: guide
title: RCD Testing Guide
description: How to test RCDs
sections:
  - heading: Why test
    blocks:
      - type: paragraph
        text: RCDs save lives.
`

func newTestApp(t *testing.T, page string) *app {
	t.Helper()
	a, err := newApp(t.Context(), testConfig(t, page))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestHealthEndpoints(t *testing.T) {
	a := newTestApp(t, guidePage)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			a.handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestNewApp_ServesContent(t *testing.T) {
	a := newTestApp(t, guidePage)
	if a.pages != 1 {
		t.Fatalf("pages = %d, want 1", a.pages)
	}

	req := httptest.NewRequest(http.MethodGet, "/guides/rcd-testing", nil)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, want := range []string{"<title>RCD Testing Guide | Elec-Mate</title>", `<section id="why-test">`} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestNewApp_StrictRejectsBrokenContent(t *testing.T) {
	cfg := testConfig(t, `
route: /guides/broken
title: Broken
description: Links nowhere
related:
  - label: Gone
    href: /guides/gone
`)
	if _, err := newApp(t.Context(), cfg); err == nil {
		t.Fatal("newApp() error = nil with an unresolved link under strict content")
	}

	cfg.Content.Strict = false
	a, err := newApp(t.Context(), cfg)
	if err != nil {
		t.Fatalf("newApp() error = %v without strict content", err)
	}
	a.Close()
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		format string
		level  string
	}{
		{"json", "info"},
		{"text", "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			l := newLogger(config.LogConfig{Format: tt.format, Level: tt.level})
			if l == nil {
				t.Fatal("newLogger() = nil")
			}
		})
	}
}
