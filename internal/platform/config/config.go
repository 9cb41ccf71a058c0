// Package config loads application configuration from environment variables.
// All variables use the COURSES_ prefix.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Content  ContentConfig
	Site     SiteConfig
	Exam     ExamConfig
	CORS     CORSConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds PostgreSQL connection settings for the learning-event log.
// An empty URL disables event persistence.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Redis connection settings for mount state.
// An empty URL keeps mounts in process memory.
type CacheConfig struct {
	URL      string
	MountTTL time.Duration
}

// ContentConfig controls where page data is loaded from.
type ContentConfig struct {
	Path string
	// Strict makes the server refuse to start when the content audit reports errors.
	Strict bool
}

// SiteConfig holds values rendered into every page head.
type SiteConfig struct {
	Name               string
	BaseURL            string
	DefaultTitle       string
	DefaultDescription string
}

// ExamConfig holds mock exam defaults applied when a page leaves them unset.
type ExamConfig struct {
	QuestionCount int
	Duration      time.Duration
	PassMark      int
	MarginalMark  int
}

// CORSConfig holds allowed origins for the JSON API.
type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with COURSES_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("COURSES_SERVER_PORT", 8080),
			Host: envStr("COURSES_SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL:      envStr("COURSES_DATABASE_URL", ""),
			MaxConns: envInt("COURSES_DATABASE_MAX_CONNS", 10),
			MinConns: envInt("COURSES_DATABASE_MIN_CONNS", 1),
		},
		Cache: CacheConfig{
			URL:      envStr("COURSES_CACHE_URL", ""),
			MountTTL: time.Duration(envInt("COURSES_CACHE_MOUNT_TTL", 30)) * time.Minute,
		},
		Content: ContentConfig{
			Path:   envStr("COURSES_CONTENT_PATH", "./content"),
			Strict: envBool("COURSES_CONTENT_STRICT", false),
		},
		Site: SiteConfig{
			Name:               envStr("COURSES_SITE_NAME", "Elec-Mate"),
			BaseURL:            envStr("COURSES_SITE_BASE_URL", "http://localhost:8080"),
			DefaultTitle:       envStr("COURSES_SITE_DEFAULT_TITLE", "Elec-Mate | Electrical Training"),
			DefaultDescription: envStr("COURSES_SITE_DEFAULT_DESCRIPTION", "Courses, guides and study tools for UK electricians."),
		},
		Exam: ExamConfig{
			QuestionCount: envInt("COURSES_EXAM_QUESTION_COUNT", 30),
			Duration:      time.Duration(envInt("COURSES_EXAM_DURATION", 45)) * time.Minute,
			PassMark:      envInt("COURSES_EXAM_PASS_MARK", 70),
			MarginalMark:  envInt("COURSES_EXAM_MARGINAL_MARK", 60),
		},
		CORS: CORSConfig{
			AllowedOrigins: envList("COURSES_CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Log: LogConfig{
			Level:  envStr("COURSES_LOG_LEVEL", "info"),
			Format: envStr("COURSES_LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("COURSES_SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Content.Path == "" {
		return fmt.Errorf("COURSES_CONTENT_PATH is required")
	}

	if c.Cache.MountTTL <= 0 {
		return fmt.Errorf("COURSES_CACHE_MOUNT_TTL must be positive")
	}

	if c.Exam.MarginalMark > c.Exam.PassMark {
		return fmt.Errorf("COURSES_EXAM_MARGINAL_MARK (%d) must not exceed COURSES_EXAM_PASS_MARK (%d)", c.Exam.MarginalMark, c.Exam.PassMark)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("COURSES_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}

	return nil
}

// HasDatabase returns true if learning events should be persisted.
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasCache returns true if mounts should be kept in Redis.
func (c *Config) HasCache() bool {
	return c.Cache.URL != ""
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("COURSES_LOG_LEVEL must be debug, info, warn or error, got %q", l.Level)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
