// Package config loads the badge editor service configuration from
// defaults, an optional YAML file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alimasry/go-badge-editor/autosave"
	"github.com/alimasry/go-badge-editor/editor"
	"github.com/alimasry/go-badge-editor/template"
)

// Storage backends.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

type Config struct {
	Listen   string         `yaml:"listen"`
	LogLevel string         `yaml:"log_level"`
	Storage  StorageConfig  `yaml:"storage"`
	Autosave AutosaveConfig `yaml:"autosave"`
	History  HistoryConfig  `yaml:"history"`
	Canvas   CanvasConfig   `yaml:"canvas"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type StorageConfig struct {
	Backend             string        `yaml:"backend"`
	SQLitePath          string        `yaml:"sqlite_path"`
	FirestoreProject    string        `yaml:"firestore_project"`
	FirestoreCollection string        `yaml:"firestore_collection"`
	// FlushInterval is the write-behind period for remote backends.
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type AutosaveConfig struct {
	Key      string        `yaml:"key"`
	Debounce time.Duration `yaml:"debounce"`
	Interval time.Duration `yaml:"interval"`
	Codec    string        `yaml:"codec"`
}

type HistoryConfig struct {
	Limit int `yaml:"limit"`
}

type CanvasConfig struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

type TracingConfig struct {
	// JaegerEndpoint is the collector URL. Empty disables tracing.
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
	ServiceName    string `yaml:"service_name"`
}

// Default returns sane defaults: in-memory storage and no tracing.
func Default() *Config {
	return &Config{
		Listen:   ":8080",
		LogLevel: "info",
		Storage: StorageConfig{
			Backend:             BackendMemory,
			SQLitePath:          "badge-editor.db",
			FirestoreCollection: "badge_slots",
			FlushInterval:       5 * time.Second,
		},
		Autosave: AutosaveConfig{
			Key:      autosave.DefaultKey,
			Debounce: autosave.DefaultDebounce,
			Interval: autosave.DefaultInterval,
			Codec:    string(template.FormatJSON),
		},
		History: HistoryConfig{Limit: 50},
		Canvas:  CanvasConfig{Width: editor.DefaultCanvasWidth, Height: editor.DefaultCanvasHeight},
		Tracing: TracingConfig{ServiceName: "badge-editor"},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply. A .env file in the working
// directory is loaded if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overrides fields from BADGE_* environment variables.
func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}

	str("BADGE_LISTEN", &c.Listen)
	str("BADGE_LOG_LEVEL", &c.LogLevel)
	str("BADGE_STORAGE_BACKEND", &c.Storage.Backend)
	str("BADGE_SQLITE_PATH", &c.Storage.SQLitePath)
	str("BADGE_FIRESTORE_PROJECT", &c.Storage.FirestoreProject)
	str("BADGE_FIRESTORE_COLLECTION", &c.Storage.FirestoreCollection)
	dur("BADGE_STORAGE_FLUSH_INTERVAL", &c.Storage.FlushInterval)
	str("BADGE_AUTOSAVE_KEY", &c.Autosave.Key)
	dur("BADGE_AUTOSAVE_DEBOUNCE", &c.Autosave.Debounce)
	dur("BADGE_AUTOSAVE_INTERVAL", &c.Autosave.Interval)
	str("BADGE_AUTOSAVE_CODEC", &c.Autosave.Codec)
	if v := os.Getenv("BADGE_HISTORY_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BADGE_HISTORY_LIMIT: %w", err))
		} else {
			c.History.Limit = n
		}
	}
	num("BADGE_CANVAS_WIDTH", &c.Canvas.Width)
	num("BADGE_CANVAS_HEIGHT", &c.Canvas.Height)
	str("JAEGER_ENDPOINT", &c.Tracing.JaegerEndpoint)

	return errors.Join(errs...)
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	case BackendFirestore:
		if c.Storage.FirestoreProject == "" {
			return fmt.Errorf("storage.firestore_project is required for the firestore backend")
		}
		if c.Storage.FlushInterval <= 0 {
			return fmt.Errorf("storage.flush_interval must be > 0")
		}
	default:
		return fmt.Errorf("unsupported storage.backend %q (use memory, sqlite or firestore)", c.Storage.Backend)
	}
	if c.Autosave.Key == "" {
		return fmt.Errorf("autosave.key is required")
	}
	if c.Autosave.Debounce <= 0 || c.Autosave.Interval <= 0 {
		return fmt.Errorf("autosave.debounce and autosave.interval must be > 0")
	}
	if _, err := template.ParseFormat(c.Autosave.Codec); err != nil {
		return fmt.Errorf("autosave.codec: %w", err)
	}
	if c.History.Limit <= 0 {
		return fmt.Errorf("history.limit must be > 0")
	}
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		return fmt.Errorf("canvas width and height must be > 0")
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

// Format returns the autosave codec format.
func (c *Config) Format() template.Format {
	f, _ := template.ParseFormat(c.Autosave.Codec)
	return f
}
