package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alimasry/go-badge-editor/template"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("backend = %q, want memory", cfg.Storage.Backend)
	}
	if cfg.Autosave.Debounce != 2*time.Second || cfg.Autosave.Interval != 30*time.Second {
		t.Errorf("autosave timings = %v/%v", cfg.Autosave.Debounce, cfg.Autosave.Interval)
	}
	if cfg.History.Limit != 50 {
		t.Errorf("history limit = %d, want 50", cfg.History.Limit)
	}
	if cfg.Format() != template.FormatJSON {
		t.Errorf("format = %q, want json", cfg.Format())
	}
	if cfg.Tracing.JaegerEndpoint != "" {
		t.Errorf("tracing enabled by default: %q", cfg.Tracing.JaegerEndpoint)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
listen: ":9090"
log_level: debug
storage:
  backend: sqlite
  sqlite_path: /tmp/badges.db
autosave:
  debounce: 500ms
  interval: 1m
  codec: cbor
history:
  limit: 10
canvas:
  width: 300
  height: 450
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Storage.Backend != BackendSQLite || cfg.Storage.SQLitePath != "/tmp/badges.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Autosave.Debounce != 500*time.Millisecond || cfg.Autosave.Interval != time.Minute {
		t.Errorf("autosave = %+v", cfg.Autosave)
	}
	if cfg.Format() != template.FormatCBOR {
		t.Errorf("format = %q", cfg.Format())
	}
	if cfg.History.Limit != 10 || cfg.Canvas.Width != 300 || cfg.Canvas.Height != 450 {
		t.Errorf("history/canvas = %+v %+v", cfg.History, cfg.Canvas)
	}
	if l, _ := cfg.Level(); l != slog.LevelDebug {
		t.Errorf("level = %v", l)
	}
	// Unset keys keep their defaults.
	if cfg.Autosave.Key == "" {
		t.Error("autosave key lost its default")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "listen: \":9090\"\nhistory:\n  limit: 10\n")
	t.Setenv("BADGE_LISTEN", ":7070")
	t.Setenv("BADGE_HISTORY_LIMIT", "25")
	t.Setenv("BADGE_AUTOSAVE_DEBOUNCE", "3s")
	t.Setenv("JAEGER_ENDPOINT", "http://jaeger:14268/api/traces")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":7070" {
		t.Errorf("listen = %q, want :7070", cfg.Listen)
	}
	if cfg.History.Limit != 25 {
		t.Errorf("history limit = %d, want 25", cfg.History.Limit)
	}
	if cfg.Autosave.Debounce != 3*time.Second {
		t.Errorf("debounce = %v", cfg.Autosave.Debounce)
	}
	if cfg.Tracing.JaegerEndpoint != "http://jaeger:14268/api/traces" {
		t.Errorf("jaeger endpoint = %q", cfg.Tracing.JaegerEndpoint)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		env     map[string]string
		wantErr string
	}{
		{"unknown backend", "storage:\n  backend: redis\n", nil, "unsupported storage.backend"},
		{"firestore without project", "storage:\n  backend: firestore\n", nil, "firestore_project"},
		{"bad codec", "autosave:\n  codec: xml\n", nil, "autosave.codec"},
		{"zero history", "history:\n  limit: 0\n", nil, "history.limit"},
		{"negative canvas", "canvas:\n  width: -1\n", nil, "canvas"},
		{"bad level", "log_level: loud\n", nil, "log_level"},
		{"bad env duration", "", map[string]string{"BADGE_AUTOSAVE_INTERVAL": "soon"}, "BADGE_AUTOSAVE_INTERVAL"},
		{"bad yaml", "listen: [", nil, "parse config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeFile(t, tt.file))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
