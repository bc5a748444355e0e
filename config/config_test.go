package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Capture.PageRetries != 3 {
		t.Errorf("PageRetries = %d, want 3", cfg.Capture.PageRetries)
	}
	if cfg.Capture.NavigationBackoff != time.Second {
		t.Errorf("NavigationBackoff = %v, want 1s", cfg.Capture.NavigationBackoff)
	}
	if cfg.Output.HistorySize != 10 {
		t.Errorf("HistorySize = %d, want 10", cfg.Output.HistorySize)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topdf.yaml")
	content := `
browser:
  headless: false
  viewport_width: 1280
capture:
  page_retries: 5
  max_pages: 300
  render_timeout: 4s
output:
  dir: /tmp/pdfs
webhook:
  delays: ["0s", "2s"]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TOPDF_PAGE_RETRIES", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Browser.Headless {
		t.Error("expected headless=false from file")
	}
	if cfg.Browser.ViewportWidth != 1280 {
		t.Errorf("ViewportWidth = %d, want 1280", cfg.Browser.ViewportWidth)
	}
	if cfg.Browser.ViewportHeight != 1200 {
		t.Errorf("ViewportHeight = %d, want default 1200", cfg.Browser.ViewportHeight)
	}
	if cfg.Capture.RenderTimeout != 4*time.Second {
		t.Errorf("RenderTimeout = %v, want 4s", cfg.Capture.RenderTimeout)
	}
	if cfg.Capture.PageRetries != 7 {
		t.Errorf("PageRetries = %d, want env override 7", cfg.Capture.PageRetries)
	}
	if cfg.Capture.MaxPages != 300 {
		t.Errorf("MaxPages = %d, want 300 from file", cfg.Capture.MaxPages)
	}
	if cfg.Output.Dir != "/tmp/pdfs" {
		t.Errorf("Output.Dir = %q", cfg.Output.Dir)
	}
	if len(cfg.Webhook.Delays) != 2 || cfg.Webhook.Delays[1] != 2*time.Second {
		t.Errorf("Webhook.Delays = %v", cfg.Webhook.Delays)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "capture:\n  retries_per_page: 3\n"},
		{"bad duration", "capture:\n  render_timeout: soon\n"},
		{"wrong type", "server:\n  port: eighty\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if !errors.Is(err, ErrConfigParse) {
				t.Errorf("expected ErrConfigParse, got %v", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"jpeg quality", func(c *Config) { c.Capture.JPEGQuality = 0 }},
		{"negative retries", func(c *Config) { c.Capture.PageRetries = -1 }},
		{"zero max pages", func(c *Config) { c.Capture.MaxPages = 0 }},
		{"zero render timeout", func(c *Config) { c.Capture.RenderTimeout = 0 }},
		{"no jobs", func(c *Config) { c.Jobs.MaxConcurrent = 0 }},
		{"auth without keys", func(c *Config) { c.Auth.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrConfigInvalid) {
				t.Errorf("expected ErrConfigInvalid, got %v", err)
			}
		})
	}
}

func TestEnvSliceOr(t *testing.T) {
	t.Setenv("TOPDF_TEST_SLICE", " a, ,b ,c")
	got := envSliceOr("TOPDF_TEST_SLICE", nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("envSliceOr = %v", got)
	}
}
