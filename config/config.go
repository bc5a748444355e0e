package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParse    = errors.New("config file could not be parsed")
	ErrConfigInvalid  = errors.New("invalid configuration")
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Capture   CaptureConfig
	Output    OutputConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Jobs      JobsConfig
	Webhook   WebhookConfig
	Probe     ProbeConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP job API.
type ServerConfig struct {
	Host string // default: "127.0.0.1"
	Port int    // default: 8790
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy routes all browser traffic through this URL.
	Proxy string

	// Stealth injects anti-automation-detection evasions before navigation.
	Stealth bool // default: true

	// ViewportWidth and ViewportHeight size the rendering surface. The
	// document viewer scales each page to fit, so they bound image size.
	ViewportWidth  int // default: 1600
	ViewportHeight int // default: 1200

	// BlockedResourceTypes lists resource types to block. Images and
	// stylesheets are never listed because pages render through them.
	// default: ["Media", "Font"]
	BlockedResourceTypes []string
}

// CaptureConfig controls timing and retries of a conversion.
type CaptureConfig struct {
	// NavigationTimeout bounds a single navigation attempt.
	NavigationTimeout time.Duration // default: 30s

	// NavigationRetries is the number of retries after the first attempt.
	NavigationRetries int // default: 2

	// NavigationBackoff is the first exponential backoff delay.
	NavigationBackoff time.Duration // default: 1s

	// DetectionTimeout is the window for an auth gate to appear or for a
	// submitted credential to produce a visible result.
	DetectionTimeout time.Duration // default: 10s

	// IndicatorTimeout bounds the wait for the "N of M" page indicator.
	IndicatorTimeout time.Duration // default: 15s

	// RenderTimeout bounds the wait for a page to settle before capture.
	RenderTimeout time.Duration // default: 10s

	// PageRetries is the number of retries per page after the first attempt.
	PageRetries int // default: 3

	// PageBackoff is the linear backoff step between page attempts.
	PageBackoff time.Duration // default: 1s

	// MaxPages is the largest page count a document may report.
	MaxPages int // default: 2000

	// JPEGQuality is the re-encode quality used during assembly (1-100).
	JPEGQuality int // default: 85
}

// OutputConfig controls where PDFs and local state are written.
type OutputConfig struct {
	// Dir is the default destination directory.
	Dir string // default: ~/Downloads

	// StateDir holds history.json and used_names.json.
	StateDir string // default: <user config dir>/topdf

	// HistorySize is the number of conversions remembered.
	HistorySize int // default: 10
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false (the API binds to loopback)

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// JobsConfig controls asynchronous conversions run by the API.
type JobsConfig struct {
	// MaxConcurrent bounds conversions running at once; each owns a browser.
	MaxConcurrent int // default: 2

	// MaxEntries is the number of jobs remembered.
	MaxEntries int // default: 256

	// TTL is how long a job is remembered after creation.
	TTL time.Duration // default: 1h

	// CredentialTimeout is how long a paused job waits for credentials.
	CredentialTimeout time.Duration // default: 10m
}

// WebhookConfig controls job completion webhooks.
type WebhookConfig struct {
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration // default: 10s

	// Delays is the wait before each delivery attempt.
	Delays []time.Duration // default: [0s, 1s, 5s, 30s]
}

// ProbeConfig controls the preflight link probe.
type ProbeConfig struct {
	// Enabled toggles the preflight probe.
	Enabled bool // default: true

	// Timeout bounds the probe request.
	Timeout time.Duration // default: 8s
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8790,
			Mode: "release",
		},
		Browser: BrowserConfig{
			Headless:             true,
			Stealth:              true,
			ViewportWidth:        1600,
			ViewportHeight:       1200,
			BlockedResourceTypes: []string{"Media", "Font"},
		},
		Capture: CaptureConfig{
			NavigationTimeout: 30 * time.Second,
			NavigationRetries: 2,
			NavigationBackoff: time.Second,
			DetectionTimeout:  10 * time.Second,
			IndicatorTimeout:  15 * time.Second,
			RenderTimeout:     10 * time.Second,
			PageRetries:       3,
			PageBackoff:       time.Second,
			MaxPages:          2000,
			JPEGQuality:       85,
		},
		Output: OutputConfig{
			Dir:         defaultOutputDir(),
			StateDir:    defaultStateDir(),
			HistorySize: 10,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5.0,
			Burst:             10,
		},
		Jobs: JobsConfig{
			MaxConcurrent:     2,
			MaxEntries:        256,
			TTL:               time.Hour,
			CredentialTimeout: 10 * time.Minute,
		},
		Webhook: WebhookConfig{
			Timeout: 10 * time.Second,
			Delays:  []time.Duration{0, time.Second, 5 * time.Second, 30 * time.Second},
		},
		Probe: ProbeConfig{
			Enabled: true,
			Timeout: 8 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty, or TOPDF_CONFIG is set), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv("TOPDF_CONFIG")
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(c *Config) {
	c.Server.Host = envOr("TOPDF_HOST", c.Server.Host)
	c.Server.Port = envIntOr("TOPDF_PORT", c.Server.Port)
	c.Server.Mode = envOr("TOPDF_MODE", c.Server.Mode)

	c.Browser.Headless = envBoolOr("TOPDF_HEADLESS", c.Browser.Headless)
	c.Browser.NoSandbox = envBoolOr("TOPDF_NO_SANDBOX", c.Browser.NoSandbox)
	c.Browser.BrowserBin = envOr("TOPDF_BROWSER_BIN", c.Browser.BrowserBin)
	c.Browser.Proxy = envOr("TOPDF_PROXY", c.Browser.Proxy)
	c.Browser.Stealth = envBoolOr("TOPDF_STEALTH", c.Browser.Stealth)
	c.Browser.ViewportWidth = envIntOr("TOPDF_VIEWPORT_WIDTH", c.Browser.ViewportWidth)
	c.Browser.ViewportHeight = envIntOr("TOPDF_VIEWPORT_HEIGHT", c.Browser.ViewportHeight)
	c.Browser.BlockedResourceTypes = envSliceOr("TOPDF_BLOCKED_RESOURCES", c.Browser.BlockedResourceTypes)

	c.Capture.NavigationTimeout = envDurationOr("TOPDF_NAV_TIMEOUT", c.Capture.NavigationTimeout)
	c.Capture.NavigationRetries = envIntOr("TOPDF_NAV_RETRIES", c.Capture.NavigationRetries)
	c.Capture.NavigationBackoff = envDurationOr("TOPDF_NAV_BACKOFF", c.Capture.NavigationBackoff)
	c.Capture.DetectionTimeout = envDurationOr("TOPDF_DETECTION_TIMEOUT", c.Capture.DetectionTimeout)
	c.Capture.IndicatorTimeout = envDurationOr("TOPDF_INDICATOR_TIMEOUT", c.Capture.IndicatorTimeout)
	c.Capture.RenderTimeout = envDurationOr("TOPDF_RENDER_TIMEOUT", c.Capture.RenderTimeout)
	c.Capture.PageRetries = envIntOr("TOPDF_PAGE_RETRIES", c.Capture.PageRetries)
	c.Capture.PageBackoff = envDurationOr("TOPDF_PAGE_BACKOFF", c.Capture.PageBackoff)
	c.Capture.MaxPages = envIntOr("TOPDF_MAX_PAGES", c.Capture.MaxPages)
	c.Capture.JPEGQuality = envIntOr("TOPDF_JPEG_QUALITY", c.Capture.JPEGQuality)

	c.Output.Dir = envOr("TOPDF_OUTPUT_DIR", c.Output.Dir)
	c.Output.StateDir = envOr("TOPDF_STATE_DIR", c.Output.StateDir)
	c.Output.HistorySize = envIntOr("TOPDF_HISTORY_SIZE", c.Output.HistorySize)

	c.Auth.Enabled = envBoolOr("TOPDF_AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.APIKeys = envSliceOr("TOPDF_API_KEYS", c.Auth.APIKeys)

	c.RateLimit.RequestsPerSecond = envFloatOr("TOPDF_RATE_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = envIntOr("TOPDF_RATE_BURST", c.RateLimit.Burst)

	c.Jobs.MaxConcurrent = envIntOr("TOPDF_MAX_JOBS", c.Jobs.MaxConcurrent)
	c.Jobs.MaxEntries = envIntOr("TOPDF_JOB_ENTRIES", c.Jobs.MaxEntries)
	c.Jobs.TTL = envDurationOr("TOPDF_JOB_TTL", c.Jobs.TTL)
	c.Jobs.CredentialTimeout = envDurationOr("TOPDF_CREDENTIAL_TIMEOUT", c.Jobs.CredentialTimeout)

	c.Webhook.Timeout = envDurationOr("TOPDF_WEBHOOK_TIMEOUT", c.Webhook.Timeout)
	c.Webhook.Delays = envDurationSliceOr("TOPDF_WEBHOOK_DELAYS", c.Webhook.Delays)

	c.Probe.Enabled = envBoolOr("TOPDF_PROBE", c.Probe.Enabled)
	c.Probe.Timeout = envDurationOr("TOPDF_PROBE_TIMEOUT", c.Probe.Timeout)

	c.Log.Level = envOr("TOPDF_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("TOPDF_LOG_FORMAT", c.Log.Format)
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		errs = append(errs, fmt.Errorf("viewport %dx%d must be positive", c.Browser.ViewportWidth, c.Browser.ViewportHeight))
	}
	if c.Capture.NavigationRetries < 0 || c.Capture.PageRetries < 0 {
		errs = append(errs, errors.New("retry counts must not be negative"))
	}
	if c.Capture.DetectionTimeout <= 0 || c.Capture.IndicatorTimeout <= 0 || c.Capture.RenderTimeout <= 0 {
		errs = append(errs, errors.New("capture timeouts must be positive"))
	}
	if c.Capture.MaxPages < 1 {
		errs = append(errs, fmt.Errorf("max pages %d must be positive", c.Capture.MaxPages))
	}
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg quality %d not in 1-100", c.Capture.JPEGQuality))
	}
	if c.Output.HistorySize < 0 {
		errs = append(errs, errors.New("history size must not be negative"))
	}
	if c.Jobs.MaxConcurrent < 1 {
		errs = append(errs, errors.New("max concurrent jobs must be at least 1"))
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, errors.New("auth enabled but no API keys configured"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, errors.Join(errs...))
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func defaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Downloads")
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return ".topdf"
		}
		return filepath.Join(home, ".topdf")
	}
	return filepath.Join(dir, "topdf")
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}

func envDurationSliceOr(key string, fallback []time.Duration) []time.Duration {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]time.Duration, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				if d, err := time.ParseDuration(trimmed); err == nil {
					result = append(result, d)
				}
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
