package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// maxFileSize caps the config file read into memory.
const maxFileSize = 1 << 20

// fileConfig mirrors Config for YAML input. Pointer fields distinguish
// "absent" from a zero value so only keys present in the file override
// defaults. Durations are strings in time.ParseDuration syntax.
type fileConfig struct {
	Server struct {
		Host *string `yaml:"host"`
		Port *int    `yaml:"port"`
		Mode *string `yaml:"mode"`
	} `yaml:"server"`
	Browser struct {
		Headless             *bool    `yaml:"headless"`
		NoSandbox            *bool    `yaml:"no_sandbox"`
		BrowserBin           *string  `yaml:"browser_bin"`
		Proxy                *string  `yaml:"proxy"`
		Stealth              *bool    `yaml:"stealth"`
		ViewportWidth        *int     `yaml:"viewport_width"`
		ViewportHeight       *int     `yaml:"viewport_height"`
		BlockedResourceTypes []string `yaml:"blocked_resource_types"`
	} `yaml:"browser"`
	Capture struct {
		NavigationTimeout *string `yaml:"navigation_timeout"`
		NavigationRetries *int    `yaml:"navigation_retries"`
		NavigationBackoff *string `yaml:"navigation_backoff"`
		DetectionTimeout  *string `yaml:"detection_timeout"`
		IndicatorTimeout  *string `yaml:"indicator_timeout"`
		RenderTimeout     *string `yaml:"render_timeout"`
		PageRetries       *int    `yaml:"page_retries"`
		PageBackoff       *string `yaml:"page_backoff"`
		MaxPages          *int    `yaml:"max_pages"`
		JPEGQuality       *int    `yaml:"jpeg_quality"`
	} `yaml:"capture"`
	Output struct {
		Dir         *string `yaml:"dir"`
		StateDir    *string `yaml:"state_dir"`
		HistorySize *int    `yaml:"history_size"`
	} `yaml:"output"`
	Auth struct {
		Enabled *bool    `yaml:"enabled"`
		APIKeys []string `yaml:"api_keys"`
	} `yaml:"auth"`
	RateLimit struct {
		RequestsPerSecond *float64 `yaml:"requests_per_second"`
		Burst             *int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	Jobs struct {
		MaxConcurrent     *int    `yaml:"max_concurrent"`
		MaxEntries        *int    `yaml:"max_entries"`
		TTL               *string `yaml:"ttl"`
		CredentialTimeout *string `yaml:"credential_timeout"`
	} `yaml:"jobs"`
	Webhook struct {
		Timeout *string  `yaml:"timeout"`
		Delays  []string `yaml:"delays"`
	} `yaml:"webhook"`
	Probe struct {
		Enabled *bool   `yaml:"enabled"`
		Timeout *string `yaml:"timeout"`
	} `yaml:"probe"`
	Log struct {
		Level  *string `yaml:"level"`
		Format *string `yaml:"format"`
	} `yaml:"log"`
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is operator supplied
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return overlayYAML(data, cfg)
}

// overlayYAML applies the keys present in data on top of cfg. Unknown keys
// are rejected so typos surface instead of silently doing nothing.
func overlayYAML(data []byte, cfg *Config) error {
	if len(data) > maxFileSize {
		return fmt.Errorf("%w: file exceeds %d bytes", ErrConfigParse, maxFileSize)
	}
	var fc fileConfig
	if err := yaml.UnmarshalWithOptions(data, &fc, yaml.Strict()); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigParse, err)
	}

	d := durationSetter{}

	setStr(&cfg.Server.Host, fc.Server.Host)
	setInt(&cfg.Server.Port, fc.Server.Port)
	setStr(&cfg.Server.Mode, fc.Server.Mode)

	setBool(&cfg.Browser.Headless, fc.Browser.Headless)
	setBool(&cfg.Browser.NoSandbox, fc.Browser.NoSandbox)
	setStr(&cfg.Browser.BrowserBin, fc.Browser.BrowserBin)
	setStr(&cfg.Browser.Proxy, fc.Browser.Proxy)
	setBool(&cfg.Browser.Stealth, fc.Browser.Stealth)
	setInt(&cfg.Browser.ViewportWidth, fc.Browser.ViewportWidth)
	setInt(&cfg.Browser.ViewportHeight, fc.Browser.ViewportHeight)
	if fc.Browser.BlockedResourceTypes != nil {
		cfg.Browser.BlockedResourceTypes = fc.Browser.BlockedResourceTypes
	}

	d.set(&cfg.Capture.NavigationTimeout, fc.Capture.NavigationTimeout, "capture.navigation_timeout")
	setInt(&cfg.Capture.NavigationRetries, fc.Capture.NavigationRetries)
	d.set(&cfg.Capture.NavigationBackoff, fc.Capture.NavigationBackoff, "capture.navigation_backoff")
	d.set(&cfg.Capture.DetectionTimeout, fc.Capture.DetectionTimeout, "capture.detection_timeout")
	d.set(&cfg.Capture.IndicatorTimeout, fc.Capture.IndicatorTimeout, "capture.indicator_timeout")
	d.set(&cfg.Capture.RenderTimeout, fc.Capture.RenderTimeout, "capture.render_timeout")
	setInt(&cfg.Capture.PageRetries, fc.Capture.PageRetries)
	d.set(&cfg.Capture.PageBackoff, fc.Capture.PageBackoff, "capture.page_backoff")
	setInt(&cfg.Capture.MaxPages, fc.Capture.MaxPages)
	setInt(&cfg.Capture.JPEGQuality, fc.Capture.JPEGQuality)

	setStr(&cfg.Output.Dir, fc.Output.Dir)
	setStr(&cfg.Output.StateDir, fc.Output.StateDir)
	setInt(&cfg.Output.HistorySize, fc.Output.HistorySize)

	setBool(&cfg.Auth.Enabled, fc.Auth.Enabled)
	if fc.Auth.APIKeys != nil {
		cfg.Auth.APIKeys = fc.Auth.APIKeys
	}

	if fc.RateLimit.RequestsPerSecond != nil {
		cfg.RateLimit.RequestsPerSecond = *fc.RateLimit.RequestsPerSecond
	}
	setInt(&cfg.RateLimit.Burst, fc.RateLimit.Burst)

	setInt(&cfg.Jobs.MaxConcurrent, fc.Jobs.MaxConcurrent)
	setInt(&cfg.Jobs.MaxEntries, fc.Jobs.MaxEntries)
	d.set(&cfg.Jobs.TTL, fc.Jobs.TTL, "jobs.ttl")
	d.set(&cfg.Jobs.CredentialTimeout, fc.Jobs.CredentialTimeout, "jobs.credential_timeout")

	d.set(&cfg.Webhook.Timeout, fc.Webhook.Timeout, "webhook.timeout")
	if fc.Webhook.Delays != nil {
		delays := make([]time.Duration, 0, len(fc.Webhook.Delays))
		for _, s := range fc.Webhook.Delays {
			v, err := time.ParseDuration(s)
			if err != nil {
				d.errs = append(d.errs, fmt.Errorf("webhook.delays: %w", err))
				continue
			}
			delays = append(delays, v)
		}
		cfg.Webhook.Delays = delays
	}

	setBool(&cfg.Probe.Enabled, fc.Probe.Enabled)
	d.set(&cfg.Probe.Timeout, fc.Probe.Timeout, "probe.timeout")

	setStr(&cfg.Log.Level, fc.Log.Level)
	setStr(&cfg.Log.Format, fc.Log.Format)

	if len(d.errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfigParse, errors.Join(d.errs...))
	}
	return nil
}

type durationSetter struct {
	errs []error
}

func (d *durationSetter) set(dst *time.Duration, src *string, key string) {
	if src == nil {
		return
	}
	v, err := time.ParseDuration(*src)
	if err != nil {
		d.errs = append(d.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = v
}

func setStr(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
