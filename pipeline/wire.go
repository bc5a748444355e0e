package pipeline

import (
	"path/filepath"

	"github.com/use-agent/topdf/assembler"
	"github.com/use-agent/topdf/capture"
	"github.com/use-agent/topdf/config"
	"github.com/use-agent/topdf/history"
	"github.com/use-agent/topdf/metrics"
	"github.com/use-agent/topdf/names"
	"github.com/use-agent/topdf/probe"
	"github.com/use-agent/topdf/retry"
)

// State file names under Output.StateDir.
const (
	HistoryFile   = "history.json"
	UsedNamesFile = "used_names.json"
)

// FromConfig builds a Converter with every collaborator the configuration
// enables. m may be nil.
func FromConfig(cfg *config.Config, sessions SessionFactory, m *metrics.Metrics) *Converter {
	capturer := capture.New(capture.Config{
		IndicatorTimeout: cfg.Capture.IndicatorTimeout,
		RenderTimeout:    cfg.Capture.RenderTimeout,
		PageRetry:        retry.NewLinear(cfg.Capture.PageRetries, cfg.Capture.PageBackoff),
		MaxPages:         cfg.Capture.MaxPages,
		OnPageRetry: func(int, error) {
			m.IncPageRetry()
		},
	})

	opts := Options{
		Sessions:  sessions,
		Capturer:  capturer,
		Assembler: assembler.New(assembler.Options{JPEGQuality: cfg.Capture.JPEGQuality}),
		NavRetry:  retry.NewExponential(cfg.Capture.NavigationRetries, cfg.Capture.NavigationBackoff),
		OutputDir: cfg.Output.Dir,
		Metrics:   m,
	}

	if cfg.Probe.Enabled {
		opts.Prober = probe.New(probe.Options{Timeout: cfg.Probe.Timeout, Proxy: cfg.Browser.Proxy})
	}
	if cfg.Output.StateDir != "" {
		opts.Placeholders = names.NewPlaceholders(filepath.Join(cfg.Output.StateDir, UsedNamesFile), nil)
		if cfg.Output.HistorySize > 0 {
			opts.History = history.Open(filepath.Join(cfg.Output.StateDir, HistoryFile), cfg.Output.HistorySize)
		}
	}
	return New(opts)
}

// History returns the store the converter records into, or nil.
func (c *Converter) History() *history.Store {
	return c.opts.History
}
