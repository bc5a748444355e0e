// Package browser is the go-rod backend of the converter. It owns the
// Chrome process and hands out isolated sessions that implement both
// capture.Session and auth.Gate.
package browser

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/use-agent/topdf/config"
	"github.com/use-agent/topdf/models"
)

// Browser manages the Chrome lifecycle. Every session runs in its own
// incognito context, so cookies and auth state never leak between
// conversions. It is safe for concurrent use.
type Browser struct {
	browser   *rod.Browser
	cfg       config.BrowserConfig
	timing    Timing
	active    atomic.Int32
	startTime time.Time
}

// Timing bounds the waits a session performs on its own.
type Timing struct {
	// NavigationTimeout bounds one navigation attempt.
	NavigationTimeout time.Duration
	// DetectionTimeout bounds gate detection and submission outcomes.
	DetectionTimeout time.Duration
	// StepTimeout bounds the indicator change after one page turn.
	StepTimeout time.Duration
}

// TimingFrom derives session timing from the capture configuration.
func TimingFrom(c config.CaptureConfig) Timing {
	return Timing{
		NavigationTimeout: c.NavigationTimeout,
		DetectionTimeout:  c.DetectionTimeout,
		StepTimeout:       3 * time.Second,
	}
}

// Launch starts Chrome with stealth flags and connects to it.
func Launch(cfg config.BrowserConfig, timing Timing) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("hide-scrollbars"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewConvertError(models.KindPageLoad, "failed to launch browser", err).
			WithStage("browser")
	}
	slog.Info("browser launched", "controlURL", controlURL, "headless", cfg.Headless)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, models.NewConvertError(models.KindPageLoad, "failed to connect to browser", err).
			WithStage("browser")
	}

	if timing.NavigationTimeout <= 0 {
		timing.NavigationTimeout = 30 * time.Second
	}
	if timing.DetectionTimeout <= 0 {
		timing.DetectionTimeout = 10 * time.Second
	}
	if timing.StepTimeout <= 0 {
		timing.StepTimeout = 3 * time.Second
	}

	return &Browser{browser: b, cfg: cfg, timing: timing, startTime: time.Now()}, nil
}

// Active is the number of open sessions.
func (b *Browser) Active() int {
	return int(b.active.Load())
}

// NewSession opens a blank tab in a fresh incognito context with stealth,
// viewport, headers and request blocking installed. Navigation is left to
// the caller so it can be retried on the same session.
func (b *Browser) NewSession(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, models.NewConvertError(models.KindPageLoad, "failed to create browser context", err).
			WithStage("browser")
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, models.NewConvertError(models.KindPageLoad, "failed to open tab", err).
			WithStage("browser")
	}

	// ── 1. Stealth injection (before any navigation) ──────────────────
	if b.cfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	// ── 2. Viewport ───────────────────────────────────────────────────
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.cfg.ViewportWidth,
		Height:            b.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		slog.Warn("could not set viewport", "error", err)
	}

	// ── 3. Extra headers ──────────────────────────────────────────────
	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{"Accept-Language": "en-US,en;q=0.9"}),
	}.Call(page)

	// ── 4. Request blocking ───────────────────────────────────────────
	router := setupHijack(page, b.cfg.BlockedResourceTypes)

	b.active.Add(1)
	s := &Session{
		owner:     b,
		incognito: incognito,
		page:      page,
		router:    router,
		timing:    b.timing,
	}
	return s, nil
}

// Close kills the browser process.
func (b *Browser) Close() {
	slog.Info("browser shutting down", "uptime", time.Since(b.startTime).Round(time.Second))
	if err := b.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
}
