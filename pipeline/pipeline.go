// Package pipeline turns a document link into a PDF on disk: resolve,
// open, authenticate, capture, assemble, name and write.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/use-agent/topdf/assembler"
	"github.com/use-agent/topdf/auth"
	"github.com/use-agent/topdf/capture"
	"github.com/use-agent/topdf/history"
	"github.com/use-agent/topdf/metrics"
	"github.com/use-agent/topdf/models"
	"github.com/use-agent/topdf/names"
	"github.com/use-agent/topdf/probe"
	"github.com/use-agent/topdf/retry"
	"github.com/use-agent/topdf/target"
)

// Session is a live browser view of one document.
type Session interface {
	capture.Session
	auth.Gate

	// Navigate makes one attempt to load url.
	Navigate(ctx context.Context, url string) error

	// Close releases the session. It must be safe to call more than once.
	Close() error
}

// SessionFactory opens a fresh, isolated session.
type SessionFactory func(ctx context.Context) (Session, error)

// Prober checks a link before a browser is involved.
type Prober interface {
	Probe(ctx context.Context, url string) (*probe.Result, error)
}

// ProgressFunc reports (current, total) pages after each captured page.
type ProgressFunc func(current, total int)

// Request is one conversion.
type Request struct {
	URL      string
	Email    string
	Passcode string

	// OutputName overrides the extracted title. Empty means derive it.
	OutputName string
	// OutputDir overrides the converter's default directory.
	OutputDir string

	Progress ProgressFunc

	// Credentials is asked for anything the gate needs that Email and
	// Passcode do not cover. Nil makes missing credentials fail at once.
	Credentials auth.CredentialFunc
}

// ConversionResult describes the written PDF.
type ConversionResult struct {
	Path      string
	Name      string
	PageCount int
	Title     string
}

// Options wires a Converter.
type Options struct {
	Sessions  SessionFactory
	Capturer  *capture.Capturer
	Assembler *assembler.Assembler

	// NavRetry governs navigation attempts on the opened session.
	NavRetry retry.Policy

	// OutputDir is used when a request names none.
	OutputDir string

	// Optional collaborators; nil disables each.
	Prober       Prober
	Placeholders *names.Placeholders
	History      *history.Store
	Metrics      *metrics.Metrics
}

// Converter runs conversions. One Converter may run many conversions
// concurrently; each conversion is sequential.
type Converter struct {
	opts Options
}

// New creates a Converter.
func New(opts Options) *Converter {
	if opts.Capturer == nil {
		opts.Capturer = capture.New(capture.Config{})
	}
	if opts.Assembler == nil {
		opts.Assembler = assembler.New(assembler.Options{})
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	return &Converter{opts: opts}
}

// Convert runs one conversion. Errors are the typed error of the stage
// that failed, unchanged; the converter only cleans up around them.
func (c *Converter) Convert(ctx context.Context, req Request) (*ConversionResult, error) {
	start := time.Now()
	done := c.opts.Metrics.ConversionStarted()
	defer done()

	res, err := c.convert(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = string(models.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
		slog.Error("conversion failed", "url", req.URL, "error", err, "elapsed", time.Since(start).Round(time.Millisecond))
	} else {
		slog.Info("conversion finished", "url", req.URL, "path", res.Path, "pages", res.PageCount,
			"elapsed", time.Since(start).Round(time.Millisecond))
	}
	c.opts.Metrics.ObserveConversion(outcome, time.Since(start))
	return res, err
}

func (c *Converter) convert(ctx context.Context, req Request) (*ConversionResult, error) {
	// ── 1. Resolve the link ───────────────────────────────────────────
	t, err := target.Parse(req.URL)
	if err != nil {
		return nil, err
	}
	log := slog.With("slug", t.Slug)

	// ── 2. Preflight probe (best effort except for dead links) ────────
	var probeTitle string
	if c.opts.Prober != nil {
		pr, err := c.opts.Prober.Probe(ctx, t.URL)
		switch {
		case errors.Is(err, models.ErrPageLoad):
			return nil, err
		case err != nil:
			log.Warn("probe failed, continuing", "error", err)
		default:
			probeTitle = capture.CleanTitle(pr.Title)
		}
	}

	// ── 3. Open and navigate ──────────────────────────────────────────
	sess, err := c.open(ctx, t.URL)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	// ── 4. Authenticate ───────────────────────────────────────────────
	neg := auth.NewNegotiator(req.Credentials)
	if err := neg.Negotiate(ctx, sess, auth.Credentials{Email: req.Email, Passcode: req.Passcode}); err != nil {
		log.Debug("auth transitions", "states", neg.Transitions())
		return nil, err
	}

	// ── 5. Capture ────────────────────────────────────────────────────
	scraped, err := c.opts.Capturer.Capture(ctx, sess, capture.ProgressFunc(req.Progress))
	if err != nil {
		return nil, err
	}
	c.opts.Metrics.IncPages(scraped.PageCount)
	// The browser is no longer needed; free it before assembly.
	_ = sess.Close()

	// ── 6. Assemble and write ─────────────────────────────────────────
	dir := req.OutputDir
	if dir == "" {
		dir = c.opts.OutputDir
	}

	var placeholder string
	var fallback func() string
	if c.opts.Placeholders != nil {
		fallback = func() string {
			placeholder = c.opts.Placeholders.Next()
			return placeholder
		}
	}
	base := names.Resolve(req.OutputName, []string{scraped.Title, probeTitle}, fallback)

	path, err := c.write(ctx, dir, base, scraped.Images())
	if err != nil {
		if placeholder != "" {
			c.opts.Placeholders.Release(placeholder)
		}
		return nil, err
	}

	result := &ConversionResult{
		Path:      path,
		Name:      strings.TrimSuffix(filepath.Base(path), ".pdf"),
		PageCount: scraped.PageCount,
		Title:     scraped.Title,
	}

	// ── 7. Remember ───────────────────────────────────────────────────
	if c.opts.History != nil {
		if err := c.opts.History.Add(history.Entry{
			Name:      result.Name,
			Path:      path,
			URL:       t.URL,
			PageCount: result.PageCount,
		}); err != nil {
			log.Warn("could not record history", "error", err)
		}
	}

	return result, nil
}

// open creates a session and loads url under the navigation retry policy.
// The session is closed on failure.
func (c *Converter) open(ctx context.Context, url string) (Session, error) {
	sess, err := c.opts.Sessions(ctx)
	if err != nil {
		if _, ok := models.AsConvertError(err); ok {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, interrupted(ctx.Err(), "navigate")
		}
		return nil, models.NewConvertError(models.KindPageLoad, "could not open a browser session", err).
			WithStage("navigate")
	}

	policy := c.opts.NavRetry
	policy.OnRetry = func(n int, err error, wait time.Duration) {
		slog.Warn("navigation failed, retrying", "url", url, "retry", n, "wait", wait, "error", err)
		c.opts.Metrics.IncNavRetry()
	}

	err = policy.Do(ctx, func(ctx context.Context, _ int) error {
		return sess.Navigate(ctx, url)
	})
	if err != nil {
		_ = sess.Close()
		if ctx.Err() != nil {
			return nil, interrupted(ctx.Err(), "navigate")
		}
		return nil, models.NewConvertError(models.KindPageLoad,
			fmt.Sprintf("document did not load after %d attempts", policy.Attempts()), err).
			WithStage("navigate")
	}
	return sess, nil
}

// write assembles into a temp file inside dir and then claims the final
// name, so the destination never holds a partial file.
func (c *Converter) write(ctx context.Context, dir, base string, images [][]byte) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".topdf-*.pdf.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	buildErr := c.opts.Assembler.BuildTo(ctx, tmp, images)
	closeErr := tmp.Close()
	if buildErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		if buildErr != nil {
			return "", buildErr
		}
		return "", fmt.Errorf("write temp file: %w", closeErr)
	}

	// CreateTemp makes the file private; the claimed PDF matches copies.
	if err := os.Chmod(tmpPath, 0o640); err != nil {
		slog.Debug("could not relax temp file mode", "error", err)
	}
	if info, err := os.Stat(tmpPath); err == nil {
		c.opts.Metrics.ObservePDF(info.Size())
	}

	if err := ctx.Err(); err != nil {
		_ = os.Remove(tmpPath)
		return "", interrupted(err, "write")
	}

	path, err := names.Claim(dir, base, tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("claim output name: %w", err)
	}
	return path, nil
}

func interrupted(err error, stage string) *models.ConvertError {
	kind := models.KindCanceled
	if errors.Is(err, context.DeadlineExceeded) {
		kind = models.KindTimeout
	}
	return models.NewConvertError(kind, "conversion interrupted", err).WithStage(stage)
}
