// Package capture enumerates the pages of an authenticated document and
// snapshots each one in order.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"log/slog"
	"time"

	"github.com/use-agent/topdf/models"
	"github.com/use-agent/topdf/retry"
	"github.com/use-agent/topdf/simhash"
)

const stage = "capture"

// Session is the view of a live document the capturer needs. Methods are
// called from a single goroutine.
type Session interface {
	// PageIndicator returns the raw text of the pagination label, or ""
	// when it is not rendered yet.
	PageIndicator(ctx context.Context) (string, error)

	// GoToPage brings page n (1-based) into view.
	GoToPage(ctx context.Context, n int) error

	// WaitStable blocks until the current page has finished rendering.
	WaitStable(ctx context.Context) error

	// Screenshot returns an encoded raster of the current page.
	Screenshot(ctx context.Context) ([]byte, error)

	// Title returns the document title, best effort.
	Title(ctx context.Context) (string, error)
}

// CapturedPage is one snapshot, owned by the run that produced it.
type CapturedPage struct {
	Index  int // 1-based
	Data   []byte
	Width  int
	Height int
}

// ScrapeResult holds every page in order. len(Pages) == PageCount.
type ScrapeResult struct {
	Pages     []CapturedPage
	PageCount int
	Title     string
}

// Images returns the encoded page data in page order.
func (r *ScrapeResult) Images() [][]byte {
	out := make([][]byte, len(r.Pages))
	for i, p := range r.Pages {
		out[i] = p.Data
	}
	return out
}

// ProgressFunc is called after each accepted page with (current, total).
type ProgressFunc func(current, total int)

// Config controls timing and retries.
type Config struct {
	// IndicatorTimeout bounds the search for the pagination label.
	IndicatorTimeout time.Duration
	// IndicatorPoll is the interval between label reads.
	IndicatorPoll time.Duration
	// RenderTimeout bounds WaitStable for each attempt.
	RenderTimeout time.Duration
	// PageRetry governs retries of a single page.
	PageRetry retry.Policy
	// SimilarityThreshold is the largest fingerprint distance at which two
	// consecutive frames count as the same picture.
	SimilarityThreshold int
	// MaxPages rejects documents whose indicator claims more pages.
	MaxPages int
	// OnPageRetry observes retried page attempts.
	OnPageRetry func(page int, err error)
}

// DefaultMaxPages bounds the page count read from the remote indicator.
const DefaultMaxPages = 2000

var (
	errEmptyFrame = errors.New("empty frame")
	errStaleFrame = errors.New("frame identical to previous page")
)

// Capturer snapshots documents one page at a time.
type Capturer struct {
	cfg Config
}

// New creates a Capturer, filling unset timings with defaults.
func New(cfg Config) *Capturer {
	if cfg.IndicatorTimeout <= 0 {
		cfg.IndicatorTimeout = 15 * time.Second
	}
	if cfg.IndicatorPoll <= 0 {
		cfg.IndicatorPoll = 250 * time.Millisecond
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 10 * time.Second
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	return &Capturer{cfg: cfg}
}

// PageCount polls the pagination label until it parses or the indicator
// timeout elapses.
func (c *Capturer) PageCount(ctx context.Context, s Session) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.IndicatorTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.IndicatorPoll)
	defer ticker.Stop()

	var last string
	for {
		text, err := s.PageIndicator(ctx)
		if err == nil {
			last = text
			if _, total, ok := ParseIndicator(text); ok {
				if total > c.cfg.MaxPages {
					return 0, models.NewConvertError(models.KindScraping,
						fmt.Sprintf("document reports %d pages, more than the limit of %d", total, c.cfg.MaxPages),
						nil).WithStage(stage)
				}
				return total, nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return 0, canceled(ctx.Err())
			}
			return 0, models.NewConvertError(models.KindScraping,
				fmt.Sprintf("page indicator not found within %s (last read %q)", c.cfg.IndicatorTimeout, last),
				err).WithStage(stage)
		case <-ticker.C:
		}
	}
}

// Capture determines the page count and snapshots pages 1..M strictly in
// order. Any page that exhausts its retries aborts the run; no partial
// result is returned.
func (c *Capturer) Capture(ctx context.Context, s Session, progress ProgressFunc) (*ScrapeResult, error) {
	total, err := c.PageCount(ctx, s)
	if err != nil {
		return nil, err
	}
	slog.Info("page count detected", "pages", total)

	title := ""
	if t, err := s.Title(ctx); err == nil {
		title = CleanTitle(t)
	}

	var (
		pages   []CapturedPage
		prevSig uint64
	)

	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, canceled(err)
		}

		page, sig, err := c.capturePage(ctx, s, i, prevSig)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, canceled(ctxErr)
			}
			return nil, models.NewConvertError(models.KindScreenshot,
				fmt.Sprintf("capture failed after %d attempts", c.cfg.PageRetry.Attempts()), err).
				WithStage(stage).WithPage(i)
		}

		pages = append(pages, page)
		prevSig = sig
		slog.Debug("page captured", "page", i, "total", total, "width", page.Width, "height", page.Height)

		if progress != nil {
			progress(i, total)
		}
	}

	return &ScrapeResult{Pages: pages, PageCount: total, Title: title}, nil
}

func (c *Capturer) capturePage(ctx context.Context, s Session, i int, prevSig uint64) (CapturedPage, uint64, error) {
	var (
		page CapturedPage
		sig  uint64
		// rerendered is set once a frame matching the previous page has
		// been thrown away and the page rendered again.
		rerendered bool
	)

	policy := c.cfg.PageRetry
	policy.OnRetry = func(n int, err error, wait time.Duration) {
		slog.Warn("page capture failed, retrying", "page", i, "retry", n, "wait", wait, "error", err)
		if c.cfg.OnPageRetry != nil {
			c.cfg.OnPageRetry(i, err)
		}
	}

	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		// ── 1. Bring the page into view ───────────────────────────────
		if err := s.GoToPage(ctx, i); err != nil {
			return fmt.Errorf("go to page: %w", err)
		}

		// ── 2. Distinct render wait and snapshot ──────────────────────
		data, img, err := c.snapshot(ctx, s)
		if err != nil {
			return err
		}

		// ── 3. Stale-frame guard ──────────────────────────────────────
		// The indicator can advance before the canvas repaints, so a
		// frame equal to the previous page is never taken on first sight.
		cur := simhash.Image(img)
		if i > 1 && simhash.Similar(cur, prevSig, c.cfg.SimilarityThreshold) {
			if !rerendered {
				rerendered = true
				if attempt < policy.Attempts() {
					return errStaleFrame
				}
				// Last attempt: render once more in place.
				data, img, err = c.snapshot(ctx, s)
				if err != nil {
					return err
				}
				cur = simhash.Image(img)
			}
			if simhash.Similar(cur, prevSig, c.cfg.SimilarityThreshold) {
				text, _ := s.PageIndicator(ctx)
				if n, _, ok := ParseIndicator(text); !ok || n != i {
					return errStaleFrame
				}
				slog.Debug("identical consecutive frames accepted after re-render", "page", i)
			}
		}

		b := img.Bounds()
		page = CapturedPage{Index: i, Data: data, Width: b.Dx(), Height: b.Dy()}
		sig = cur
		return nil
	})
	return page, sig, err
}

// snapshot waits for the page to settle and returns a decoded, non-empty
// screenshot.
func (c *Capturer) snapshot(ctx context.Context, s Session) ([]byte, image.Image, error) {
	rctx, cancel := context.WithTimeout(ctx, c.cfg.RenderTimeout)
	err := s.WaitStable(rctx)
	cancel()
	if err != nil {
		return nil, nil, fmt.Errorf("wait for render: %w", err)
	}

	data, err := s.Screenshot(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("screenshot: %w", err)
	}
	if len(data) == 0 {
		return nil, nil, errEmptyFrame
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("corrupt frame: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, nil, errEmptyFrame
	}
	return data, img, nil
}

func canceled(err error) *models.ConvertError {
	kind := models.KindCanceled
	if errors.Is(err, context.DeadlineExceeded) {
		kind = models.KindTimeout
	}
	return models.NewConvertError(kind, "capture interrupted", err).WithStage(stage)
}
