package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/use-agent/topdf/capture"
)

// Session is one tab on one document. Methods are called from a single
// goroutine, except Close which may race with them on cancellation.
type Session struct {
	owner     *Browser
	incognito *rod.Browser
	page      *rod.Page
	router    *rod.HijackRouter
	timing    Timing

	closeOnce sync.Once
}

// Navigate loads url and waits for the DOM to settle. One call is one
// attempt; retrying is the caller's decision.
func (s *Session) Navigate(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timing.NavigationTimeout)
	defer cancel()

	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge after navigation", "error", err)
	}

	status := evalIntOrZero(p, jsNavigationStatus)
	if status >= 400 {
		return fmt.Errorf("navigate: HTTP %d", status)
	}
	return nil
}

// PageIndicator returns the pagination label text or "".
func (s *Session) PageIndicator(ctx context.Context) (string, error) {
	res, err := s.page.Context(ctx).Eval(jsPageIndicator)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// GoToPage turns pages with the arrow keys until the indicator reads n.
// When a key press does not move the indicator, the viewer's next/previous
// control is clicked instead.
func (s *Session) GoToPage(ctx context.Context, n int) error {
	p := s.page.Context(ctx)

	cur, total, err := s.currentPage(ctx)
	if err != nil {
		return err
	}
	if n < 1 || n > total {
		return fmt.Errorf("page %d out of range 1-%d", n, total)
	}

	for steps := 0; cur != n; steps++ {
		if steps > total+2 {
			return fmt.Errorf("indicator stuck at %d while seeking page %d", cur, n)
		}

		key, button := input.ArrowRight, jsClickNext
		if n < cur {
			key, button = input.ArrowLeft, jsClickPrev
		}

		if err := p.Keyboard.Press(key); err != nil {
			return fmt.Errorf("press arrow key: %w", err)
		}
		next, moved := s.waitIndicatorChange(ctx, cur)
		if !moved {
			if _, err := p.Eval(button); err != nil {
				return fmt.Errorf("click pager: %w", err)
			}
			next, moved = s.waitIndicatorChange(ctx, cur)
		}
		if !moved {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("indicator did not leave page %d", cur)
		}
		cur = next
	}
	return nil
}

func (s *Session) currentPage(ctx context.Context) (int, int, error) {
	text, err := s.PageIndicator(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("read indicator: %w", err)
	}
	cur, total, ok := capture.ParseIndicator(text)
	if !ok {
		return 0, 0, fmt.Errorf("unreadable indicator %q", text)
	}
	return cur, total, nil
}

// waitIndicatorChange polls until the indicator reports a page other than
// from, bounded by the step timeout.
func (s *Session) waitIndicatorChange(ctx context.Context, from int) (int, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.timing.StepTimeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if cur, _, err := s.currentPage(ctx); err == nil && cur != from {
			return cur, true
		}
		select {
		case <-ctx.Done():
			return from, false
		case <-ticker.C:
		}
	}
}

// WaitStable blocks until the DOM settles and every image on the current
// slide has decoded.
func (s *Session) WaitStable(ctx context.Context) error {
	p := s.page.Context(ctx)
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		return err
	}
	return p.Wait(rod.Eval(jsImagesLoaded))
}

// Screenshot captures the visible slide as PNG. The slide element is
// preferred; the whole viewport is the fallback.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	p := s.page.Context(ctx)

	for _, sel := range slideSelectors {
		has, el, err := p.Has(sel)
		if err != nil || !has {
			continue
		}
		if visible, vErr := el.Visible(); vErr != nil || !visible {
			continue
		}
		data, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
		if err == nil && len(data) > 0 {
			return data, nil
		}
	}

	return p.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Title returns document.title.
func (s *Session) Title(ctx context.Context) (string, error) {
	res, err := s.page.Context(ctx).Eval(`() => document.title`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// HTML returns the rendered markup.
func (s *Session) HTML(ctx context.Context) (string, error) {
	return s.page.Context(ctx).HTML()
}

// Close blanks the tab, stops request blocking and disposes the incognito
// context. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		// The original page reference carries no request context, so cleanup
		// succeeds even after the conversion's context has ended.
		if navErr := s.page.Navigate("about:blank"); navErr != nil {
			slog.Debug("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		if s.router != nil {
			_ = s.router.Stop()
		}
		if closeErr := s.page.Close(); closeErr != nil {
			slog.Debug("cleanup: failed to close tab", "error", closeErr)
		}
		err = s.incognito.Close()
		s.owner.active.Add(-1)
	})
	return err
}

func evalIntOrZero(p *rod.Page, js string) int {
	res, err := p.Eval(js)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
