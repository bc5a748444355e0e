//go:build integration

package browser

import (
	"bytes"
	"context"
	"image"
	_ "image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/use-agent/topdf/auth"
	"github.com/use-agent/topdf/capture"
	"github.com/use-agent/topdf/config"
)

const viewerPage = `<!doctype html>
<html><head><title>Fixture Deck | DocSend</title></head>
<body>
<div class="document-viewer">
  <div class="preso-view"><div class="item active"><div class="page-view" id="slide" style="width:400px;height:300px;background:#eee">1</div></div></div>
  <span class="page-label">1 of 3</span>
</div>
<script>
let cur = 1;
document.addEventListener('keydown', e => {
  if (e.key === 'ArrowRight' && cur < 3) cur++;
  if (e.key === 'ArrowLeft' && cur > 1) cur--;
  document.querySelector('.page-label').textContent = cur + ' of 3';
  document.getElementById('slide').textContent = String(cur);
});
</script>
</body></html>`

const gatePage = `<!doctype html>
<html><body>
<form id="f" onsubmit="event.preventDefault(); document.body.innerHTML = '<div class=document-viewer><span class=page-label>1 of 1</span></div>';">
  <input type="email" name="link_auth_form[email]">
  <button type="submit">Continue</button>
</form>
</body></html>`

func launchForTest(t *testing.T) *Browser {
	t.Helper()
	cfg := config.Defaults()
	b, err := Launch(cfg.Browser, Timing{
		NavigationTimeout: 20 * time.Second,
		DetectionTimeout:  3 * time.Second,
		StepTimeout:       2 * time.Second,
	})
	if err != nil {
		t.Skipf("browser unavailable: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func serve(t *testing.T, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestSession_CaptureFixture(t *testing.T) {
	b := launchForTest(t)
	ctx := context.Background()

	s, err := b.NewSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Navigate(ctx, serve(t, viewerPage)); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	need, err := s.DetectGate(ctx)
	if err != nil || need != auth.RequirementNone {
		t.Fatalf("DetectGate = %v, %v", need, err)
	}

	res, err := capture.New(capture.Config{}).Capture(ctx, s, nil)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.PageCount != 3 || len(res.Pages) != 3 {
		t.Fatalf("pages = %d/%d", len(res.Pages), res.PageCount)
	}
	if res.Title != "Fixture Deck" {
		t.Errorf("Title = %q", res.Title)
	}
	if _, _, err := image.Decode(bytes.NewReader(res.Pages[0].Data)); err != nil {
		t.Errorf("page 1 not a PNG: %v", err)
	}
	if b.Active() != 1 {
		t.Errorf("Active = %d", b.Active())
	}
}

func TestSession_EmailGate(t *testing.T) {
	b := launchForTest(t)
	ctx := context.Background()

	s, err := b.NewSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Navigate(ctx, serve(t, gatePage)); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	n := auth.NewNegotiator(nil)
	if err := n.Negotiate(ctx, s, auth.Credentials{Email: "a@b.co"}); err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if n.State() != auth.StateAuthenticated {
		t.Errorf("State = %v", n.State())
	}
}
