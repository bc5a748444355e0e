package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/use-agent/topdf/auth"
	"github.com/use-agent/topdf/capture"
	"github.com/use-agent/topdf/history"
	"github.com/use-agent/topdf/models"
	"github.com/use-agent/topdf/names"
	"github.com/use-agent/topdf/probe"
	"github.com/use-agent/topdf/retry"
)

const testURL = "https://docsend.com/view/abc123"

func frame(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			// A per-page gradient keeps consecutive frames distinct.
			img.Set(x, y, color.RGBA{shade, uint8(x * 6), uint8(y * 8), 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fakeSession is a scripted document behind an optional gate.
type fakeSession struct {
	mu sync.Mutex

	frames  [][]byte
	current int
	title   string

	need     auth.Requirement
	outcomes []auth.Outcome

	navFailures  int
	shotFailures map[int]int

	navCalls  int
	submitted []auth.Credentials
	closed    int
}

func newFakeSession(t *testing.T, pages int) *fakeSession {
	frames := make([][]byte, pages)
	for i := range frames {
		frames[i] = frame(t, uint8(30*(i+1)))
	}
	return &fakeSession{frames: frames, current: 1, shotFailures: map[int]int{}}
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	f.navCalls++
	if f.navFailures > 0 {
		f.navFailures--
		return errors.New("net::ERR_CONNECTION_RESET")
	}
	return nil
}

func (f *fakeSession) PageIndicator(ctx context.Context) (string, error) {
	return fmt.Sprintf("%d of %d", f.current, len(f.frames)), nil
}

func (f *fakeSession) GoToPage(ctx context.Context, n int) error {
	f.current = n
	return nil
}

func (f *fakeSession) WaitStable(ctx context.Context) error { return nil }

func (f *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	if f.shotFailures[f.current] > 0 {
		f.shotFailures[f.current]--
		return nil, errors.New("target detached")
	}
	return f.frames[f.current-1], nil
}

func (f *fakeSession) Title(ctx context.Context) (string, error) { return f.title, nil }

func (f *fakeSession) DetectGate(ctx context.Context) (auth.Requirement, error) {
	return f.need, nil
}

func (f *fakeSession) Submit(ctx context.Context, need auth.Requirement, creds auth.Credentials) (auth.Outcome, error) {
	f.submitted = append(f.submitted, creds)
	o := f.outcomes[0]
	f.outcomes = f.outcomes[1:]
	return o, nil
}

func (f *fakeSession) DismissConsent(ctx context.Context) error { return nil }

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func factoryFor(s *fakeSession, opened *int) SessionFactory {
	return func(ctx context.Context) (Session, error) {
		if opened != nil {
			*opened++
		}
		return s, nil
	}
}

func noSleep(p retry.Policy) retry.Policy {
	p.Sleep = retry.NoSleep
	return p
}

func newTestConverter(t *testing.T, s *fakeSession, opened *int) (*Converter, string) {
	t.Helper()
	dir := t.TempDir()
	c := New(Options{
		Sessions: factoryFor(s, opened),
		Capturer: capture.New(capture.Config{
			IndicatorTimeout: 50 * time.Millisecond,
			IndicatorPoll:    5 * time.Millisecond,
			RenderTimeout:    time.Second,
			PageRetry:        noSleep(retry.NewLinear(3, time.Second)),
		}),
		NavRetry:     noSleep(retry.NewExponential(2, time.Second)),
		OutputDir:    dir,
		Placeholders: names.NewPlaceholders("", rand.New(rand.NewPCG(1, 1))),
	})
	return c, dir
}

func pdfPages(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	n, err := pdfapi.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		t.Fatalf("not a valid PDF: %v", err)
	}
	return n
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestConvert_PublicDocument(t *testing.T) {
	s := newFakeSession(t, 5)
	s.title = "Series A Deck | DocSend"
	c, dir := newTestConverter(t, s, nil)

	res, err := c.Convert(context.Background(), Request{URL: testURL})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.PageCount != 5 {
		t.Errorf("PageCount = %d, want 5", res.PageCount)
	}
	if res.Path != filepath.Join(dir, "Series A Deck.pdf") {
		t.Errorf("Path = %q", res.Path)
	}
	if res.Name != "Series A Deck" {
		t.Errorf("Name = %q", res.Name)
	}
	if n := pdfPages(t, res.Path); n != 5 {
		t.Errorf("PDF pages = %d, want 5", n)
	}
	if s.closed == 0 {
		t.Error("session not closed")
	}
	if got := dirEntries(t, dir); len(got) != 1 {
		t.Errorf("output dir = %v, want only the PDF", got)
	}
}

func TestConvert_EmailGate(t *testing.T) {
	s := newFakeSession(t, 3)
	s.need = auth.RequirementEmail
	s.outcomes = []auth.Outcome{auth.OutcomeAccepted}
	c, _ := newTestConverter(t, s, nil)

	res, err := c.Convert(context.Background(), Request{URL: testURL, Email: "a@b.co"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.PageCount != 3 || pdfPages(t, res.Path) != 3 {
		t.Errorf("pages = %d", res.PageCount)
	}
	if len(s.submitted) != 1 || s.submitted[0].Email != "a@b.co" {
		t.Errorf("submitted = %v", s.submitted)
	}
}

func TestConvert_EmailPromptedThroughCallback(t *testing.T) {
	s := newFakeSession(t, 2)
	s.need = auth.RequirementEmail
	s.outcomes = []auth.Outcome{auth.OutcomeAccepted}
	c, _ := newTestConverter(t, s, nil)

	var asked []auth.Requirement
	_, err := c.Convert(context.Background(), Request{
		URL: testURL,
		Credentials: func(ctx context.Context, need auth.Requirement) (auth.Credentials, error) {
			asked = append(asked, need)
			return auth.Credentials{Email: "p@q.co"}, nil
		},
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(asked) != 1 || asked[0] != auth.RequirementEmail {
		t.Errorf("asked = %v", asked)
	}
}

func TestConvert_WrongPasscode(t *testing.T) {
	s := newFakeSession(t, 3)
	s.need = auth.RequirementEmailAndPasscode
	s.outcomes = []auth.Outcome{auth.OutcomeRejected}
	c, dir := newTestConverter(t, s, nil)

	_, err := c.Convert(context.Background(), Request{URL: testURL, Email: "a@b.co", Passcode: "nope"})
	if !errors.Is(err, models.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want invalid credentials", err)
	}
	if !errors.Is(err, models.ErrAuthentication) {
		t.Error("invalid credentials should be an authentication failure")
	}
	if got := dirEntries(t, dir); len(got) != 0 {
		t.Errorf("output dir = %v, want empty", got)
	}
	if s.closed == 0 {
		t.Error("session not closed after failure")
	}
}

func TestConvert_TransientPageFailure(t *testing.T) {
	s := newFakeSession(t, 10)
	s.shotFailures[3] = 2
	c, _ := newTestConverter(t, s, nil)

	var last [2]int
	res, err := c.Convert(context.Background(), Request{
		URL:      testURL,
		Progress: func(cur, total int) { last = [2]int{cur, total} },
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if n := pdfPages(t, res.Path); n != 10 {
		t.Errorf("PDF pages = %d, want 10", n)
	}
	if last != [2]int{10, 10} {
		t.Errorf("last progress = %v, want (10,10)", last)
	}
}

func TestConvert_PermanentPageFailure(t *testing.T) {
	s := newFakeSession(t, 4)
	s.shotFailures[2] = 99
	c, dir := newTestConverter(t, s, nil)

	_, err := c.Convert(context.Background(), Request{URL: testURL})
	if !errors.Is(err, models.ErrScreenshot) {
		t.Fatalf("err = %v, want screenshot failure", err)
	}
	if ce, ok := models.AsConvertError(err); !ok || ce.Page != 2 {
		t.Errorf("error should name page 2: %v", err)
	}
	if got := dirEntries(t, dir); len(got) != 0 {
		t.Errorf("output dir = %v, want empty", got)
	}
}

func TestConvert_SameNameTwice(t *testing.T) {
	s := newFakeSession(t, 2)
	s.title = "Deck"
	c, dir := newTestConverter(t, s, nil)

	first, err := c.Convert(context.Background(), Request{URL: testURL})
	if err != nil {
		t.Fatal(err)
	}
	s.current = 1
	second, err := c.Convert(context.Background(), Request{URL: testURL})
	if err != nil {
		t.Fatal(err)
	}
	if first.Path != filepath.Join(dir, "Deck.pdf") {
		t.Errorf("first = %q", first.Path)
	}
	if second.Path != filepath.Join(dir, "Deck (1).pdf") {
		t.Errorf("second = %q", second.Path)
	}
}

func TestConvert_InvalidTargetOpensNothing(t *testing.T) {
	s := newFakeSession(t, 1)
	opened := 0
	c, _ := newTestConverter(t, s, &opened)

	_, err := c.Convert(context.Background(), Request{URL: "https://example.com/view/abc"})
	if !errors.Is(err, models.ErrInvalidTarget) {
		t.Fatalf("err = %v", err)
	}
	if opened != 0 {
		t.Errorf("sessions opened = %d, want 0", opened)
	}
}

func TestConvert_NavigationRetries(t *testing.T) {
	s := newFakeSession(t, 2)
	s.navFailures = 2
	c, _ := newTestConverter(t, s, nil)

	if _, err := c.Convert(context.Background(), Request{URL: testURL}); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if s.navCalls != 3 {
		t.Errorf("navigations = %d, want 3", s.navCalls)
	}

	s2 := newFakeSession(t, 2)
	s2.navFailures = 3
	c2, _ := newTestConverter(t, s2, nil)
	_, err := c2.Convert(context.Background(), Request{URL: testURL})
	if !errors.Is(err, models.ErrPageLoad) {
		t.Fatalf("err = %v, want page load failure", err)
	}
	if !errors.Is(err, models.ErrScraping) {
		t.Error("page load failure should be a scraping failure")
	}
}

func TestConvert_PlaceholderAndCallerName(t *testing.T) {
	s := newFakeSession(t, 1)
	c, _ := newTestConverter(t, s, nil)

	res, err := c.Convert(context.Background(), Request{URL: testURL})
	if err != nil {
		t.Fatal(err)
	}
	if res.Name == "" || res.Name == "document" {
		t.Errorf("expected a placeholder name, got %q", res.Name)
	}

	s.current = 1
	s.title = "Ignored Title"
	res, err = c.Convert(context.Background(), Request{URL: testURL, OutputName: "My: Copy"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Name != "My Copy" {
		t.Errorf("Name = %q, want caller name", res.Name)
	}
}

type fakeProber struct {
	res *probe.Result
	err error
}

func (p fakeProber) Probe(ctx context.Context, url string) (*probe.Result, error) {
	return p.res, p.err
}

func TestConvert_ProbeDeadLinkFailsFast(t *testing.T) {
	s := newFakeSession(t, 1)
	opened := 0
	c, _ := newTestConverter(t, s, &opened)
	c.opts.Prober = fakeProber{err: models.NewConvertError(models.KindPageLoad, "HTTP 404", nil)}

	_, err := c.Convert(context.Background(), Request{URL: testURL})
	if !errors.Is(err, models.ErrPageLoad) {
		t.Fatalf("err = %v", err)
	}
	if opened != 0 {
		t.Errorf("sessions opened = %d, want 0", opened)
	}
}

func TestConvert_ProbeTitleFallback(t *testing.T) {
	s := newFakeSession(t, 1)
	c, _ := newTestConverter(t, s, nil)
	c.opts.Prober = fakeProber{res: &probe.Result{StatusCode: 200, Title: "Board Update | DocSend"}}

	res, err := c.Convert(context.Background(), Request{URL: testURL})
	if err != nil {
		t.Fatal(err)
	}
	if res.Name != "Board Update" {
		t.Errorf("Name = %q, want probe title", res.Name)
	}

	// Any other probe failure is ignored.
	s.current = 1
	c.opts.Prober = fakeProber{err: errors.New("tls handshake failed")}
	if _, err := c.Convert(context.Background(), Request{URL: testURL, OutputName: "x"}); err != nil {
		t.Errorf("probe error should not fail the run: %v", err)
	}
}

func TestConvert_Canceled(t *testing.T) {
	s := newFakeSession(t, 3)
	c, dir := newTestConverter(t, s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.Convert(ctx, Request{
		URL: testURL,
		Progress: func(cur, total int) {
			if cur == 1 {
				cancel()
			}
		},
	})
	if !errors.Is(err, models.ErrCanceled) {
		t.Fatalf("err = %v, want canceled", err)
	}
	for _, name := range dirEntries(t, dir) {
		if strings.HasSuffix(name, ".pdf") || strings.HasSuffix(name, ".tmp") {
			t.Errorf("left %s behind", name)
		}
	}
}

func TestConvert_RecordsHistory(t *testing.T) {
	s := newFakeSession(t, 2)
	s.title = "Kept"
	c, _ := newTestConverter(t, s, nil)
	c.opts.History = history.Open("", 10)

	res, err := c.Convert(context.Background(), Request{URL: testURL})
	if err != nil {
		t.Fatal(err)
	}
	all := c.History().All()
	if len(all) != 1 || all[0].Path != res.Path || all[0].PageCount != 2 || all[0].URL != testURL {
		t.Errorf("history = %+v", all)
	}
}
