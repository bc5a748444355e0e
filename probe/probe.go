// Package probe performs a cheap HTTP preflight of a document link before
// a browser is launched, using a Chrome TLS fingerprint.
package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	tls2 "github.com/refraction-networking/utls"
	"golang.org/x/net/html"

	"github.com/use-agent/topdf/models"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxBody caps how much of the landing page is read.
const maxBody = 2 * 1024 * 1024

// Result is what the preflight learned.
type Result struct {
	StatusCode int
	FinalURL   string
	Title      string
}

// Options configures a Prober.
type Options struct {
	Timeout time.Duration
	Proxy   string

	// Client overrides the fingerprinted client, mainly for tests.
	Client *http.Client
}

// Prober issues preflight requests.
type Prober struct {
	client  *http.Client
	timeout time.Duration
}

// New creates a Prober.
func New(opts Options) *Prober {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = newChromeClient(opts.Proxy)
	}
	return &Prober{client: client, timeout: opts.Timeout}
}

// Probe fetches the landing page. A 404 or 410 means the link is dead and
// is reported as a page-load failure; other statuses are returned for the
// caller to judge.
func (p *Prober) Probe(ctx context.Context, targetURL string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("probe: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe: request failed: %w", err)
	}
	defer resp.Body.Close()

	res := &Result{StatusCode: resp.StatusCode, FinalURL: resp.Request.URL.String()}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return res, models.NewConvertError(models.KindPageLoad,
			fmt.Sprintf("document link returned HTTP %d", resp.StatusCode), nil).WithStage("resolve")
	}
	if resp.StatusCode >= 400 {
		return res, fmt.Errorf("probe: HTTP %d for %s", resp.StatusCode, targetURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return res, fmt.Errorf("probe: read body: %w", err)
	}
	res.Title = ExtractTitle(string(body))
	return res, nil
}

// ExtractTitle prefers og:title and falls back to <title>.
func ExtractTitle(body string) string {
	z := html.NewTokenizer(strings.NewReader(body))
	var title string
	inTitle := false

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return strings.Join(strings.Fields(title), " ")
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "title":
				inTitle = tt == html.StartTagToken
			case "meta":
				if hasAttr {
					if og := ogTitle(z); og != "" {
						return strings.Join(strings.Fields(og), " ")
					}
				}
			}
		case html.TextToken:
			if inTitle && title == "" {
				title = string(z.Text())
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "title" {
				inTitle = false
			}
		}
	}
}

func ogTitle(z *html.Tokenizer) string {
	var prop, content string
	for {
		key, val, more := z.TagAttr()
		switch string(key) {
		case "property", "name":
			prop = strings.ToLower(string(val))
		case "content":
			content = string(val)
		}
		if !more {
			break
		}
	}
	if prop == "og:title" {
		return content
	}
	return ""
}

// newChromeClient returns a client whose TLS handshake mimics Chrome.
func newChromeClient(proxy string) *http.Client {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr)
		},
		// utls negotiates h2 in ALPN; keep the transport on HTTP/1.1 framing.
		ForceAttemptHTTP2: false,
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil && (proxyURL.Scheme == "http" || proxyURL.Scheme == "https") {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &http.Client{Transport: transport}
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	spec, err := tls2.UTLSIdToSpec(tls2.HelloChrome_Auto)
	if err != nil {
		rawConn.Close()
		return nil, err
	}
	// Offer only http/1.1 so the response matches the transport's framing.
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls2.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}

	tlsConn := tls2.UClient(rawConn, &tls2.Config{ServerName: host}, tls2.HelloCustom)
	if err := tlsConn.ApplyPreset(&spec); err != nil {
		rawConn.Close()
		return nil, err
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}
