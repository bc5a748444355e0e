package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/use-agent/topdf/models"
)

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"plain title", `<html><head><title>Series A Deck</title></head></html>`, "Series A Deck"},
		{"og wins", `<html><head><title>DocSend</title><meta property="og:title" content="Board Update"></head></html>`, "Board Update"},
		{"whitespace collapsed", "<title>\n  Q3   Plan \n</title>", "Q3 Plan"},
		{"other meta ignored", `<meta name="description" content="nope"><title>Real</title>`, "Real"},
		{"no title", `<html><body>hi</body></html>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractTitle(tt.body); got != tt.want {
				t.Errorf("ExtractTitle = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProbe_OK(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`<html><head><title>Pitch | DocSend</title></head></html>`))
	}))
	defer srv.Close()

	p := New(Options{Client: srv.Client()})
	res, err := p.Probe(context.Background(), srv.URL+"/view/abc")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", res.StatusCode)
	}
	if res.Title != "Pitch | DocSend" {
		t.Errorf("Title = %q", res.Title)
	}
	if gotUA != chromeUA {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestProbe_DeadLink(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusGone} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		_, err := New(Options{Client: srv.Client()}).Probe(context.Background(), srv.URL)
		srv.Close()

		if !errors.Is(err, models.ErrPageLoad) {
			t.Errorf("HTTP %d: err = %v, want page-load failure", code, err)
		}
	}
}

func TestProbe_OtherErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	res, err := New(Options{Client: srv.Client()}).Probe(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, models.ErrPageLoad) {
		t.Error("403 should not be treated as a dead link")
	}
	if res == nil || res.StatusCode != http.StatusForbidden {
		t.Errorf("res = %+v", res)
	}
}
