package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const page = `<html><head><title> Cortex Docs </title><style>body{}</style></head>
<body><script>var x = 1;</script>
<h1>Architecture</h1>
<p>Vector   retrieval    layer</p>
<div>   </div>
</body></html>`

func TestExtractStripsScriptsAndCollapses(t *testing.T) {
	title, text, err := Extract(strings.NewReader(page))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if title != "Cortex Docs" {
		t.Fatalf("unexpected title %q", title)
	}
	if strings.Contains(text, "var x") || strings.Contains(text, "body{}") {
		t.Fatalf("script or style leaked: %q", text)
	}
	if text != "Architecture\nVector\nretrieval\nlayer" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestFetchSendsUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte("<p>hello</p>"))
	}))
	defer srv.Close()

	c := NewWithClient(srv.Client())
	p, err := c.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if p.Title != srv.URL {
		t.Fatalf("expected url as fallback title, got %q", p.Title)
	}
	if p.Text != "hello" {
		t.Fatalf("unexpected text %q", p.Text)
	}
}

func TestFetchRejectsBadURLAndStatus(t *testing.T) {
	c := New(0)
	if _, err := c.Fetch(context.Background(), "ftp://example.com"); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	if _, err := NewWithClient(srv.Client()).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 404")
	}
}
