// Package crawler fetches a web page and reduces it to readable text.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	userAgent    = "Cortex-Bot/1.0"
	maxPageBytes = 5 << 20
)

var ErrInvalidURL = errors.New("invalid url")

type Page struct {
	URL   string
	Title string
	Text  string
}

type Crawler struct {
	httpClient *http.Client
}

func New(timeout time.Duration) *Crawler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Crawler{httpClient: &http.Client{Timeout: timeout}}
}

// NewWithClient is used by tests to point at an httptest server.
func NewWithClient(client *http.Client) *Crawler {
	return &Crawler{httpClient: client}
}

func (c *Crawler) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build crawl request failed: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crawl request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("crawl response status %d", resp.StatusCode)
	}

	title, text, err := Extract(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = u.String()
	}
	return &Page{URL: u.String(), Title: title, Text: text}, nil
}

// Extract returns the document title and its visible text with script and
// style removed, one trimmed non-empty line per output line.
func Extract(r io.Reader) (string, string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", fmt.Errorf("parse html failed: %w", err)
	}

	var title string
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			case atom.Title:
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte('\n')
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if n.Type == html.ElementNode && isBlock(n.DataAtom) {
			b.WriteByte('\n')
		}
	}
	walk(doc)

	return title, cleanLines(b.String()), nil
}

func cleanLines(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		for _, phrase := range strings.Split(line, "  ") {
			phrase = strings.Join(strings.Fields(phrase), " ")
			if phrase != "" {
				out = append(out, phrase)
			}
		}
	}
	return strings.Join(out, "\n")
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Br, atom.H1, atom.H2, atom.H3, atom.H4, atom.Tr, atom.Section, atom.Article:
		return true
	}
	return false
}
