// Package inference is the client side of the /chat, /upload and /crawl
// endpoints.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Policy decides what a failed call returns.
type Policy int

const (
	// PolicyDemoFallback masks failures with canned payloads after a delay.
	PolicyDemoFallback Policy = iota
	// PolicyPropagate requires a session and returns failures to the caller.
	PolicyPropagate
)

func ParsePolicy(s string) Policy {
	if strings.EqualFold(strings.TrimSpace(s), "propagate") {
		return PolicyPropagate
	}
	return PolicyDemoFallback
}

// Kind tags a result so callers can tell degraded mode from success.
type Kind int

const (
	KindOK Kind = iota
	KindDemoFallback
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindDemoFallback:
		return "demo"
	default:
		return "failed"
	}
}

var ErrNoSession = errors.New("no active session")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// SessionSource yields the bearer token of the signed-in user, if any.
type SessionSource interface {
	Token() (string, bool)
}

const (
	defaultChatDelay   = 2000 * time.Millisecond
	defaultUploadDelay = 2000 * time.Millisecond
	defaultCrawlDelay  = 3500 * time.Millisecond

	demoChatResponse = "I've analyzed the provided context. Based on the documentation in your knowledge base, " +
		"the architecture uses a vector-based retrieval system (RAG) coupled with a Gemini 1.5 Pro inference layer. " +
		"This ensures high-fidelity data synthesis while maintaining strict privacy boundaries."
)

var demoSources = []Source{"Architecture_Overview.pdf", "Security_Protocols.md"}

type Options struct {
	BaseURL    string
	Policy     Policy
	Session    SessionSource
	HTTPClient *http.Client
	Logger     *log.Logger

	// Zero delays use the defaults; negative disables the wait.
	ChatDelay   time.Duration
	UploadDelay time.Duration
	CrawlDelay  time.Duration
}

type Client struct {
	baseURL    string
	policy     Policy
	session    SessionSource
	httpClient *http.Client
	logger     *log.Logger

	chatDelay   time.Duration
	uploadDelay time.Duration
	crawlDelay  time.Duration
}

func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		policy:      opts.Policy,
		session:     opts.Session,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		chatDelay:   delayOrDefault(opts.ChatDelay, defaultChatDelay),
		uploadDelay: delayOrDefault(opts.UploadDelay, defaultUploadDelay),
		crawlDelay:  delayOrDefault(opts.CrawlDelay, defaultCrawlDelay),
	}
}

func (c *Client) Policy() Policy { return c.policy }

// ResolveBaseURL picks the API root. An explicit override wins and a local
// origin talks to the backend on :8000 directly. Any other origin goes
// through its /api prefix.
func ResolveBaseURL(origin, override string) string {
	if override = strings.TrimSpace(override); override != "" {
		return strings.TrimRight(override, "/")
	}
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Host == "" {
		return "http://localhost:8000"
	}
	if u.Hostname() == "localhost" {
		return "http://localhost:8000"
	}
	return strings.TrimRight(u.Scheme+"://"+u.Host, "/") + "/api"
}

type ChatResult struct {
	Kind     Kind     `json:"-"`
	Response string   `json:"response"`
	Sources  []Source `json:"sources"`
}

// Ack is the acknowledgement of an upload or crawl.
type Ack struct {
	Kind            Kind   `json:"-"`
	Status          string `json:"status,omitempty"`
	Message         string `json:"message,omitempty"`
	Filename        string `json:"filename,omitempty"`
	URL             string `json:"url,omitempty"`
	ChunksProcessed int    `json:"chunks_processed,omitempty"`
}

func (c *Client) Chat(ctx context.Context, prompt string) (*ChatResult, error) {
	body, err := json.Marshal(map[string]string{"message": prompt})
	if err != nil {
		return nil, err
	}

	var out ChatResult
	err = c.do(ctx, "chat", "/chat", "application/json", bytes.NewReader(body), &out)
	if err == nil {
		out.Kind = KindOK
		return &out, nil
	}
	if ferr := c.fallback(ctx, "chat", err, c.chatDelay); ferr != nil {
		return &ChatResult{Kind: KindFailed}, ferr
	}
	return &ChatResult{
		Kind:     KindDemoFallback,
		Response: demoChatResponse,
		Sources:  append([]Source(nil), demoSources...),
	}, nil
}

// Upload sends r as the multipart field "file".
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*Ack, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	var out Ack
	err = c.do(ctx, "upload", "/upload", form.FormDataContentType(), &buf, &out)
	if err == nil {
		out.Kind = KindOK
		return &out, nil
	}
	if ferr := c.fallback(ctx, "upload", err, c.uploadDelay); ferr != nil {
		return &Ack{Kind: KindFailed}, ferr
	}
	return &Ack{Kind: KindDemoFallback, Message: "File uploaded successfully (Demo)", Filename: filename}, nil
}

func (c *Client) Crawl(ctx context.Context, target string) (*Ack, error) {
	body, err := json.Marshal(map[string]string{"url": target})
	if err != nil {
		return nil, err
	}

	var out Ack
	err = c.do(ctx, "crawl", "/crawl", "application/json", bytes.NewReader(body), &out)
	if err == nil {
		out.Kind = KindOK
		return &out, nil
	}
	if ferr := c.fallback(ctx, "crawl", err, c.crawlDelay); ferr != nil {
		return &Ack{Kind: KindFailed}, ferr
	}
	return &Ack{Kind: KindDemoFallback, Message: "URL crawled successfully (Demo)", URL: target}, nil
}

func (c *Client) do(ctx context.Context, op, path, contentType string, body io.Reader, out interface{}) error {
	token, signedIn := "", false
	if c.session != nil {
		token, signedIn = c.session.Token()
	}
	if c.policy == PolicyPropagate && !signedIn {
		return ErrNoSession
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)
	if signedIn {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// fallback returns nil when the demo payload should be served, or the error
// to hand back to the caller.
func (c *Client) fallback(ctx context.Context, op string, cause error, delay time.Duration) error {
	if c.policy == PolicyPropagate || errors.Is(cause, ErrNoSession) {
		return cause
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.logger.Printf("%s unreachable, switching to demo mode: %v", op, cause)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func delayOrDefault(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return d
}
