package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type staticSession struct {
	token string
}

func (s staticSession) Token() (string, bool) {
	return s.token, s.token != ""
}

func newClient(baseURL string, policy Policy, session SessionSource) *Client {
	return New(Options{
		BaseURL:     baseURL,
		Policy:      policy,
		Session:     session,
		ChatDelay:   -1,
		UploadDelay: -1,
		CrawlDelay:  -1,
	})
}

func TestChatSuccessSendsBearerToken(t *testing.T) {
	var gotAuth, gotMessage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotMessage = body["message"]
		_, _ = io.WriteString(w, `{"response":"ok","sources":[{"title":"a.pdf"},"b.md",{"page":3},{"title":""}]}`)
	}))
	defer srv.Close()

	c := newClient(srv.URL, PolicyDemoFallback, staticSession{token: "tok"})
	res, err := c.Chat(context.Background(), "hello")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res.Kind != KindOK || res.Response != "ok" {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotAuth != "Bearer tok" || gotMessage != "hello" {
		t.Fatalf("unexpected request auth=%q message=%q", gotAuth, gotMessage)
	}
	want := []string{"a.pdf", "b.md", `{"page":3}`, `{"title":""}`}
	got := Titles(res.Sources)
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("sources = %v, want %v", got, want)
	}
}

func TestChatWithoutSessionSendsNoHeader(t *testing.T) {
	var sawHeader bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawHeader = r.Header["Authorization"]
		_, _ = io.WriteString(w, `{"response":"ok","sources":[]}`)
	}))
	defer srv.Close()

	c := newClient(srv.URL, PolicyDemoFallback, nil)
	if _, err := c.Chat(context.Background(), "hi"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if sawHeader {
		t.Fatal("authorization header sent without a session")
	}
}

func TestChatDemoFallbackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClient(srv.URL, PolicyDemoFallback, nil)
	res, err := c.Chat(context.Background(), "Explain the architecture")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if res.Kind != KindDemoFallback || res.Response != demoChatResponse {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := Titles(res.Sources); len(got) != 2 || got[0] != "Architecture_Overview.pdf" {
		t.Fatalf("unexpected demo sources %v", got)
	}
}

func TestPropagateRequiresSession(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := newClient(srv.URL, PolicyPropagate, nil)
	res, err := c.Chat(context.Background(), "hi")
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if res.Kind != KindFailed {
		t.Fatalf("expected failed kind, got %v", res.Kind)
	}
	if called {
		t.Fatal("request sent without a session")
	}
}

func TestPropagateReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newClient(srv.URL, PolicyPropagate, staticSession{token: "tok"})
	_, err := c.Crawl(context.Background(), "https://example.com")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected StatusError 502, got %v", err)
	}
}

func TestUploadAndCrawlDemoAcks(t *testing.T) {
	c := newClient("http://127.0.0.1:1", PolicyDemoFallback, nil)

	up, err := c.Upload(context.Background(), "notes.md", strings.NewReader("# notes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if up.Kind != KindDemoFallback || up.Message != "File uploaded successfully (Demo)" || up.Filename != "notes.md" {
		t.Fatalf("unexpected upload ack %+v", up)
	}

	cr, err := c.Crawl(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if cr.Kind != KindDemoFallback || cr.Message != "URL crawled successfully (Demo)" || cr.URL != "https://example.com" {
		t.Fatalf("unexpected crawl ack %+v", cr)
	}
}

func TestUploadSendsMultipartFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		b, _ := io.ReadAll(file)
		if header.Filename != "notes.md" || string(b) != "# notes" {
			http.Error(w, "bad file", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"status":"success","chunks_processed":1,"filename":"notes.md"}`)
	}))
	defer srv.Close()

	c := newClient(srv.URL, PolicyPropagate, staticSession{token: "tok"})
	ack, err := c.Upload(context.Background(), "notes.md", strings.NewReader("# notes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if ack.Kind != KindOK || ack.ChunksProcessed != 1 {
		t.Fatalf("unexpected ack %+v", ack)
	}
}

func TestDemoDelayHonorsCancellation(t *testing.T) {
	c := New(Options{BaseURL: "http://127.0.0.1:1", ChatDelay: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := c.Chat(ctx, "hi")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if res.Kind != KindFailed {
		t.Fatalf("expected failed kind, got %v", res.Kind)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("demo delay ignored cancellation")
	}
}

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		origin, override, want string
	}{
		{"http://localhost:5173", "", "http://localhost:8000"},
		{"https://cortex.example.com", "", "https://cortex.example.com/api"},
		{"https://cortex.example.com/app", "", "https://cortex.example.com/api"},
		{"https://cortex.example.com", "http://10.0.0.2:9000/", "http://10.0.0.2:9000"},
		{"", "", "http://localhost:8000"},
	}
	for _, tt := range tests {
		if got := ResolveBaseURL(tt.origin, tt.override); got != tt.want {
			t.Errorf("ResolveBaseURL(%q, %q) = %q, want %q", tt.origin, tt.override, got, tt.want)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	if ParsePolicy("propagate") != PolicyPropagate || ParsePolicy("demo") != PolicyDemoFallback || ParsePolicy("") != PolicyDemoFallback {
		t.Fatal("unexpected policy parsing")
	}
}
