package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"cortex/internal/app"
	"cortex/internal/transport/http/middleware"
)

type fakeInference struct {
	lastText string
	chatErr  error
	crawlErr error
}

func (f *fakeInference) Chat(_ context.Context, _ uint, message string) (*app.ChatResult, error) {
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &app.ChatResult{
		Response: "echo: " + message,
		Sources:  []app.SourceRef{{Title: "Architecture_Overview.pdf"}},
	}, nil
}

func (f *fakeInference) IngestFile(_ context.Context, _ uint, filename, text string) (*app.IngestResult, error) {
	f.lastText = text
	if text == "" {
		return nil, app.ErrEmptyDocument
	}
	return &app.IngestResult{Status: "success", ChunksProcessed: 1, Filename: filename}, nil
}

func (f *fakeInference) IngestURL(_ context.Context, _ uint, rawURL string) (*app.IngestResult, error) {
	if f.crawlErr != nil {
		return nil, f.crawlErr
	}
	return &app.IngestResult{Status: "success", ChunksProcessed: 2, URL: rawURL}, nil
}

func newInferenceRouter(inf Inference) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	auth := func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, uint(1))
		c.Next()
	}
	h := NewInferenceHandler(inf, 1024)
	r.POST("/chat", auth, h.Chat)
	r.POST("/upload", auth, h.Upload)
	r.POST("/crawl", auth, h.Crawl)
	return r
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func TestChatReturnsBarePayload(t *testing.T) {
	router := newInferenceRouter(&fakeInference{})
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Response string `json:"response"`
		Sources  []struct {
			Title string `json:"title"`
		} `json:"sources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Response != "echo: hello" || len(body.Sources) != 1 || body.Sources[0].Title != "Architecture_Overview.pdf" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestChatRejectsMissingMessage(t *testing.T) {
	router := newInferenceRouter(&fakeInference{})
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestChatUpstreamFailure(t *testing.T) {
	router := newInferenceRouter(&fakeInference{chatErr: errors.New("llm down")})
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUpload(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    int
	}{
		{name: "text", content: []byte("  quarterly report  "), want: http.StatusOK},
		{name: "empty", content: []byte("   "), want: http.StatusBadRequest},
		{name: "too large", content: bytes.Repeat([]byte("a"), 2048), want: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inf := &fakeInference{}
			router := newInferenceRouter(inf)
			body, contentType := multipartBody(t, "report.txt", tt.content)
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want == http.StatusOK && inf.lastText != "quarterly report" {
				t.Fatalf("text not trimmed: %q", inf.lastText)
			}
		})
	}
}

func TestUploadMissingFile(t *testing.T) {
	router := newInferenceRouter(&fakeInference{})
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(""))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCrawl(t *testing.T) {
	router := newInferenceRouter(&fakeInference{})
	req := httptest.NewRequest(http.MethodPost, "/crawl", strings.NewReader(`{"url":"https://example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"url":"https://example.com"`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	router = newInferenceRouter(&fakeInference{crawlErr: app.ErrCrawlFailed})
	req = httptest.NewRequest(http.MethodPost, "/crawl", strings.NewReader(`{"url":"https://example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
}
