package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

type fixedToken string

func (f fixedToken) Token() (string, bool) { return string(f), f != "" }

func TestListDocumentsDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/documents" || r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"code":0,"message":"ok","data":[
			{"id":2,"content":"b","metadata":{"source":"web","type":"url","chunk_index":0}},
			{"id":1,"content":"a","metadata":null}
		]}`)
	}))
	defer srv.Close()

	c := New(srv.URL, fixedToken("tok"), nil)
	docs, err := c.ListDocuments(context.Background())
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if len(docs) != 2 || docs[0].Metadata.Type != "url" || docs[1].Metadata.Source != "" {
		t.Fatalf("unexpected docs %+v", docs)
	}
}

func TestCallMapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/conversations":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"code":40100,"message":"invalid or expired token"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"code":40401,"message":"conversation not found"}`)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, fixedToken("tok"), nil)
	if _, err := c.ListConversations(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	_, err := c.ListMessages(context.Background(), 9)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 40401 {
		t.Fatalf("expected APIError 40401, got %v", err)
	}
}

func TestAuthenticatedCallWithoutTokenIsLocal(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := New(srv.URL, fixedToken(""), nil)
	if err := c.RecordAudit(context.Background(), "CHAT", "x"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if called {
		t.Fatal("request sent without a token")
	}
}

func TestSessionStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.toml")
	store, err := OpenSessionStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.SignedIn() {
		t.Fatal("fresh store should be signed out")
	}

	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := store.Save(&AuthResult{Token: "tok", ExpiresAt: expires, User: User{ID: 3, Username: "ada"}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	reopened, err := OpenSessionStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	sess, ok := reopened.Current()
	if !ok || sess.Token != "tok" || sess.UserID != 3 || sess.Username != "ada" || !sess.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected session %+v (ok=%v)", sess, ok)
	}

	if err := reopened.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if reopened.SignedIn() {
		t.Fatal("expected signed out after clear")
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	store, err := OpenSessionStore(filepath.Join(t.TempDir(), "session.toml"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	if err := store.Save(&AuthResult{Token: "tok", ExpiresAt: now.Add(time.Minute)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok := store.Token(); !ok {
		t.Fatal("expected token before expiry")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := store.Token(); ok {
		t.Fatal("expected no token after expiry")
	}
}
