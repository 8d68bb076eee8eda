package knowledge

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"cortex/internal/client/gateway"
	"cortex/internal/client/inference"
	"cortex/internal/events"
)

type fakeDocs struct {
	rows  []gateway.Document
	err   error
	calls int
}

func (f *fakeDocs) ListDocuments(context.Context) ([]gateway.Document, error) {
	f.calls++
	return f.rows, f.err
}

type fakeIngestor struct {
	uploaded []string
	crawled  []string
	err      error
}

func (f *fakeIngestor) Upload(_ context.Context, filename string, r io.Reader) (*inference.Ack, error) {
	b, _ := io.ReadAll(r)
	f.uploaded = append(f.uploaded, filename+":"+string(b))
	if f.err != nil {
		return &inference.Ack{Kind: inference.KindFailed}, f.err
	}
	return &inference.Ack{Kind: inference.KindOK, Filename: filename}, nil
}

func (f *fakeIngestor) Crawl(_ context.Context, url string) (*inference.Ack, error) {
	f.crawled = append(f.crawled, url)
	if f.err != nil {
		return &inference.Ack{Kind: inference.KindFailed}, f.err
	}
	return &inference.Ack{Kind: inference.KindDemoFallback, URL: url}, nil
}

type signedIn bool

func (s signedIn) SignedIn() bool { return bool(s) }

func row(id uint, source, typ, content string) gateway.Document {
	return gateway.Document{
		ID:        id,
		Content:   content,
		Metadata:  gateway.DocumentMetadata{Source: source, Type: typ},
		CreatedAt: time.Unix(int64(id), 0),
	}
}

func TestGroupFirstRowWins(t *testing.T) {
	rows := []gateway.Document{
		row(3, "report.pdf", "document", "newest chunk"),
		row(2, "report.pdf", "document", "older chunk"),
		row(1, "https://example.com", "url", "page"),
	}
	nodes := Group(rows)
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	if nodes[0].ID != "3" || nodes[0].FullContent != "newest chunk" {
		t.Fatalf("first row should win: %+v", nodes[0])
	}
	if nodes[1].Type != TypeURL {
		t.Fatalf("expected url node, got %s", nodes[1].Type)
	}
}

func TestGroupDefaults(t *testing.T) {
	nodes := Group([]gateway.Document{{ID: 9, Content: "x"}})
	n := nodes[0]
	if n.Title != "Untitled Node" || n.Type != TypeDocument || n.Size != "4KB" || n.Status != StatusSynced {
		t.Fatalf("unexpected defaults %+v", n)
	}
	if len(n.Tags) != 1 || n.Tags[0] != "Imported" {
		t.Fatalf("unexpected tags %v", n.Tags)
	}
}

func TestFilters(t *testing.T) {
	docs := &fakeDocs{rows: []gateway.Document{
		row(2, "a.pdf", "document", ""),
		row(1, "https://b", "url", ""),
	}}
	p := NewPanel(docs, nil, signedIn(true), nil)
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	tests := []struct {
		filter Filter
		want   int
	}{{FilterAll, 2}, {FilterDocs, 1}, {FilterWeb, 1}}
	for _, tt := range tests {
		p.SetFilter(tt.filter)
		if got := len(p.Snapshot().Visible); got != tt.want {
			t.Errorf("filter %s: got %d nodes, want %d", tt.filter, got, tt.want)
		}
	}
}

func TestEmptyKnowledgeBaseSettles(t *testing.T) {
	p := NewPanel(&fakeDocs{}, nil, signedIn(true), nil)
	if !p.Snapshot().Loading {
		t.Fatal("panel should start loading")
	}
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	snap := p.Snapshot()
	if snap.Loading || len(snap.Nodes) != 0 {
		t.Fatalf("expected settled empty panel, got %+v", snap)
	}
}

func TestRefreshFailureClearsLoading(t *testing.T) {
	p := NewPanel(&fakeDocs{err: errors.New("down")}, nil, signedIn(true), nil)
	if err := p.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if p.Snapshot().Loading {
		t.Fatal("loading must clear after failure")
	}
}

func TestSignedOutRefreshSkipsFetch(t *testing.T) {
	docs := &fakeDocs{}
	p := NewPanel(docs, nil, signedIn(false), nil)
	_ = p.Refresh(context.Background())
	if docs.calls != 0 || p.Snapshot().Loading {
		t.Fatal("signed-out refresh should not fetch and should settle")
	}
}

func TestUploadRefetchesAndClosesModal(t *testing.T) {
	docs := &fakeDocs{rows: []gateway.Document{row(1, "notes.md", "document", "# notes")}}
	ing := &fakeIngestor{}
	p := NewPanel(docs, ing, signedIn(true), nil)
	p.OpenModal(ModalUpload)

	if err := p.Upload(context.Background(), "notes.md", strings.NewReader("# notes")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	snap := p.Snapshot()
	if snap.Modal != ModalNone || snap.Uploading || len(snap.Nodes) != 1 || docs.calls != 1 {
		t.Fatalf("unexpected state %+v (fetches %d)", snap, docs.calls)
	}
	if ing.uploaded[0] != "notes.md:# notes" {
		t.Fatalf("uploaded = %v", ing.uploaded)
	}
}

func TestCrawlFailureKeepsModal(t *testing.T) {
	docs := &fakeDocs{}
	p := NewPanel(docs, &fakeIngestor{err: errors.New("down")}, signedIn(true), nil)
	p.OpenModal(ModalURL)
	p.SetURLInput("https://example.com")

	if err := p.Crawl(context.Background(), "https://example.com"); err == nil {
		t.Fatal("expected crawl error")
	}
	snap := p.Snapshot()
	if snap.Modal != ModalURL || snap.URLInput == "" || snap.Error == "" {
		t.Fatalf("unexpected state %+v", snap)
	}
	if docs.calls != 1 {
		t.Fatal("list should be refetched even after failure")
	}
}

func TestCrawlSuccessClearsInput(t *testing.T) {
	p := NewPanel(&fakeDocs{}, &fakeIngestor{}, signedIn(true), nil)
	p.OpenModal(ModalURL)
	p.SetURLInput("https://example.com")
	if err := p.Crawl(context.Background(), "https://example.com"); err != nil {
		t.Fatalf("crawl: %v", err)
	}
	snap := p.Snapshot()
	if snap.Modal != ModalNone || snap.URLInput != "" || snap.LastAck.Kind != inference.KindDemoFallback {
		t.Fatalf("unexpected state %+v", snap)
	}
}

func TestCitationLookupOpensInspector(t *testing.T) {
	docs := &fakeDocs{rows: []gateway.Document{
		row(2, "Security_Protocols.md", "document", "line1\nline2"),
		row(1, "Architecture_Overview.pdf", "document", ""),
	}}
	p := NewPanel(docs, nil, signedIn(true), nil)
	_ = p.Refresh(context.Background())
	bus := events.NewBus[events.CitationLookup]()
	p.Listen(bus)

	bus.Publish(events.CitationLookup{Title: "Security"})
	snap := p.Snapshot()
	if snap.Inspector == nil || snap.Inspector.Title != "Security_Protocols.md" {
		t.Fatalf("inspector = %+v", snap.Inspector)
	}
	if snap.LineCount != 7 {
		t.Fatalf("line count = %d, want 7", snap.LineCount)
	}

	p.CloseInspector()
	bus.Publish(events.CitationLookup{Title: "missing.txt"})
	if p.Snapshot().Inspector != nil {
		t.Fatal("unknown citation should not open the inspector")
	}
	bus.Publish(events.CitationLookup{Title: ""})
	if p.Snapshot().Inspector != nil {
		t.Fatal("empty citation should not open the inspector")
	}

	p.Close()
	if bus.Len() != 0 {
		t.Fatal("Close should unsubscribe")
	}
}

func TestLineCountEmpty(t *testing.T) {
	if LineCount(nil) != 50 || LineCount(&Node{}) != 50 {
		t.Fatal("empty content should size to 50 lines")
	}
}
