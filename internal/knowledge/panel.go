package knowledge

import (
	"context"
	"io"
	"log"
	"sync"

	"cortex/internal/client/gateway"
	"cortex/internal/client/inference"
	"cortex/internal/events"
)

var Workspaces = []string{"Personal Vault", "Engineering Team", "Finance Records"}

type Documents interface {
	ListDocuments(ctx context.Context) ([]gateway.Document, error)
}

type Ingestor interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*inference.Ack, error)
	Crawl(ctx context.Context, url string) (*inference.Ack, error)
}

type Identity interface {
	SignedIn() bool
}

type Modal int

const (
	ModalNone Modal = iota
	ModalUpload
	ModalURL
)

// Panel is the knowledge sidebar: node list, filters, ingestion modals and
// the inspector.
type Panel struct {
	docs     Documents
	ingestor Ingestor
	identity Identity
	logger   *log.Logger

	mu        sync.Mutex
	nodes     []Node
	filter    Filter
	loading   bool
	uploading bool
	modal     Modal
	urlInput  string
	inspector *Node
	workspace string
	err       string
	lastAck   *inference.Ack

	unsubscribe func()
}

func NewPanel(docs Documents, ingestor Ingestor, identity Identity, logger *log.Logger) *Panel {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Panel{
		docs:      docs,
		ingestor:  ingestor,
		identity:  identity,
		logger:    logger,
		filter:    FilterAll,
		loading:   true,
		workspace: Workspaces[0],
	}
}

// Listen opens the inspector on citation lookups until Close is called.
func (p *Panel) Listen(bus *events.Bus[events.CitationLookup]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	p.unsubscribe = bus.Subscribe(func(e events.CitationLookup) {
		p.Lookup(e.Title)
	})
}

func (p *Panel) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}

type Snapshot struct {
	Nodes     []Node
	Visible   []Node
	Filter    Filter
	Loading   bool
	Uploading bool
	Modal     Modal
	URLInput  string
	Inspector *Node
	LineCount int
	Workspace string
	Error     string
	LastAck   *inference.Ack
}

func (p *Panel) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	visible := make([]Node, 0, len(p.nodes))
	for _, n := range p.nodes {
		if p.filter.Match(n) {
			visible = append(visible, n)
		}
	}
	var inspector *Node
	if p.inspector != nil {
		cp := *p.inspector
		inspector = &cp
	}
	return Snapshot{
		Nodes:     append([]Node(nil), p.nodes...),
		Visible:   visible,
		Filter:    p.filter,
		Loading:   p.loading,
		Uploading: p.uploading,
		Modal:     p.modal,
		URLInput:  p.urlInput,
		Inspector: inspector,
		LineCount: LineCount(inspector),
		Workspace: p.workspace,
		Error:     p.err,
		LastAck:   p.lastAck,
	}
}

// Refresh refetches every row and regroups. Loading is cleared once the
// fetch settles, whatever the outcome.
func (p *Panel) Refresh(ctx context.Context) error {
	if p.identity != nil && !p.identity.SignedIn() {
		p.mu.Lock()
		p.loading = false
		p.mu.Unlock()
		return nil
	}

	p.mu.Lock()
	p.loading = true
	p.mu.Unlock()

	rows, err := p.docs.ListDocuments(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.loading = false
	if err != nil {
		p.logger.Printf("fetch knowledge failed: %v", err)
		p.err = err.Error()
		return err
	}
	p.nodes = Group(rows)
	p.err = ""
	return nil
}

func (p *Panel) SetFilter(f Filter) {
	p.mu.Lock()
	p.filter = f
	p.mu.Unlock()
}

func (p *Panel) SetWorkspace(name string) {
	p.mu.Lock()
	p.workspace = name
	p.mu.Unlock()
}

func (p *Panel) OpenModal(m Modal) {
	p.mu.Lock()
	p.modal = m
	p.mu.Unlock()
}

func (p *Panel) CloseModal() {
	p.mu.Lock()
	p.modal = ModalNone
	p.mu.Unlock()
}

func (p *Panel) SetURLInput(s string) {
	p.mu.Lock()
	p.urlInput = s
	p.mu.Unlock()
}

// Upload ingests one file, then refetches the full list. The modal closes
// only when the upload succeeded.
func (p *Panel) Upload(ctx context.Context, filename string, r io.Reader) error {
	p.setUploading(true)
	defer p.setUploading(false)

	ack, err := p.ingestor.Upload(ctx, filename, r)
	return p.afterIngest(ctx, "upload", ack, err, func() {})
}

// Crawl ingests the page at url. Blank input is ignored.
func (p *Panel) Crawl(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	p.setUploading(true)
	defer p.setUploading(false)

	ack, err := p.ingestor.Crawl(ctx, url)
	return p.afterIngest(ctx, "crawl", ack, err, func() { p.urlInput = "" })
}

func (p *Panel) afterIngest(ctx context.Context, op string, ack *inference.Ack, ingestErr error, onSuccess func()) error {
	refreshErr := p.Refresh(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if ingestErr != nil {
		p.logger.Printf("%s failed: %v", op, ingestErr)
		p.err = op + " failed"
		return ingestErr
	}
	p.lastAck = ack
	p.modal = ModalNone
	onSuccess()
	return refreshErr
}

func (p *Panel) setUploading(v bool) {
	p.mu.Lock()
	p.uploading = v
	p.mu.Unlock()
}

// Inspect opens the inspector on a node.
func (p *Panel) Inspect(n Node) {
	p.mu.Lock()
	p.inspector = &n
	p.mu.Unlock()
}

func (p *Panel) CloseInspector() {
	p.mu.Lock()
	p.inspector = nil
	p.mu.Unlock()
}

// Lookup opens the inspector on the first node matching key, if any.
func (p *Panel) Lookup(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := Find(p.nodes, key)
	if ok {
		p.inspector = &n
	}
	return ok
}
