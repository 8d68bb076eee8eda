package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"cortex/internal/ai"
	"cortex/internal/crawler"
	"cortex/internal/model"
)

const (
	embeddingBatchSize = 10

	cortexSystemPrompt = `You are Cortex, an advanced private intelligence assistant.
Use the following Context to answer the User Query.

Rules:
1. Only use the provided Context. If the answer isn't there, say "I don't have that information in my knowledge base."
2. Be professional, concise, and architectural in tone.
3. Cite your sources implicitly if possible.

Context:
`
)

var (
	ErrEmptyDocument = errors.New("file is empty or could not extract readable text")
	ErrCrawlFailed   = errors.New("failed to crawl url")
)

type Embedder interface {
	Embed(ctx context.Context, cfg ai.EmbeddingConfig, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, cfg ai.EmbeddingConfig, texts []string) ([][]float32, error)
}

type Completer interface {
	Complete(ctx context.Context, cfg ai.ChatConfig, messages []ai.ChatMessage) (string, error)
}

type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*crawler.Page, error)
}

type DocumentStore interface {
	CreateBatch(docs []model.Document) error
	ListForRetrieval(userID uint) ([]model.Document, error)
}

type RetrievalOptions struct {
	ChunkSize      int
	ChunkOverlap   int
	MatchCount     int
	MatchThreshold float64
}

// InferenceService is the RAG side of Cortex: ingestion and grounded chat.
type InferenceService struct {
	docs      DocumentStore
	embedder  Embedder
	completer Completer
	fetcher   PageFetcher
	embConfig ai.EmbeddingConfig
	chatCfg   ai.ChatConfig
	opts      RetrievalOptions
}

func NewInferenceService(
	docs DocumentStore,
	embedder Embedder,
	completer Completer,
	fetcher PageFetcher,
	embConfig ai.EmbeddingConfig,
	chatCfg ai.ChatConfig,
	opts RetrievalOptions,
) *InferenceService {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 5
	}
	if opts.MatchCount <= 0 {
		opts.MatchCount = 5
	}
	return &InferenceService{
		docs:      docs,
		embedder:  embedder,
		completer: completer,
		fetcher:   fetcher,
		embConfig: embConfig,
		chatCfg:   chatCfg,
		opts:      opts,
	}
}

type SourceRef struct {
	Title string `json:"title"`
}

type ChatResult struct {
	Response string      `json:"response"`
	Sources  []SourceRef `json:"sources"`
}

type IngestResult struct {
	Status          string `json:"status"`
	ChunksProcessed int    `json:"chunks_processed"`
	Filename        string `json:"filename,omitempty"`
	URL             string `json:"url,omitempty"`
	Title           string `json:"title,omitempty"`
}

// Chat embeds the question, retrieves the closest chunks of the user's
// knowledge base and answers from that context only.
func (s *InferenceService) Chat(ctx context.Context, userID uint, message string) (*ChatResult, error) {
	message = strings.TrimSpace(message)
	if userID == 0 || message == "" {
		return nil, ErrInvalidInput
	}

	queryEmb, err := s.embedder.Embed(ctx, s.embConfig, message)
	if err != nil {
		return nil, err
	}
	rows, err := s.docs.ListForRetrieval(userID)
	if err != nil {
		return nil, err
	}
	matches := selectMatches(queryEmb, rows, s.opts.MatchCount, s.opts.MatchThreshold)

	var contextBlock strings.Builder
	sources := make([]SourceRef, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		source := m.Meta().Source
		if source == "" {
			source = "Unknown"
		}
		fmt.Fprintf(&contextBlock, "---\nSource: %s\nContent: %s\n", source, m.Content)
		if !seen[source] {
			seen[source] = true
			sources = append(sources, SourceRef{Title: source})
		}
	}

	answer, err := s.completer.Complete(ctx, s.chatCfg, []ai.ChatMessage{
		{Role: "system", Content: cortexSystemPrompt + contextBlock.String()},
		{Role: "user", Content: message},
	})
	if err != nil {
		return nil, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = "The model returned an empty response."
	}
	return &ChatResult{Response: answer, Sources: sources}, nil
}

// IngestFile chunks and embeds text extracted from an uploaded file.
func (s *InferenceService) IngestFile(ctx context.Context, userID uint, filename, text string) (*IngestResult, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		filename = "uploaded_file"
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}

	size := fmt.Sprintf("%.1fKB", float64(len(text))/1024)
	n, err := s.ingest(ctx, userID, text, func(i int) model.DocumentMetadata {
		return model.DocumentMetadata{
			Source:     filename,
			Type:       model.DocumentTypeDocument,
			ChunkIndex: i,
			Size:       size,
		}
	})
	if err != nil {
		return nil, err
	}
	return &IngestResult{Status: "success", ChunksProcessed: n, Filename: filename}, nil
}

// IngestURL crawls a page and stores its text keyed by the URL.
func (s *InferenceService) IngestURL(ctx context.Context, userID uint, rawURL string) (*IngestResult, error) {
	if userID == 0 || strings.TrimSpace(rawURL) == "" {
		return nil, ErrInvalidInput
	}
	page, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		if errors.Is(err, crawler.ErrInvalidURL) {
			return nil, ErrInvalidInput
		}
		return nil, fmt.Errorf("%w: %v", ErrCrawlFailed, err)
	}
	if strings.TrimSpace(page.Text) == "" {
		return nil, ErrEmptyDocument
	}

	size := fmt.Sprintf("%.1fKB", float64(len(page.Text))/1024)
	n, err := s.ingest(ctx, userID, page.Text, func(i int) model.DocumentMetadata {
		return model.DocumentMetadata{
			Source:     page.URL,
			Type:       model.DocumentTypeURL,
			Title:      page.Title,
			ChunkIndex: i,
			Size:       size,
		}
	})
	if err != nil {
		return nil, err
	}
	return &IngestResult{Status: "success", ChunksProcessed: n, URL: page.URL, Title: page.Title}, nil
}

func (s *InferenceService) ingest(ctx context.Context, userID uint, text string, meta func(i int) model.DocumentMetadata) (int, error) {
	chunks := chunkText(text, s.opts.ChunkSize, s.opts.ChunkOverlap)
	if len(chunks) == 0 {
		return 0, ErrEmptyDocument
	}

	// Call embedding API in batches to avoid provider limits.
	embeddings := make([][]float32, 0, len(chunks))
	for i := 0; i < len(chunks); i += embeddingBatchSize {
		end := i + embeddingBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batched, err := s.embedder.EmbedBatch(ctx, s.embConfig, chunks[i:end])
		if err != nil {
			return 0, err
		}
		embeddings = append(embeddings, batched...)
	}
	if len(embeddings) != len(chunks) {
		return 0, errors.New("embedding count mismatch")
	}

	rows := make([]model.Document, len(chunks))
	for i := range chunks {
		rows[i] = model.Document{UserID: userID, Content: chunks[i]}
		rows[i].SetMeta(meta(i))
		rows[i].SetEmbedding(embeddings[i])
	}
	if err := s.docs.CreateBatch(rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// chunkText splits text into overlapping chunks by rune count, skipping
// chunks that are only whitespace.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 2
	}
	var chunks []string
	runes := []rune(text)
	for i := 0; i < len(runes); i += size - overlap {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		if chunk := string(runes[i:end]); strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

type scoredDocument struct {
	doc   model.Document
	score float64
}

// selectMatches ranks rows by cosine similarity and keeps at most k rows
// scoring above threshold. Ties keep storage order.
func selectMatches(query []float32, rows []model.Document, k int, threshold float64) []model.Document {
	scored := make([]scoredDocument, 0, len(rows))
	for _, row := range rows {
		score := cosineSimilarity(query, row.EmbeddingVector())
		if score > threshold {
			scored = append(scored, scoredDocument{doc: row, score: score})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	out := make([]model.Document, len(scored))
	for i := range scored {
		out[i] = scored[i].doc
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
