package model

import (
	"testing"

	"gorm.io/datatypes"
)

func TestDocumentMetaDefaultsWhenEmpty(t *testing.T) {
	var d Document
	meta := d.Meta()
	if meta.Source != "" || meta.Type != "" {
		t.Fatalf("expected zero metadata, got %+v", meta)
	}

	d.SetMeta(DocumentMetadata{Source: "guide.pdf", Type: DocumentTypeDocument, ChunkIndex: 3})
	meta = d.Meta()
	if meta.Source != "guide.pdf" || meta.ChunkIndex != 3 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestDocumentEmbeddingVector(t *testing.T) {
	var d Document
	if v := d.EmbeddingVector(); v != nil {
		t.Fatalf("expected nil vector, got %v", v)
	}
	d.SetEmbedding(nil)
	if d.Embedding != "[]" {
		t.Fatalf("expected empty json array, got %q", d.Embedding)
	}
	d.SetEmbedding([]float32{0.5, 1})
	v := d.EmbeddingVector()
	if len(v) != 2 || v[0] != 0.5 {
		t.Fatalf("unexpected vector: %v", v)
	}
}

func TestMessageSources(t *testing.T) {
	m := Message{Metadata: datatypes.JSON(`{"sources":["a.pdf","b.md"]}`)}
	got := m.Sources()
	if len(got) != 2 || got[1] != "b.md" {
		t.Fatalf("unexpected sources: %v", got)
	}

	broken := Message{Metadata: datatypes.JSON(`not json`)}
	if broken.Sources() != nil {
		t.Fatal("expected nil sources for malformed metadata")
	}
}
