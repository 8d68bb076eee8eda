package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	DocumentTypeDocument = "document"
	DocumentTypeURL      = "url"
)

// Document is one ingested chunk. Rows sharing Metadata.Source belong to the
// same logical upload or crawled page.
type Document struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;index" json:"user_id"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	Metadata  datatypes.JSON `gorm:"type:json" json:"metadata"`
	Embedding string         `gorm:"type:mediumtext" json:"-"` // JSON array of float32
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

type DocumentMetadata struct {
	Source     string   `json:"source,omitempty"`
	Type       string   `json:"type,omitempty"`
	Title      string   `json:"title,omitempty"`
	ChunkIndex int      `json:"chunk_index"`
	Size       string   `json:"size,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

func (d *Document) Meta() DocumentMetadata {
	var meta DocumentMetadata
	if len(d.Metadata) == 0 {
		return meta
	}
	_ = json.Unmarshal(d.Metadata, &meta)
	return meta
}

func (d *Document) SetMeta(meta DocumentMetadata) {
	b, _ := json.Marshal(meta)
	d.Metadata = datatypes.JSON(b)
}

// EmbeddingVector returns the parsed embedding slice; empty on parse error.
func (d *Document) EmbeddingVector() []float32 {
	if d.Embedding == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(d.Embedding), &v)
	return v
}

func (d *Document) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		d.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	d.Embedding = string(b)
}
