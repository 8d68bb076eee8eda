// Package knowledge presents ingested document chunks as knowledge nodes.
package knowledge

import (
	"strconv"
	"strings"
	"time"

	"cortex/internal/client/gateway"
)

type NodeType string

const (
	TypeDocument NodeType = "document"
	TypeURL      NodeType = "url"
	TypeNote     NodeType = "note"
)

type Status string

const (
	StatusSynced  Status = "synced"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
)

const (
	untitledSource = "Untitled Node"
	defaultSize    = "4KB"
)

var defaultTags = []string{"Imported"}

type Node struct {
	ID          string
	Title       string
	Type        NodeType
	Date        time.Time
	Tags        []string
	Status      Status
	Size        string
	FullContent string
}

type Filter string

const (
	FilterAll  Filter = "all"
	FilterDocs Filter = "docs"
	FilterWeb  Filter = "web"
)

var Filters = []Filter{FilterAll, FilterDocs, FilterWeb}

func (f Filter) Match(n Node) bool {
	switch f {
	case FilterDocs:
		return n.Type == TypeDocument
	case FilterWeb:
		return n.Type == TypeURL
	default:
		return true
	}
}

// Group collapses chunk rows into one node per source. Rows arrive newest
// first and the first row seen for a source wins.
func Group(rows []gateway.Document) []Node {
	nodes := make([]Node, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		source := row.Metadata.Source
		if source == "" {
			source = untitledSource
		}
		if _, ok := seen[source]; ok {
			continue
		}
		seen[source] = struct{}{}

		nodeType := TypeDocument
		if row.Metadata.Type == string(TypeURL) {
			nodeType = TypeURL
		}
		tags := row.Metadata.Tags
		if len(tags) == 0 {
			tags = defaultTags
		}
		size := row.Metadata.Size
		if size == "" {
			size = defaultSize
		}
		nodes = append(nodes, Node{
			ID:          strconv.FormatUint(uint64(row.ID), 10),
			Title:       source,
			Type:        nodeType,
			Date:        row.CreatedAt,
			Tags:        append([]string(nil), tags...),
			Status:      StatusSynced,
			Size:        size,
			FullContent: row.Content,
		})
	}
	return nodes
}

// Find returns the first node whose title equals or contains key.
func Find(nodes []Node, key string) (Node, bool) {
	if key == "" {
		return Node{}, false
	}
	for _, n := range nodes {
		if n.Title == key || strings.Contains(n.Title, key) {
			return n, true
		}
	}
	return Node{}, false
}

// LineCount sizes the inspector gutter.
func LineCount(n *Node) int {
	if n == nil || n.FullContent == "" {
		return 50
	}
	return strings.Count(n.FullContent, "\n") + 1 + 5
}
