// Package document defines the canonical document type used throughout the
// reranking pipeline and the single boundary conversion from heterogeneous
// caller input into that type.
package document

import (
	"errors"
	"fmt"
)

// ErrInvalidDocument is returned when an input item cannot be converted into
// a Document.
var ErrInvalidDocument = errors.New("invalid document")

// Complexity is the coarse structural complexity label assigned by the
// vision-language classifier.
type Complexity string

const (
	// ComplexityLow marks structurally simple documents. It is also the
	// safe default when classification fails.
	ComplexityLow Complexity = "LOW"

	// ComplexityHigh marks structurally complex documents.
	ComplexityHigh Complexity = "HIGH"

	// ComplexityBoth is a filter value meaning "do not filter".
	ComplexityBoth Complexity = "both"
)

// Document is the canonical form of a candidate document within one rerank
// call. Identity is positional: OriginalIndex is the document's position in
// the caller's input sequence. Content is immutable once constructed.
type Document struct {
	Content       string         `json:"content"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	OriginalIndex int            `json:"original_index"`

	// OriginalScore is a pre-existing relevance score supplied by the
	// caller (e.g. from a vector search). Nil when the caller provided
	// none.
	OriginalScore *float64 `json:"original_score,omitempty"`

	// Image is an optional base64-encoded inline image payload, consumed
	// only by the classification path.
	Image string `json:"-"`
}

// Scored is a Document enriched with the relevance score produced by
// reranking and, when classification ran, a complexity label.
type Scored struct {
	Document

	RerankScore float64 `json:"rerank_score"`

	// ComplexityClass and ComplexityConfidence are set only when the
	// classification path attached metadata to this document.
	ComplexityClass      Complexity `json:"complexity_class,omitempty"`
	ComplexityConfidence *float64   `json:"complexity_confidence,omitempty"`
}

// contentKeys are the field names probed, in order, when a document arrives
// as a mapping rather than a bare string.
var contentKeys = []string{"content", "text", "pageContent", "page_content", "document"}

// Normalize converts a heterogeneous input sequence (bare strings, or
// mappings carrying one of several recognized content fields) into canonical
// Documents. It is the only place input shapes are inspected; everything
// downstream sees Documents. Positional indices are assigned here.
func Normalize(items []any) ([]Document, error) {
	docs := make([]Document, 0, len(items))
	for i, item := range items {
		doc, err := normalizeOne(item)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		doc.OriginalIndex = i
		docs = append(docs, doc)
	}
	return docs, nil
}

func normalizeOne(item any) (Document, error) {
	switch v := item.(type) {
	case string:
		return Document{Content: v}, nil
	case map[string]any:
		return normalizeMap(v)
	default:
		return Document{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidDocument, item)
	}
}

func normalizeMap(m map[string]any) (Document, error) {
	doc := Document{}

	var contentKey string
	for _, key := range contentKeys {
		if raw, ok := m[key]; ok {
			s, ok := raw.(string)
			if !ok {
				return Document{}, fmt.Errorf("%w: field %q is %T, want string", ErrInvalidDocument, key, raw)
			}
			doc.Content = s
			contentKey = key
			break
		}
	}
	if contentKey == "" {
		return Document{}, fmt.Errorf("%w: no content field (tried %v)", ErrInvalidDocument, contentKeys)
	}

	// Lift well-known fields; everything else rides along as metadata.
	for key, val := range m {
		switch key {
		case contentKey:
		case "score":
			if f, ok := toFloat(val); ok {
				score := f
				doc.OriginalScore = &score
			}
		case "image":
			if s, ok := val.(string); ok {
				doc.Image = s
			}
		default:
			if doc.Metadata == nil {
				doc.Metadata = make(map[string]any)
			}
			doc.Metadata[key] = val
		}
	}

	return doc, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
