package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const ScopeGlobal = "global"

// Chunk is a passage of one document page together with its embedding.
// Chunks are immutable once indexed.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Page       int               `json:"page"`
	Sequence   int               `json:"sequence"`
	Text       string            `json:"text"`
	Embedding  []float32         `json:"embedding"`
	Scope      string            `json:"scope"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ChunkID is unique across scopes: conversation chunks carry their scope as a
// prefix, so the same file uploaded to two conversations never collides.
func ChunkID(scope, documentID string, sequence int) string {
	if scope == "" || scope == ScopeGlobal {
		return fmt.Sprintf("%s_%d", documentID, sequence)
	}
	return fmt.Sprintf("%s/%s_%d", scope, documentID, sequence)
}

func (c Chunk) Validate() error {
	switch {
	case strings.TrimSpace(c.ID) == "":
		return WrapError(ErrInvalidInput, "validate chunk", errors.New("chunk id is required"))
	case strings.TrimSpace(c.DocumentID) == "":
		return WrapError(ErrInvalidInput, "validate chunk", fmt.Errorf("chunk %s: document id is required", c.ID))
	case c.Page < 1:
		return WrapError(ErrInvalidInput, "validate chunk", fmt.Errorf("chunk %s: page must be >= 1", c.ID))
	case strings.TrimSpace(c.Scope) == "":
		return WrapError(ErrInvalidInput, "validate chunk", fmt.Errorf("chunk %s: scope is required", c.ID))
	case strings.TrimSpace(c.Text) == "":
		return WrapError(ErrInvalidInput, "validate chunk", fmt.Errorf("chunk %s: empty text", c.ID))
	case len(c.Embedding) == 0:
		return WrapError(ErrInvalidInput, "validate chunk", fmt.Errorf("chunk %s: empty embedding", c.ID))
	}
	return nil
}

// ScopeFilter restricts retrieval. The zero value matches every chunk.
type ScopeFilter struct {
	DocumentID     string `json:"document,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (f ScopeFilter) IsDocumentScoped() bool {
	return strings.TrimSpace(f.DocumentID) != ""
}

func (f ScopeFilter) Matches(c Chunk) bool {
	if f.IsDocumentScoped() && !SameDocument(f.DocumentID, c.DocumentID) {
		return false
	}
	if f.ConversationID != "" && c.Scope != f.ConversationID && c.Scope != ScopeGlobal {
		return false
	}
	return true
}

// SameDocument compares document names ignoring a trailing .pdf extension.
func SameDocument(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == b {
		return true
	}
	return trimPDF(a) == trimPDF(b)
}

func trimPDF(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return name[:len(name)-len(".pdf")]
	}
	return name
}
