package domain

import (
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Document is one ingestion generation of a source file. Re-uploading the same
// filename creates a new Document with a new ID.
type Document struct {
	ID             string         `json:"id"`
	Filename       string         `json:"filename"`
	MimeType       string         `json:"mime_type"`
	StoragePath    string         `json:"storage_path"`
	ConversationID string         `json:"conversation_id,omitempty"`
	PageCount      int            `json:"page_count"`
	WordCount      int            `json:"word_count"`
	ChunkCount     int            `json:"chunk_count"`
	Status         DocumentStatus `json:"status"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Scope returns the scope tag every chunk of the document is indexed under.
func (d *Document) Scope() string {
	if d == nil || d.ConversationID == "" {
		return ScopeGlobal
	}
	return d.ConversationID
}

type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// WordCount counts whitespace-separated words across pages.
func WordCount(pages []Page) int {
	n := 0
	for _, p := range pages {
		n += len(strings.Fields(p.Text))
	}
	return n
}

type IngestionStats struct {
	PageCount  int `json:"page_count"`
	WordCount  int `json:"word_count"`
	ChunkCount int `json:"chunk_count"`
}

type IngestReport struct {
	DocumentID    string         `json:"document_id"`
	Filename      string         `json:"filename"`
	Stats         IngestionStats `json:"stats"`
	EmbedDuration time.Duration  `json:"embed_duration"`
	IndexDuration time.Duration  `json:"index_duration"`
	TotalDuration time.Duration  `json:"total_duration"`
	Status        DocumentStatus `json:"status"`
	Error         string         `json:"error,omitempty"`
}

// BatchReport aggregates per-document outcomes; a failed document never aborts
// the rest of the batch.
type BatchReport struct {
	Reports []IngestReport `json:"reports"`
}

func (b BatchReport) Succeeded() int {
	n := 0
	for _, r := range b.Reports {
		if r.Status == StatusReady {
			n++
		}
	}
	return n
}

func (b BatchReport) Failed() []IngestReport {
	out := make([]IngestReport, 0)
	for _, r := range b.Reports {
		if r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out
}
