package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docqa/internal/core/domain"
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveStats(ctx context.Context, id string, stats domain.IngestionStats) error
}

type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// PageExtractor turns a stored document into ordered, cleaned page texts.
type PageExtractor interface {
	ExtractPages(ctx context.Context, doc *domain.Document) ([]domain.Page, error)
}

type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Chunker interface {
	Split(text string) []string
}

// ChunkIndex is the in-memory Embedding Index. Readers always observe one
// complete generation.
type ChunkIndex interface {
	Put(chunks ...domain.Chunk) error
	Scoped(filter domain.ScopeFilter) []domain.Chunk
	Len() int
	ReplaceAll(chunks []domain.Chunk) error
	ReplaceScope(scopeID string, chunks []domain.Chunk) error
	ReplaceDocument(scopeID, documentID string, chunks []domain.Chunk) error
	Clear()
	ClearScope(scopeID string) int
	RemoveDocument(documentID string) int
	InScope(scopeID string) []domain.Chunk
	Stats() domain.IndexStats
}

type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question, contextText string) (string, error)
}

// SnapshotStore persists index scopes. Read returns domain.ErrSnapshotNotFound
// when nothing was saved for the scope and domain.ErrSnapshotCorrupt when the
// stored payload cannot be decoded.
type SnapshotStore interface {
	Write(ctx context.Context, snapshot domain.Snapshot) error
	Read(ctx context.Context, scopeID string) (domain.Snapshot, error)
	Backend() string
}
