package ports

import (
	"context"
	"io"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType, conversationID string, body io.Reader) (*domain.Document, error)
}

// QueryService answers questions grounded in the indexed corpus.
type QueryService interface {
	AnswerQuery(ctx context.Context, question string, filter domain.ScopeFilter) (*domain.QueryResult, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// ScopeManager owns index lifecycle operations that outlive a single query.
type ScopeManager interface {
	ClearScope(ctx context.Context, scopeID string) (int, error)
	ClearAll(ctx context.Context) error
	RemoveDocument(ctx context.Context, documentID string) (int, error)
	SaveSnapshot(ctx context.Context, scopeID string) (int, error)
	LoadSnapshot(ctx context.Context, scopeID string) (bool, error)
	Stats(ctx context.Context) domain.IndexStats
}
