package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

// IngestDocumentUseCase is the upload half of ingestion: it persists the
// raw file and metadata and hands the id to the queue. Indexing happens in
// ProcessDocumentUseCase.
type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue

	accepts func(filename string) bool
	logger  *slog.Logger
}

type IngestOption func(*IngestDocumentUseCase)

// WithUploadFilter rejects uploads whose filename fails accepts before
// anything is stored.
func WithUploadFilter(accepts func(filename string) bool) IngestOption {
	return func(uc *IngestDocumentUseCase) { uc.accepts = accepts }
}

func WithIngestLogger(logger *slog.Logger) IngestOption {
	return func(uc *IngestDocumentUseCase) { uc.logger = logger }
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	opts ...IngestOption,
) *IngestDocumentUseCase {
	uc := &IngestDocumentUseCase{repo: repo, storage: storage, queue: queue, logger: slog.Default()}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Upload stores the file, records a new document generation and queues it for
// indexing. conversationID scopes the document to one conversation; empty
// means global.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType, conversationID string,
	body io.Reader,
) (*domain.Document, error) {
	filename = strings.TrimSpace(filepath.Base(filename))
	switch {
	case filename == "" || filename == "." || filename == string(filepath.Separator):
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("filename is required"))
	case uc.accepts != nil && !uc.accepts(filename):
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("unsupported file type: %s", filename))
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:             uuid.NewString(),
		Filename:       filename,
		MimeType:       mimeType,
		ConversationID: strings.TrimSpace(conversationID),
		Status:         domain.StatusUploaded,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	doc.StoragePath = doc.ID + "_" + storageSafeName(filename)

	if err := uc.storage.Save(ctx, doc.StoragePath, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}
	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		uc.markUnqueued(ctx, doc.ID, err)
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}
	return doc, nil
}

// markUnqueued flags a stored document that no worker will ever pick up.
func (uc *IngestDocumentUseCase) markUnqueued(ctx context.Context, id string, cause error) {
	if err := uc.repo.UpdateStatus(ctx, id, domain.StatusFailed, "enqueue failed: "+cause.Error()); err != nil {
		uc.logger.Warn("mark_unqueued_failed", "document_id", id, "error", err)
	}
}

// storageSafeName keeps ASCII letters, digits and ".-_"; anything else
// becomes an underscore.
func storageSafeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range filepath.Base(name) {
		if r < 0x80 && (r == '.' || r == '-' || r == '_' ||
			('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')) {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	if b.Len() == 0 {
		return "document.bin"
	}
	return b.String()
}
