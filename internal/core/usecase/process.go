package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

const defaultIngestConcurrency = 4

// IngestObserver is notified once per finished document, successful or not.
type IngestObserver interface {
	ObserveIngest(report domain.IngestReport)
}

// ScopeSnapshotter persists one index scope.
type ScopeSnapshotter interface {
	SaveSnapshot(ctx context.Context, scopeID string) (int, error)
}

type ProcessOption func(*ProcessDocumentUseCase)

func WithSnapshotter(s ScopeSnapshotter) ProcessOption {
	return func(uc *ProcessDocumentUseCase) { uc.snapshotter = s }
}

func WithIngestObserver(o IngestObserver) ProcessOption {
	return func(uc *ProcessDocumentUseCase) { uc.observer = o }
}

func WithConcurrency(n int) ProcessOption {
	return func(uc *ProcessDocumentUseCase) {
		if n > 0 {
			uc.concurrency = n
		}
	}
}

// WithDocumentTimeout bounds the ingestion of each document in a batch.
func WithDocumentTimeout(d time.Duration) ProcessOption {
	return func(uc *ProcessDocumentUseCase) { uc.documentTimeout = d }
}

func WithProcessLogger(l *slog.Logger) ProcessOption {
	return func(uc *ProcessDocumentUseCase) {
		if l != nil {
			uc.logger = l
		}
	}
}

type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.PageExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	index     ports.ChunkIndex

	snapshotter     ScopeSnapshotter
	snapshotMu      sync.Mutex
	observer        IngestObserver
	concurrency     int
	documentTimeout time.Duration
	logger          *slog.Logger
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.PageExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.ChunkIndex,
	opts ...ProcessOption,
) *ProcessDocumentUseCase {
	uc := &ProcessDocumentUseCase{
		repo:        repo,
		extractor:   extractor,
		chunker:     chunker,
		embedder:    embedder,
		index:       index,
		concurrency: defaultIngestConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ProcessByID indexes a previously uploaded document and tracks its status in
// the repository.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return uc.fail(ctx, documentID, err)
	}

	report, err := uc.Ingest(ctx, doc)
	if err != nil {
		return uc.fail(ctx, documentID, err)
	}

	if err := uc.repo.SaveStats(ctx, documentID, report.Stats); err != nil {
		return uc.fail(ctx, documentID, fmt.Errorf("save stats: %w", err))
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

type pagePiece struct {
	page int
	text string
}

// Ingest extracts, chunks, embeds and indexes one document. The document's
// previous chunks are replaced in a single index generation and its scope is
// snapshotted, so the document survives a restart.
func (uc *ProcessDocumentUseCase) Ingest(ctx context.Context, doc *domain.Document) (domain.IngestReport, error) {
	report, err := uc.ingestOne(ctx, doc)
	if err == nil {
		uc.saveSnapshot(ctx, doc.Scope())
	}
	return report, err
}

func (uc *ProcessDocumentUseCase) ingestOne(ctx context.Context, doc *domain.Document) (domain.IngestReport, error) {
	start := time.Now()
	report := domain.IngestReport{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Status:     domain.StatusProcessing,
	}

	err := uc.ingest(ctx, doc, &report)
	report.TotalDuration = time.Since(start)
	if err != nil {
		report.Status = domain.StatusFailed
		report.Error = err.Error()
	} else {
		report.Status = domain.StatusReady
	}
	if uc.observer != nil {
		uc.observer.ObserveIngest(report)
	}
	if err != nil {
		return report, err
	}

	uc.logger.Info("document_ingested",
		"document", doc.Filename,
		"scope", doc.Scope(),
		"pages", report.Stats.PageCount,
		"words", report.Stats.WordCount,
		"chunks", report.Stats.ChunkCount,
		"embed_ms", report.EmbedDuration.Milliseconds(),
		"index_ms", report.IndexDuration.Milliseconds(),
	)
	return report, nil
}

func (uc *ProcessDocumentUseCase) ingest(ctx context.Context, doc *domain.Document, report *domain.IngestReport) error {
	pages, err := uc.extractPages(ctx, doc)
	if err != nil {
		return err
	}

	pieces := uc.chunk(pages)
	report.Stats.PageCount = len(pages)
	report.Stats.WordCount = domain.WordCount(pages)
	if len(pieces) == 0 {
		return domain.WrapError(domain.ErrIngestionFailed, "chunk document", errors.New("chunking produced zero chunks"))
	}

	embedStart := time.Now()
	vectors, err := uc.embed(ctx, pieces)
	report.EmbedDuration = time.Since(embedStart)
	if err != nil {
		return err
	}

	indexStart := time.Now()
	scope := doc.Scope()
	chunks := make([]domain.Chunk, 0, len(pieces))
	for seq, piece := range pieces {
		chunks = append(chunks, domain.Chunk{
			ID:         domain.ChunkID(scope, doc.Filename, seq),
			DocumentID: doc.Filename,
			Page:       piece.page,
			Sequence:   seq,
			Text:       piece.text,
			Embedding:  vectors[seq],
			Scope:      scope,
			Metadata: map[string]string{
				"upload_id": doc.ID,
				"mime_type": doc.MimeType,
			},
		})
	}
	if err := uc.index.ReplaceDocument(scope, doc.Filename, chunks); err != nil {
		return domain.WrapError(domain.ErrIngestionFailed, "index chunks", err)
	}
	report.IndexDuration = time.Since(indexStart)
	report.Stats.ChunkCount = len(chunks)
	return nil
}

// saveSnapshot is best effort: the document stays indexed when the store fails.
// Saves are serialized so a slower save never overwrites a newer one.
func (uc *ProcessDocumentUseCase) saveSnapshot(ctx context.Context, scope string) {
	if uc.snapshotter == nil {
		return
	}
	uc.snapshotMu.Lock()
	defer uc.snapshotMu.Unlock()
	if _, err := uc.snapshotter.SaveSnapshot(ctx, scope); err != nil {
		uc.logger.Warn("snapshot_save_failed", "scope", scope, "error", err)
	}
}

// IngestBatch ingests docs concurrently. A failed document is recorded in the
// report and never stops the others. Reports keep the order of docs. Every
// scope that gained a document is snapshotted once, after the batch.
func (uc *ProcessDocumentUseCase) IngestBatch(ctx context.Context, docs []*domain.Document) domain.BatchReport {
	reports := make([]domain.IngestReport, len(docs))

	var g errgroup.Group
	g.SetLimit(uc.concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			docCtx := ctx
			if uc.documentTimeout > 0 {
				var cancel context.CancelFunc
				docCtx, cancel = context.WithTimeout(ctx, uc.documentTimeout)
				defer cancel()
			}
			report, err := uc.ingestOne(docCtx, doc)
			if err != nil {
				uc.logger.Error("document_ingest_failed", "document", doc.Filename, "error", err)
			}
			reports[i] = report
			return nil
		})
	}
	_ = g.Wait()

	saved := make(map[string]struct{})
	for i, doc := range docs {
		if reports[i].Status != domain.StatusReady {
			continue
		}
		if _, ok := saved[doc.Scope()]; !ok {
			saved[doc.Scope()] = struct{}{}
			uc.saveSnapshot(ctx, doc.Scope())
		}
	}
	return domain.BatchReport{Reports: reports}
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractPages(ctx context.Context, doc *domain.Document) ([]domain.Page, error) {
	pages, err := uc.extractor.ExtractPages(ctx, doc)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIngestionFailed, "extract pages", err)
	}
	if len(pages) == 0 {
		return nil, domain.WrapError(domain.ErrIngestionFailed, "extract pages", errors.New("no text found in document"))
	}
	return pages, nil
}

func (uc *ProcessDocumentUseCase) chunk(pages []domain.Page) []pagePiece {
	var pieces []pagePiece
	for _, page := range pages {
		for _, text := range uc.chunker.Split(page.Text) {
			pieces = append(pieces, pagePiece{page: page.Number, text: text})
		}
	}
	return pieces
}

func (uc *ProcessDocumentUseCase) embed(ctx context.Context, pieces []pagePiece) ([][]float32, error) {
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.text
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIngestionFailed, "embed chunks", err)
	}
	if len(vectors) != len(texts) {
		return nil, domain.WrapError(
			domain.ErrIngestionFailed,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(texts)),
		)
	}
	return vectors, nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) fail(ctx context.Context, documentID string, processErr error) error {
	if failErr := uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error()); failErr != nil {
		return fmt.Errorf("%w; mark failed status: %v", processErr, failErr)
	}
	return processErr
}
