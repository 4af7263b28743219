package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/docqa/internal/core/domain"
)

const documentColumns = `id, filename, mime_type, storage_path, conversation_id,
	page_count, word_count, chunk_count, status, error_message, created_at, updated_at`

// DocumentRepository keeps upload metadata and ingestion progress. Chunks
// and vectors live in the in-memory index, never here.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		doc.ID, doc.Filename, doc.MimeType, doc.StoragePath, doc.ConversationID,
		doc.PageCount, doc.WordCount, doc.ChunkCount, string(doc.Status), doc.Error,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, notFound("get document", id)
	case err != nil:
		return nil, fmt.Errorf("scan document %s: %w", id, err)
	}
	return doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	return r.updateOne(ctx, "update document status",
		`UPDATE documents SET status = $2, error_message = $3, updated_at = $4 WHERE id = $1`,
		id, string(status), errMessage, time.Now().UTC())
}

func (r *DocumentRepository) SaveStats(ctx context.Context, id string, stats domain.IngestionStats) error {
	return r.updateOne(ctx, "save document stats",
		`UPDATE documents SET page_count = $2, word_count = $3, chunk_count = $4, updated_at = $5 WHERE id = $1`,
		id, stats.PageCount, stats.WordCount, stats.ChunkCount, time.Now().UTC())
}

// updateOne runs an UPDATE keyed by args[0] and maps zero affected rows to
// ErrDocumentNotFound.
func (r *DocumentRepository) updateOne(ctx context.Context, operation, query string, id string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return notFound(operation, id)
	}
	return nil
}

func scanDocument(row *sql.Row) (*domain.Document, error) {
	var (
		doc    domain.Document
		status string
	)
	if err := row.Scan(
		&doc.ID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.ConversationID,
		&doc.PageCount, &doc.WordCount, &doc.ChunkCount, &status, &doc.Error,
		&doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func notFound(operation, id string) error {
	return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
}
