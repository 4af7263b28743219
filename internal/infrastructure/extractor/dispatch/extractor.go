package dispatch

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/docqa/internal/infrastructure/extractor/spreadsheet"
)

// Extractor routes a document to a format-specific extractor by extension,
// then by MIME type, falling back to plain text.
type Extractor struct {
	pdf         ports.PageExtractor
	spreadsheet ports.PageExtractor
	plaintext   ports.PageExtractor
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{
		pdf:         pdf.NewExtractor(storage),
		spreadsheet: spreadsheet.NewExtractor(storage),
		plaintext:   plaintext.NewExtractor(storage),
	}
}

func (e *Extractor) ExtractPages(ctx context.Context, doc *domain.Document) ([]domain.Page, error) {
	return e.pick(doc).ExtractPages(ctx, doc)
}

func (e *Extractor) pick(doc *domain.Document) ports.PageExtractor {
	switch strings.ToLower(filepath.Ext(doc.Filename)) {
	case ".pdf":
		return e.pdf
	case ".xlsx", ".xlsm", ".xltx":
		return e.spreadsheet
	case ".txt", ".md", ".csv":
		return e.plaintext
	}

	mime := strings.ToLower(doc.MimeType)
	switch {
	case mime == "application/pdf":
		return e.pdf
	case strings.Contains(mime, "spreadsheetml"):
		return e.spreadsheet
	default:
		return e.plaintext
	}
}

// Supported reports whether filename has an extension the router handles
// with a dedicated parser or as text.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".xlsx", ".xlsm", ".xltx", ".txt", ".md", ".csv":
		return true
	default:
		return false
	}
}
