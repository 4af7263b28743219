package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound        = errors.New("document not found")
	ErrInvalidInput            = errors.New("invalid input")
	ErrTemporary               = errors.New("temporary failure")
	ErrIngestionFailed         = errors.New("ingestion failed")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrNotIngested             = errors.New("not ingested")
	ErrSnapshotNotFound        = errors.New("snapshot not found")
	ErrSnapshotCorrupt         = errors.New("snapshot corrupt")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ApologyMessage is shown to users when a collaborator fails mid-query.
const ApologyMessage = "I'm sorry, I encountered an error while processing your question. Please try again later."
