package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
)

// SnapshotObserver receives one event per snapshot save or load.
type SnapshotObserver interface {
	ObserveSnapshot(backend, operation, outcome string)
}

type ScopeUseCase struct {
	index    ports.ChunkIndex
	store    ports.SnapshotStore
	observer SnapshotObserver
	logger   *slog.Logger
}

func NewScopeUseCase(index ports.ChunkIndex, store ports.SnapshotStore, observer SnapshotObserver, logger *slog.Logger) *ScopeUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScopeUseCase{index: index, store: store, observer: observer, logger: logger}
}

func (uc *ScopeUseCase) ClearScope(_ context.Context, scopeID string) (int, error) {
	scopeID, err := requireScope(scopeID, "clear scope")
	if err != nil {
		return 0, err
	}
	removed := uc.index.ClearScope(scopeID)
	uc.logger.Info("scope_cleared", "scope", scopeID, "removed", removed)
	return removed, nil
}

func (uc *ScopeUseCase) ClearAll(context.Context) error {
	uc.index.Clear()
	uc.logger.Info("index_cleared")
	return nil
}

// RemoveDocument drops every chunk of documentID. A document with no indexed
// chunks is reported as domain.ErrNotIngested.
func (uc *ScopeUseCase) RemoveDocument(_ context.Context, documentID string) (int, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "remove document", errors.New("document id is required"))
	}
	removed := uc.index.RemoveDocument(documentID)
	if removed == 0 {
		return 0, domain.WrapError(domain.ErrNotIngested, "remove document", fmt.Errorf("document %q has no indexed chunks", documentID))
	}
	return removed, nil
}

// SaveSnapshot writes every chunk tagged scopeID and returns how many were
// saved.
func (uc *ScopeUseCase) SaveSnapshot(ctx context.Context, scopeID string) (int, error) {
	scopeID, err := requireScope(scopeID, "save snapshot")
	if err != nil {
		return 0, err
	}
	if uc.store == nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "save snapshot", errors.New("snapshot store is not configured"))
	}

	items := uc.index.InScope(scopeID)
	err = uc.store.Write(ctx, domain.Snapshot{
		Version: domain.SnapshotVersion,
		Scope:   scopeID,
		SavedAt: time.Now().UTC(),
		Items:   items,
	})
	uc.observe("save", err)
	if err != nil {
		return 0, fmt.Errorf("save snapshot %s: %w", scopeID, err)
	}
	return len(items), nil
}

// LoadSnapshot replaces the chunks of scopeID with the stored snapshot and
// reports whether anything was loaded. A missing snapshot is not an error.
func (uc *ScopeUseCase) LoadSnapshot(ctx context.Context, scopeID string) (bool, error) {
	scopeID, err := requireScope(scopeID, "load snapshot")
	if err != nil {
		return false, err
	}
	if uc.store == nil {
		return false, nil
	}

	snap, err := uc.store.Read(ctx, scopeID)
	if err != nil {
		if domain.IsKind(err, domain.ErrSnapshotNotFound) {
			uc.observe("load", nil)
			return false, nil
		}
		uc.observe("load", err)
		return false, fmt.Errorf("load snapshot %s: %w", scopeID, err)
	}
	if err := uc.index.ReplaceScope(scopeID, snap.Items); err != nil {
		uc.observe("load", err)
		return false, domain.WrapError(domain.ErrSnapshotCorrupt, "load snapshot", err)
	}
	uc.observe("load", nil)
	uc.logger.Info("snapshot_loaded", "scope", scopeID, "chunks", len(snap.Items), "backend", uc.store.Backend())
	return len(snap.Items) > 0, nil
}

func (uc *ScopeUseCase) Stats(context.Context) domain.IndexStats {
	return uc.index.Stats()
}

func (uc *ScopeUseCase) observe(operation string, err error) {
	if uc.observer == nil || uc.store == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	uc.observer.ObserveSnapshot(uc.store.Backend(), operation, outcome)
}

func requireScope(scopeID, operation string) (string, error) {
	scopeID = strings.TrimSpace(scopeID)
	if scopeID == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, operation, errors.New("scope id is required"))
	}
	return scopeID, nil
}
