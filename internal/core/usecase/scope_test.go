package usecase

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/kirillkom/docqa/internal/core/domain"
	snapshotfs "github.com/kirillkom/docqa/internal/infrastructure/snapshot/localfs"
	"github.com/kirillkom/docqa/internal/infrastructure/vector/memory"
)

type snapshotStoreFake struct {
	saved   map[string]domain.Snapshot
	readErr error
}

func (f *snapshotStoreFake) Write(_ context.Context, snap domain.Snapshot) error {
	if f.saved == nil {
		f.saved = map[string]domain.Snapshot{}
	}
	f.saved[snap.Scope] = snap
	return nil
}

func (f *snapshotStoreFake) Read(_ context.Context, scopeID string) (domain.Snapshot, error) {
	if f.readErr != nil {
		return domain.Snapshot{}, f.readErr
	}
	snap, ok := f.saved[scopeID]
	if !ok {
		return domain.Snapshot{}, domain.WrapError(domain.ErrSnapshotNotFound, "read", errors.New(scopeID))
	}
	return snap, nil
}

func (f *snapshotStoreFake) Backend() string { return "fake" }

type snapshotObserverFake struct {
	events []string
}

func (f *snapshotObserverFake) ObserveSnapshot(backend, operation, outcome string) {
	f.events = append(f.events, backend+":"+operation+":"+outcome)
}

func scopedChunk(doc string, seq int, scope string) domain.Chunk {
	return domain.Chunk{
		ID:         domain.ChunkID(scope, doc, seq),
		DocumentID: doc,
		Page:       seq + 1,
		Sequence:   seq,
		Text:       doc + " passage",
		Embedding:  []float32{float32(seq), 0.5, 0.25},
		Scope:      scope,
		Metadata:   map[string]string{"upload_id": "u-" + doc},
	}
}

type chunkKey struct {
	ID   string
	Text string
	Emb  string
}

func keysOf(chunks []domain.Chunk) map[chunkKey]struct{} {
	out := make(map[chunkKey]struct{}, len(chunks))
	for _, c := range chunks {
		out[chunkKey{ID: c.ID, Text: c.Text, Emb: fmt.Sprint(c.Embedding)}] = struct{}{}
	}
	return out
}

func TestSnapshotRoundTripRestoresScope(t *testing.T) {
	store, err := snapshotfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	idx := memory.New()
	if err := idx.Put(
		scopedChunk("a.pdf", 0, "conv-1"),
		scopedChunk("a.pdf", 1, "conv-1"),
		scopedChunk("g.pdf", 0, domain.ScopeGlobal),
	); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	uc := NewScopeUseCase(idx, store, nil, nil)
	ctx := context.Background()

	before := keysOf(idx.InScope("conv-1"))
	if n, err := uc.SaveSnapshot(ctx, "conv-1"); err != nil || n != 2 {
		t.Fatalf("SaveSnapshot() = %d, %v", n, err)
	}
	if n, err := uc.ClearScope(ctx, "conv-1"); err != nil || n != 2 {
		t.Fatalf("ClearScope() = %d, %v", n, err)
	}
	if len(idx.InScope("conv-1")) != 0 {
		t.Fatalf("expected conv-1 to be empty after clear")
	}

	loaded, err := uc.LoadSnapshot(ctx, "conv-1")
	if err != nil || !loaded {
		t.Fatalf("LoadSnapshot() = %v, %v", loaded, err)
	}
	after := keysOf(idx.InScope("conv-1"))
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("restored chunks differ:\nbefore=%v\nafter=%v", before, after)
	}
	if len(idx.InScope(domain.ScopeGlobal)) != 1 {
		t.Fatalf("expected global scope untouched")
	}
}

func TestLoadSnapshotMissingIsNotAnError(t *testing.T) {
	observer := &snapshotObserverFake{}
	uc := NewScopeUseCase(memory.New(), &snapshotStoreFake{}, observer, nil)
	loaded, err := uc.LoadSnapshot(context.Background(), "conv-9")
	if err != nil || loaded {
		t.Fatalf("LoadSnapshot() = %v, %v", loaded, err)
	}
	if len(observer.events) != 1 || observer.events[0] != "fake:load:ok" {
		t.Fatalf("unexpected observer events: %v", observer.events)
	}
}

func TestLoadSnapshotCorruptSurfacesKind(t *testing.T) {
	store := &snapshotStoreFake{readErr: domain.WrapError(domain.ErrSnapshotCorrupt, "read", errors.New("bad json"))}
	idx := memory.New()
	_ = idx.Put(scopedChunk("a.pdf", 0, "conv-1"))
	uc := NewScopeUseCase(idx, store, nil, nil)

	_, err := uc.LoadSnapshot(context.Background(), "conv-1")
	if !domain.IsKind(err, domain.ErrSnapshotCorrupt) {
		t.Fatalf("expected ErrSnapshotCorrupt, got %v", err)
	}
	if len(idx.InScope("conv-1")) != 1 {
		t.Fatalf("expected live scope untouched after failed load")
	}
}

func TestLoadSnapshotRejectsForeignItems(t *testing.T) {
	store := &snapshotStoreFake{saved: map[string]domain.Snapshot{
		"conv-1": {Scope: "conv-1", Items: []domain.Chunk{scopedChunk("a.pdf", 0, "conv-2")}},
	}}
	uc := NewScopeUseCase(memory.New(), store, nil, nil)
	if _, err := uc.LoadSnapshot(context.Background(), "conv-1"); !domain.IsKind(err, domain.ErrSnapshotCorrupt) {
		t.Fatalf("expected ErrSnapshotCorrupt, got %v", err)
	}
}

func TestRemoveDocumentNotIngested(t *testing.T) {
	idx := memory.New()
	_ = idx.Put(scopedChunk("a.pdf", 0, domain.ScopeGlobal))
	uc := NewScopeUseCase(idx, nil, nil, nil)

	if _, err := uc.RemoveDocument(context.Background(), "b.pdf"); !domain.IsKind(err, domain.ErrNotIngested) {
		t.Fatalf("expected ErrNotIngested, got %v", err)
	}
	n, err := uc.RemoveDocument(context.Background(), "a")
	if err != nil || n != 1 {
		t.Fatalf("RemoveDocument() = %d, %v", n, err)
	}
}

func TestScopeOperationsValidateInput(t *testing.T) {
	uc := NewScopeUseCase(memory.New(), nil, nil, nil)
	if _, err := uc.ClearScope(context.Background(), " "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := uc.SaveSnapshot(context.Background(), "conv-1"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without store, got %v", err)
	}
}

func TestClearAllAndStats(t *testing.T) {
	idx := memory.New()
	_ = idx.Put(scopedChunk("a.pdf", 0, domain.ScopeGlobal), scopedChunk("b.pdf", 0, "conv-1"))
	uc := NewScopeUseCase(idx, nil, nil, nil)

	stats := uc.Stats(context.Background())
	if stats.TotalChunks != 2 || stats.Documents != 2 || stats.ChunksPerScope["conv-1"] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if err := uc.ClearAll(context.Background()); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if uc.Stats(context.Background()).TotalChunks != 0 {
		t.Fatalf("expected empty index")
	}
}
