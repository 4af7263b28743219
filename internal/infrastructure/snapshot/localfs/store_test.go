package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/docqa/internal/core/domain"
)

func TestWriteReadRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	snap := domain.Snapshot{
		Scope: "conv-1",
		Items: []domain.Chunk{{ID: "a_0", DocumentID: "a", Page: 1, Text: "x", Embedding: []float32{1}, Scope: "conv-1"}},
	}
	if err := store.Write(context.Background(), snap); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := store.Read(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got.Items) != 1 || got.Items[0].ID != "a_0" {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func TestReadMissingScope(t *testing.T) {
	store, _ := New(t.TempDir())
	_, err := store.Read(context.Background(), "nope")
	if !domain.IsKind(err, domain.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestReadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, _ := New(dir)
	if err := os.WriteFile(filepath.Join(dir, "conv_global.json"), []byte("{"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err := store.Read(context.Background(), domain.ScopeGlobal)
	if !domain.IsKind(err, domain.ErrSnapshotCorrupt) {
		t.Fatalf("expected ErrSnapshotCorrupt, got %v", err)
	}
}

func TestFileKeyEscapesUnsafeScopes(t *testing.T) {
	if got := fileKey("conv-1"); got != "conv-1" {
		t.Fatalf("fileKey(conv-1) = %q", got)
	}
	a := fileKey("../x")
	b := fileKey("__x")
	if a == b {
		t.Fatalf("expected distinct keys, both %q", a)
	}
	if filepath.Base(a) != a {
		t.Fatalf("escaped key contains separators: %q", a)
	}
}
