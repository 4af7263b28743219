package localfs

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/infrastructure/snapshot"
)

type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "./data/snapshots"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Backend() string { return "file" }

func (s *Store) Write(_ context.Context, snap domain.Snapshot) error {
	raw, err := snapshot.Encode(snap)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(snap.Scope)); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (s *Store) Read(_ context.Context, scopeID string) (domain.Snapshot, error) {
	raw, err := os.ReadFile(s.path(scopeID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Snapshot{}, domain.WrapError(domain.ErrSnapshotNotFound, "read snapshot", err)
		}
		return domain.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	return snapshot.Decode(raw, scopeID)
}

func (s *Store) path(scopeID string) string {
	return filepath.Join(s.dir, "conv_"+fileKey(scopeID)+".json")
}

// fileKey keeps scope ids readable on disk; ids that needed escaping get a
// hash suffix so distinct ids never share a file.
func fileKey(scopeID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, scopeID)
	if safe == scopeID && safe != "" {
		return safe
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(scopeID))
	return fmt.Sprintf("%s_%08x", safe, h.Sum32())
}
