package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// Encode serializes a scope snapshot as JSON.
func Encode(snap domain.Snapshot) ([]byte, error) {
	if snap.Version == 0 {
		snap.Version = domain.SnapshotVersion
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}
	if snap.Items == nil {
		snap.Items = []domain.Chunk{}
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return raw, nil
}

// Decode parses and validates a snapshot written by Encode. Any structural
// problem is reported as domain.ErrSnapshotCorrupt.
func Decode(raw []byte, scopeID string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.Snapshot{}, domain.WrapError(domain.ErrSnapshotCorrupt, "decode snapshot", err)
	}
	if snap.Version != domain.SnapshotVersion {
		return domain.Snapshot{}, domain.WrapError(domain.ErrSnapshotCorrupt, "decode snapshot", fmt.Errorf("unsupported version %d", snap.Version))
	}
	if snap.Scope != scopeID {
		return domain.Snapshot{}, domain.WrapError(domain.ErrSnapshotCorrupt, "decode snapshot", fmt.Errorf("snapshot scope %q, expected %q", snap.Scope, scopeID))
	}
	for _, item := range snap.Items {
		if err := item.Validate(); err != nil {
			return domain.Snapshot{}, domain.WrapError(domain.ErrSnapshotCorrupt, "decode snapshot", err)
		}
		if item.Scope != scopeID {
			return domain.Snapshot{}, domain.WrapError(domain.ErrSnapshotCorrupt, "decode snapshot", fmt.Errorf("item %s has scope %q", item.ID, item.Scope))
		}
	}
	return snap, nil
}
