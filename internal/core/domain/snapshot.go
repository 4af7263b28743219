package domain

import "time"

const SnapshotVersion = 1

// Snapshot is the serialized copy of one index scope.
type Snapshot struct {
	Version int       `json:"version"`
	Scope   string    `json:"scope"`
	SavedAt time.Time `json:"saved_at"`
	Items   []Chunk   `json:"items"`
}
