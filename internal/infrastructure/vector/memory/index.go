package memory

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// generation is one complete set of chunks. Readers never see a generation
// that is being rebuilt: bulk operations build a fresh one and swap it in.
type generation struct {
	chunks []domain.Chunk
	byID   map[chunkKey]int
}

// chunkKey keeps ids scope-local: a chunk never overwrites one of another scope.
type chunkKey struct {
	scope string
	id    string
}

func newGeneration(capacity int) *generation {
	return &generation{
		chunks: make([]domain.Chunk, 0, capacity),
		byID:   make(map[chunkKey]int, capacity),
	}
}

func (g *generation) put(c domain.Chunk) {
	key := chunkKey{scope: c.Scope, id: c.ID}
	if pos, ok := g.byID[key]; ok {
		g.chunks[pos] = c
		return
	}
	g.byID[key] = len(g.chunks)
	g.chunks = append(g.chunks, c)
}

// Index is the in-memory Embedding Index. writeMu serializes mutators so a
// generation can be rebuilt while readers keep using the current one; mu is
// held exclusively only for an in-place Put or the pointer swap.
type Index struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	current *generation
	version atomic.Uint64
}

func New() *Index {
	return &Index{current: newGeneration(0)}
}

// Put inserts or overwrites chunks by id. Invalid chunks are rejected before
// anything is written.
func (i *Index) Put(chunks ...domain.Chunk) error {
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return err
		}
	}

	i.writeMu.Lock()
	defer i.writeMu.Unlock()
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, c := range chunks {
		i.current.put(c)
	}
	return nil
}

func (i *Index) Scoped(filter domain.ScopeFilter) []domain.Chunk {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]domain.Chunk, 0, len(i.current.chunks))
	for _, c := range i.current.chunks {
		if filter.Matches(c) {
			out = append(out, c)
		}
	}
	return out
}

// InScope returns the chunks tagged with exactly scopeID.
func (i *Index) InScope(scopeID string) []domain.Chunk {
	i.mu.RLock()
	defer i.mu.RUnlock()

	out := make([]domain.Chunk, 0)
	for _, c := range i.current.chunks {
		if c.Scope == scopeID {
			out = append(out, c)
		}
	}
	return out
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.current.chunks)
}

func (i *Index) ReplaceAll(chunks []domain.Chunk) error {
	next := newGeneration(len(chunks))
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return err
		}
		next.put(c)
	}
	i.swap(next)
	return nil
}

// ReplaceScope substitutes every chunk tagged scopeID with chunks. Chunks of
// other scopes keep their position.
func (i *Index) ReplaceScope(scopeID string, chunks []domain.Chunk) error {
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return err
		}
		if c.Scope != scopeID {
			return domain.WrapError(domain.ErrInvalidInput, "replace scope", scopeMismatch(c, scopeID))
		}
	}

	i.rebuild(func(old *generation) *generation {
		next := newGeneration(len(old.chunks) + len(chunks))
		for _, c := range old.chunks {
			if c.Scope != scopeID {
				next.put(c)
			}
		}
		for _, c := range chunks {
			next.put(c)
		}
		return next
	})
	return nil
}

// ReplaceDocument swaps every chunk of documentID in scopeID for chunks in one
// generation, so a re-ingested document is never seen half old, half new.
// Document names match the way RemoveDocument matches them.
func (i *Index) ReplaceDocument(scopeID, documentID string, chunks []domain.Chunk) error {
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return err
		}
		if c.Scope != scopeID {
			return domain.WrapError(domain.ErrInvalidInput, "replace document", scopeMismatch(c, scopeID))
		}
		if !domain.SameDocument(c.DocumentID, documentID) {
			return domain.WrapError(domain.ErrInvalidInput, "replace document", fmt.Errorf("chunk %s belongs to %q, not %q", c.ID, c.DocumentID, documentID))
		}
	}

	i.rebuild(func(old *generation) *generation {
		next := newGeneration(len(old.chunks) + len(chunks))
		for _, c := range old.chunks {
			if c.Scope != scopeID || !domain.SameDocument(c.DocumentID, documentID) {
				next.put(c)
			}
		}
		for _, c := range chunks {
			next.put(c)
		}
		return next
	})
	return nil
}

func (i *Index) Clear() {
	i.swap(newGeneration(0))
}

// ClearScope drops every chunk tagged scopeID and reports how many were removed.
func (i *Index) ClearScope(scopeID string) int {
	return i.removeWhere(func(c domain.Chunk) bool { return c.Scope == scopeID })
}

func (i *Index) RemoveDocument(documentID string) int {
	return i.removeWhere(func(c domain.Chunk) bool { return domain.SameDocument(documentID, c.DocumentID) })
}

func (i *Index) Stats() domain.IndexStats {
	i.mu.RLock()
	defer i.mu.RUnlock()

	perScope := make(map[string]int)
	docs := make(map[string]struct{})
	for _, c := range i.current.chunks {
		perScope[c.Scope]++
		docs[c.DocumentID] = struct{}{}
	}
	return domain.IndexStats{
		TotalChunks:    len(i.current.chunks),
		Documents:      len(docs),
		ChunksPerScope: perScope,
		Generation:     i.version.Load(),
	}
}

// Generation increments on every bulk replacement.
func (i *Index) Generation() uint64 {
	return i.version.Load()
}

func (i *Index) removeWhere(drop func(domain.Chunk) bool) int {
	removed := 0
	i.rebuild(func(old *generation) *generation {
		next := newGeneration(len(old.chunks))
		for _, c := range old.chunks {
			if drop(c) {
				removed++
				continue
			}
			next.put(c)
		}
		return next
	})
	return removed
}

// rebuild derives the next generation from the current one. Only writers are
// excluded while build runs.
func (i *Index) rebuild(build func(old *generation) *generation) {
	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	next := build(i.current)
	i.mu.Lock()
	i.current = next
	i.mu.Unlock()
	i.version.Add(1)
}

func (i *Index) swap(next *generation) {
	i.writeMu.Lock()
	defer i.writeMu.Unlock()

	i.mu.Lock()
	i.current = next
	i.mu.Unlock()
	i.version.Add(1)
}
