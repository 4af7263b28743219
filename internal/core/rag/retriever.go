package rag

import (
	"sort"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// ChunkSource is the read side of the Embedding Index.
type ChunkSource interface {
	Scoped(filter domain.ScopeFilter) []domain.Chunk
}

type Retriever struct {
	source ChunkSource
}

func NewRetriever(source ChunkSource) *Retriever {
	return &Retriever{source: source}
}

func (r *Retriever) Retrieve(queryVector []float32, queryText string, filter domain.ScopeFilter, profile Profile) []domain.Candidate {
	return Rank(queryVector, queryText, r.source.Scoped(filter), profile)
}

// Rank scores chunks by vector similarity, keeps the top_k above the
// similarity threshold, then re-ranks them by similarity plus TF-IDF lexical
// score. Chunks must be given in index insertion order; ties keep that order.
func Rank(queryVector []float32, queryText string, chunks []domain.Chunk, profile Profile) []domain.Candidate {
	if len(chunks) == 0 {
		return nil
	}

	candidates := make([]domain.Candidate, 0, len(chunks))
	for _, chunk := range chunks {
		sim := CosineSimilarity(queryVector, chunk.Embedding)
		if sim < profile.SimilarityThreshold {
			continue
		}
		candidates = append(candidates, domain.Candidate{Chunk: chunk, Similarity: sim})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if profile.TopK > 0 && len(candidates) > profile.TopK {
		candidates = candidates[:profile.TopK]
	}
	if len(candidates) == 0 {
		return nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Chunk.Text
	}
	lexical := LexicalScores(queryText, texts)

	out := candidates[:0]
	for i, c := range candidates {
		if lexical[i] < profile.LexicalThreshold {
			continue
		}
		c.LexicalScore = lexical[i]
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Combined() > out[j].Combined()
	})
	if profile.MaxResults > 0 && len(out) > profile.MaxResults {
		out = out[:profile.MaxResults]
	}
	return out
}
