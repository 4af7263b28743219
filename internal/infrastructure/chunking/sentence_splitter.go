package chunking

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 50

	// tokensPerCarrySentence converts the overlap token budget into a number
	// of trailing sentences carried into the next chunk.
	tokensPerCarrySentence = 20
)

// SentenceSplitter groups sentences into chunks of at most ChunkSize
// whitespace-separated tokens. A sentence is never cut; one longer than
// ChunkSize becomes a chunk of its own.
type SentenceSplitter struct {
	ChunkSize int
	Overlap   int
}

func NewSentenceSplitter(chunkSize, overlap int) *SentenceSplitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return &SentenceSplitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *SentenceSplitter) Split(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	out := make([]string, 0, 1)
	current := make([]string, 0, 8)
	currentTokens := 0
	for _, sentence := range sentences {
		n := countTokens(sentence)
		if len(current) > 0 && currentTokens+n > s.ChunkSize {
			out = append(out, strings.Join(current, " "))
			current, currentTokens = s.carryOver(current)
		}
		current = append(current, sentence)
		currentTokens += n
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, " "))
	}
	return out
}

// carryOver returns the trailing sentences of prev that seed the next chunk.
func (s *SentenceSplitter) carryOver(prev []string) ([]string, int) {
	limit := s.Overlap / tokensPerCarrySentence
	next := make([]string, 0, limit+8)
	if limit == 0 {
		return next, 0
	}

	start := len(prev)
	tokens := 0
	for start > 0 && len(prev)-start < limit {
		n := countTokens(prev[start-1])
		if tokens+n > s.Overlap {
			break
		}
		tokens += n
		start--
	}
	next = append(next, prev[start:]...)
	return next, tokens
}

func splitSentences(text string) []string {
	runes := []rune(text)
	out := make([]string, 0)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		end := i + 1
		for end < len(runes) && (isTerminal(runes[end]) || isCloser(runes[end])) {
			end++
		}
		// "3.14" or "e.g.x" are not boundaries
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			i = end - 1
			continue
		}
		if sentence := strings.TrimSpace(string(runes[start:end])); sentence != "" {
			out = append(out, sentence)
		}
		start = end
		i = end - 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

func countTokens(s string) int {
	return len(strings.Fields(s))
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	default:
		return false
	}
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '»', '”', '’':
		return true
	default:
		return false
	}
}
