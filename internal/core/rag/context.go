package rag

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/docqa/internal/core/domain"
)

const (
	DefaultContextMaxChars = 5000
	fingerprintRunes       = 100
)

// AssembleContext concatenates candidates in ranked order into labeled blocks.
// Passages whose first 100 characters repeat an earlier one are skipped, and
// the block that would push the result past maxChars is left out together
// with everything after it.
func AssembleContext(candidates []domain.Candidate, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultContextMaxChars
	}

	var b strings.Builder
	length := 0
	seen := make(map[uint64]struct{}, len(candidates))
	for i, c := range candidates {
		fp := fingerprint(c.Chunk.Text)
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}

		block := fmt.Sprintf("From %d. %s (Page %d)\n%s\n\n", i+1, sourceName(c.Chunk), c.Chunk.Page, c.Chunk.Text)
		blockLen := utf8.RuneCountInString(block)
		if length+blockLen > maxChars {
			break
		}
		b.WriteString(block)
		length += blockLen
	}
	return strings.TrimRight(b.String(), " \t\r\n")
}

func fingerprint(text string) uint64 {
	if utf8.RuneCountInString(text) > fingerprintRunes {
		text = string([]rune(text)[:fingerprintRunes])
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	return h.Sum64()
}

func sourceName(c domain.Chunk) string {
	if c.DocumentID == "" {
		return "Unknown"
	}
	return c.DocumentID
}
