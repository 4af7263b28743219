package extractor

import (
	"strings"
	"unicode"

	"github.com/kirillkom/docqa/internal/core/domain"
)

// CleanText drops non-printable characters and collapses whitespace runs.
func CleanText(raw string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r == unicode.ReplacementChar:
			return ' '
		case unicode.IsSpace(r):
			return ' '
		case !unicode.IsPrint(r):
			return -1
		default:
			return r
		}
	}, raw)
	return strings.Join(strings.Fields(mapped), " ")
}

// Pages cleans raw page texts and keeps non-empty ones, preserving their
// 1-based numbers.
func Pages(raw []string) []domain.Page {
	out := make([]domain.Page, 0, len(raw))
	for i, text := range raw {
		cleaned := CleanText(text)
		if cleaned == "" {
			continue
		}
		out = append(out, domain.Page{Number: i + 1, Text: cleaned})
	}
	return out
}
