package rag

import (
	"strings"
	"testing"

	"github.com/kirillkom/docqa/internal/core/domain"
)

func textCand(doc string, page int, text string) domain.Candidate {
	return domain.Candidate{Chunk: domain.Chunk{DocumentID: doc, Page: page, Text: text}}
}

func TestAssembleContextLabelsAndDeduplicates(t *testing.T) {
	got := AssembleContext([]domain.Candidate{
		textCand("a.pdf", 1, "alpha"),
		textCand("a.pdf", 2, "alpha"),
		textCand("b.pdf", 4, "beta"),
	}, 5000)

	want := "From 1. a.pdf (Page 1)\nalpha\n\nFrom 3. b.pdf (Page 4)\nbeta"
	if got != want {
		t.Fatalf("unexpected context:\n%q\nwant:\n%q", got, want)
	}
}

func TestAssembleContextExcludesBlockCrossingLimit(t *testing.T) {
	cands := []domain.Candidate{
		textCand("a.pdf", 1, "alpha"),
		textCand("a.pdf", 1, "gamma"),
	}

	// each block is 30 characters long
	got := AssembleContext(cands, 40)
	if got != "From 1. a.pdf (Page 1)\nalpha" {
		t.Fatalf("unexpected context %q", got)
	}

	got = AssembleContext(cands, 60)
	if !strings.HasSuffix(got, "gamma") {
		t.Fatalf("expected both blocks within limit, got %q", got)
	}
}

func TestAssembleContextFingerprintsFirstHundredCharacters(t *testing.T) {
	prefix := strings.Repeat("x", 100)
	got := AssembleContext([]domain.Candidate{
		textCand("a.pdf", 1, prefix+" one"),
		textCand("a.pdf", 2, prefix+" two"),
	}, 5000)
	if strings.Contains(got, "two") {
		t.Fatalf("expected near-duplicate passage to be skipped, got %q", got)
	}
}
