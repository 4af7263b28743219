package rag

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/docqa/internal/core/domain"
)

const (
	DefaultMaxCitations = 5
	maxKeywords         = 10
	excerptRunes        = 220
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

type citationGroup struct {
	source         string
	candidates     []domain.Candidate
	bestSimilarity float64
	bestLexical    float64
	bestCombined   float64
	keywords       map[string]struct{}
}

// AggregateCitations groups candidates by source document and returns at most
// maxDocuments citations ordered by best similarity, then best combined score.
func AggregateCitations(candidates []domain.Candidate, query string, maxDocuments int) []domain.Citation {
	if maxDocuments <= 0 {
		maxDocuments = DefaultMaxCitations
	}
	if len(candidates) == 0 {
		return []domain.Citation{}
	}

	ranked := append([]domain.Candidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Combined() > ranked[j].Combined()
	})

	queryTokens := wordSet(query)
	groups := make([]*citationGroup, 0)
	bySource := make(map[string]*citationGroup)
	for _, c := range ranked {
		source := sourceName(c.Chunk)
		g, ok := bySource[source]
		if !ok {
			g = &citationGroup{source: source, keywords: make(map[string]struct{})}
			bySource[source] = g
			groups = append(groups, g)
		}
		g.candidates = append(g.candidates, c)
		g.bestSimilarity = math.Max(g.bestSimilarity, c.Similarity)
		g.bestLexical = math.Max(g.bestLexical, c.LexicalScore)
		g.bestCombined = math.Max(g.bestCombined, c.Combined())

		if len(queryTokens) == 0 {
			continue
		}
		for token := range wordSet(c.Chunk.Text) {
			if _, ok := queryTokens[token]; ok {
				g.keywords[token] = struct{}{}
			}
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].bestSimilarity != groups[j].bestSimilarity {
			return groups[i].bestSimilarity > groups[j].bestSimilarity
		}
		return groups[i].bestCombined > groups[j].bestCombined
	})
	if len(groups) > maxDocuments {
		groups = groups[:maxDocuments]
	}

	out := make([]domain.Citation, 0, len(groups))
	for _, g := range groups {
		keywords := make([]string, 0, len(g.keywords))
		for k := range g.keywords {
			keywords = append(keywords, k)
		}
		sort.Strings(keywords)
		keywordCount := len(keywords)
		if len(keywords) > maxKeywords {
			keywords = keywords[:maxKeywords]
		}

		// candidates are already in descending combined order
		best := g.candidates[0]
		out = append(out, domain.Citation{
			Source:          g.source,
			Pages:           orderedPages(g.candidates),
			Similarity:      round4(g.bestSimilarity),
			LexicalScore:    round4(g.bestLexical),
			CombinedScore:   round4(g.bestCombined),
			MatchedKeywords: keywords,
			KeywordCount:    keywordCount,
			Excerpt:         excerpt(best.Chunk.Text),
		})
	}
	return out
}

func orderedPages(candidates []domain.Candidate) []int {
	best := make(map[int]float64, len(candidates))
	pages := make([]int, 0, len(candidates))
	for _, c := range candidates {
		score, ok := best[c.Chunk.Page]
		if !ok {
			pages = append(pages, c.Chunk.Page)
			best[c.Chunk.Page] = c.Combined()
			continue
		}
		if c.Combined() > score {
			best[c.Chunk.Page] = c.Combined()
		}
	}
	sort.SliceStable(pages, func(i, j int) bool {
		if best[pages[i]] != best[pages[j]] {
			return best[pages[i]] > best[pages[j]]
		}
		return pages[i] < pages[j]
	})
	return pages
}

func wordSet(text string) map[string]struct{} {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func excerpt(text string) string {
	if utf8.RuneCountInString(text) > excerptRunes {
		text = string([]rune(text)[:excerptRunes])
	}
	return strings.TrimSpace(text)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
