package rag

import (
	"math"
	"regexp"
	"strings"
)

var lexicalTokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

func lexicalTokens(text string) []string {
	return lexicalTokenPattern.FindAllString(strings.ToLower(text), -1)
}

// LexicalScores computes TF-IDF cosine similarity between query and each text.
// The corpus for document frequencies is the query plus texts, idf is smoothed
// as ln((1+n)/(1+df))+1 and vectors are L2-normalized.
func LexicalScores(query string, texts []string) []float64 {
	scores := make([]float64, len(texts))
	if len(texts) == 0 {
		return scores
	}

	docs := make([][]string, 0, len(texts)+1)
	docs = append(docs, lexicalTokens(query))
	for _, text := range texts {
		docs = append(docs, lexicalTokens(text))
	}

	df := make(map[string]int)
	for _, tokens := range docs {
		seen := make(map[string]struct{}, len(tokens))
		for _, token := range tokens {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			df[token]++
		}
	}

	n := float64(len(docs))
	idf := func(token string) float64 {
		return math.Log((1+n)/(1+float64(df[token]))) + 1
	}

	queryVec := tfidfVector(docs[0], idf)
	if len(queryVec) == 0 {
		return scores
	}
	for i := range texts {
		docVec := tfidfVector(docs[i+1], idf)
		var dot float64
		for token, weight := range queryVec {
			dot += weight * docVec[token]
		}
		scores[i] = dot
	}
	return scores
}

func tfidfVector(tokens []string, idf func(string) float64) map[string]float64 {
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}

	var norm float64
	for token, tf := range counts {
		w := tf * idf(token)
		counts[token] = w
		norm += w * w
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for token := range counts {
		counts[token] /= norm
	}
	return counts
}
