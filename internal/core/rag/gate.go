package rag

import "github.com/kirillkom/docqa/internal/core/domain"

type ConfidenceSignal string

const (
	// SignalSimilarity averages vector similarity only.
	SignalSimilarity ConfidenceSignal = "similarity"
	// SignalCombined averages similarity plus lexical score, capped at 1.
	SignalCombined ConfidenceSignal = "combined"

	confidenceWindow = 3

	DefaultMinConfidence = 0.15
)

type Gate struct {
	MinConfidence float64
	Signal        ConfidenceSignal
}

func NewGate(minConfidence float64, signal ConfidenceSignal) Gate {
	if signal != SignalCombined {
		signal = SignalSimilarity
	}
	return Gate{MinConfidence: minConfidence, Signal: signal}
}

// Score is the mean per-candidate confidence over the top three candidates,
// clamped to [0,1]. No candidates means zero confidence.
func (g Gate) Score(candidates []domain.Candidate) float64 {
	if len(candidates) == 0 {
		return 0
	}
	n := len(candidates)
	if n > confidenceWindow {
		n = confidenceWindow
	}
	var sum float64
	for _, c := range candidates[:n] {
		sum += g.candidateConfidence(c)
	}
	return clamp01(sum / float64(n))
}

func (g Gate) candidateConfidence(c domain.Candidate) float64 {
	if g.Signal == SignalCombined {
		return clamp01(c.Combined())
	}
	return clamp01(c.Similarity)
}

func (g Gate) Admit(confidence float64) bool {
	return confidence > 0 && confidence >= g.MinConfidence
}

type Verdict struct {
	Confidence float64
	Admitted   bool
	Reason     domain.RejectionReason
}

// Evaluate decides whether candidates ground an answer. corpusSize is the
// number of indexed chunks before scope filtering, scopedSize the number
// after it.
func (g Gate) Evaluate(corpusSize, scopedSize int, filter domain.ScopeFilter, candidates []domain.Candidate) Verdict {
	switch {
	case corpusSize == 0:
		return Verdict{Reason: domain.RejectionEmptyCorpus}
	case scopedSize == 0:
		return Verdict{Reason: domain.RejectionEmptyScope}
	case len(candidates) == 0 && filter.IsDocumentScoped():
		return Verdict{Reason: domain.RejectionEmptyScope}
	}

	confidence := g.Score(candidates)
	if !g.Admit(confidence) {
		return Verdict{Confidence: confidence, Reason: domain.RejectionLowConfidence}
	}
	return Verdict{Confidence: confidence, Admitted: true}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
