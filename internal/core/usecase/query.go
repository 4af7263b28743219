package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"

	"github.com/kirillkom/docqa/internal/core/domain"
	"github.com/kirillkom/docqa/internal/core/ports"
	"github.com/kirillkom/docqa/internal/core/rag"
)

// Corpus is the read side of the Embedding Index used by queries.
type Corpus interface {
	Len() int
	Scoped(filter domain.ScopeFilter) []domain.Chunk
}

// QueryObserver sees every finished query result, admitted or rejected.
type QueryObserver interface {
	ObserveQuery(result *domain.QueryResult)
}

type QueryOptions struct {
	Profiles        rag.Profiles
	Gate            rag.Gate
	ContextMaxChars int
	MaxCitations    int
	Observer        QueryObserver
	Logger          *slog.Logger
}

type QueryUseCase struct {
	corpus    Corpus
	embedder  ports.Embedder
	generator ports.AnswerGenerator
	opts      QueryOptions
}

func NewQueryUseCase(
	corpus Corpus,
	embedder ports.Embedder,
	generator ports.AnswerGenerator,
	opts QueryOptions,
) *QueryUseCase {
	if opts.Profiles == (rag.Profiles{}) {
		opts.Profiles = rag.DefaultProfiles()
	}
	if opts.Gate == (rag.Gate{}) {
		opts.Gate = rag.NewGate(rag.DefaultMinConfidence, rag.SignalSimilarity)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &QueryUseCase{
		corpus:    corpus,
		embedder:  embedder,
		generator: generator,
		opts:      opts,
	}
}

// AnswerQuery retrieves grounding passages for question within filter and,
// when the confidence gate admits them, asks the generator for an answer.
// Rejections are returned as results; collaborator failures as
// domain.ErrCollaboratorUnavailable.
func (uc *QueryUseCase) AnswerQuery(ctx context.Context, question string, filter domain.ScopeFilter) (*domain.QueryResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer query", errors.New("question is required"))
	}

	profile := uc.opts.Profiles.For(filter)
	result := &domain.QueryResult{
		Citations: []domain.Citation{},
		FollowUps: []string{},
		Profile:   profile.Name,
	}

	corpusSize := uc.corpus.Len()
	if corpusSize == 0 {
		return uc.finish(uc.reject(result, rag.Verdict{Reason: domain.RejectionEmptyCorpus}, filter)), nil
	}
	chunks := uc.corpus.Scoped(filter)
	if len(chunks) == 0 {
		return uc.finish(uc.reject(result, uc.opts.Gate.Evaluate(corpusSize, 0, filter, nil), filter)), nil
	}

	queryVector, err := uc.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCollaboratorUnavailable, "embed query", err)
	}

	candidates := rag.Rank(queryVector, question, chunks, profile)
	result.CandidateCount = len(candidates)

	verdict := uc.opts.Gate.Evaluate(corpusSize, len(chunks), filter, candidates)
	if !verdict.Admitted {
		return uc.finish(uc.reject(result, verdict, filter)), nil
	}

	contextText := rag.AssembleContext(candidates, uc.opts.ContextMaxChars)
	raw, err := uc.generator.GenerateAnswer(ctx, question, contextText)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCollaboratorUnavailable, "generate answer", err)
	}

	answer, followUps := SplitFollowUps(raw)
	answer = DedupeSentences(answer)
	if len(followUps) == 0 {
		followUps = SuggestFollowUps(answer)
	}

	result.Answer = answer
	result.FollowUps = followUps
	result.Confidence = round4(verdict.Confidence)
	result.HasRelevantInfo = true
	result.Citations = rag.AggregateCitations(candidates, question, uc.opts.MaxCitations)
	return uc.finish(result), nil
}

func (uc *QueryUseCase) reject(result *domain.QueryResult, verdict rag.Verdict, filter domain.ScopeFilter) *domain.QueryResult {
	rejection := rag.RejectionFor(verdict.Reason, strings.TrimSpace(filter.DocumentID))
	result.Confidence = round4(verdict.Confidence)
	result.HasRelevantInfo = false
	result.RejectionReason = verdict.Reason
	result.Explanation = rejection.Message
	result.FollowUps = rejection.FollowUps
	return result
}

func (uc *QueryUseCase) finish(result *domain.QueryResult) *domain.QueryResult {
	uc.opts.Logger.Info("rag_query",
		"profile", result.Profile,
		"candidates", result.CandidateCount,
		"confidence", result.Confidence,
		"admitted", result.HasRelevantInfo,
		"reason", string(result.RejectionReason),
		"citations", len(result.Citations),
	)
	if uc.opts.Observer != nil {
		uc.opts.Observer.ObserveQuery(result)
	}
	return result
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
