package rag

import "github.com/kirillkom/docqa/internal/core/domain"

const (
	ProfileGeneral  = "general"
	ProfileDocument = "document"
)

// Profile is a named set of retrieval thresholds.
type Profile struct {
	Name                string  `yaml:"-" json:"name"`
	TopK                int     `yaml:"top_k" json:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`
	LexicalThreshold    float64 `yaml:"lexical_threshold" json:"lexical_threshold"`
	MaxResults          int     `yaml:"max_results" json:"max_results"`
}

func DefaultGeneralProfile() Profile {
	return Profile{
		Name:                ProfileGeneral,
		TopK:                10,
		SimilarityThreshold: 0.3,
		LexicalThreshold:    0.05,
		MaxResults:          5,
	}
}

func DefaultDocumentProfile() Profile {
	return Profile{
		Name:                ProfileDocument,
		TopK:                20,
		SimilarityThreshold: 0.05,
		LexicalThreshold:    0.01,
		MaxResults:          5,
	}
}

type Profiles struct {
	General  Profile
	Document Profile
}

func DefaultProfiles() Profiles {
	return Profiles{
		General:  DefaultGeneralProfile(),
		Document: DefaultDocumentProfile(),
	}
}

// For picks the document profile for document-scoped queries.
func (p Profiles) For(filter domain.ScopeFilter) Profile {
	if filter.IsDocumentScoped() {
		return p.Document.normalize(DefaultDocumentProfile())
	}
	return p.General.normalize(DefaultGeneralProfile())
}

func (p Profile) normalize(def Profile) Profile {
	out := p
	if out.Name == "" {
		out.Name = def.Name
	}
	if out.TopK <= 0 {
		out.TopK = def.TopK
	}
	if out.MaxResults <= 0 {
		out.MaxResults = def.MaxResults
	}
	if out.SimilarityThreshold < 0 {
		out.SimilarityThreshold = 0
	}
	if out.LexicalThreshold < 0 {
		out.LexicalThreshold = 0
	}
	return out
}
