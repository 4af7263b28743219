package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/docqa/internal/core/rag"
)

type profilesFile struct {
	General  rag.Profile `yaml:"general"`
	Document rag.Profile `yaml:"document"`
}

// LoadProfiles overlays the YAML file at path onto base. Keys missing from
// the file keep the base value. An empty path returns base unchanged.
//
//	general:
//	  top_k: 12
//	  similarity_threshold: 0.25
//	document:
//	  lexical_threshold: 0.02
func LoadProfiles(path string, base rag.Profiles) (rag.Profiles, error) {
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return rag.Profiles{}, fmt.Errorf("read profiles file: %w", err)
	}

	file := profilesFile{General: base.General, Document: base.Document}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return rag.Profiles{}, fmt.Errorf("decode profiles file %s: %w", path, err)
	}
	file.General.Name = rag.ProfileGeneral
	file.Document.Name = rag.ProfileDocument

	for _, p := range []rag.Profile{file.General, file.Document} {
		if err := validateProfile(p); err != nil {
			return rag.Profiles{}, fmt.Errorf("profiles file %s: %w", path, err)
		}
	}
	return rag.Profiles{General: file.General, Document: file.Document}, nil
}

func validateProfile(p rag.Profile) error {
	switch {
	case p.TopK < 1:
		return fmt.Errorf("profile %s: top_k must be >= 1", p.Name)
	case p.MaxResults < 1:
		return fmt.Errorf("profile %s: max_results must be >= 1", p.Name)
	case p.SimilarityThreshold < 0 || p.SimilarityThreshold > 1:
		return fmt.Errorf("profile %s: similarity_threshold must be within [0,1]", p.Name)
	case p.LexicalThreshold < 0 || p.LexicalThreshold > 1:
		return fmt.Errorf("profile %s: lexical_threshold must be within [0,1]", p.Name)
	}
	return nil
}
