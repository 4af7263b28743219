package domain

// Candidate is a chunk scored for one query. It borrows the chunk from the
// index and must not outlive the query.
type Candidate struct {
	Chunk        Chunk   `json:"-"`
	Similarity   float64 `json:"similarity"`
	LexicalScore float64 `json:"lexical_score"`
}

func (c Candidate) Combined() float64 {
	return c.Similarity + c.LexicalScore
}

type Citation struct {
	Source          string   `json:"source"`
	Pages           []int    `json:"pages"`
	Similarity      float64  `json:"similarity"`
	LexicalScore    float64  `json:"lexical_score"`
	CombinedScore   float64  `json:"combined_score"`
	MatchedKeywords []string `json:"matched_keywords"`
	KeywordCount    int      `json:"keyword_count"`
	Excerpt         string   `json:"excerpt"`
}

type RejectionReason string

const (
	RejectionNone          RejectionReason = ""
	RejectionEmptyCorpus   RejectionReason = "no_documents"
	RejectionEmptyScope    RejectionReason = "not_in_document"
	RejectionLowConfidence RejectionReason = "no_relevant_info"
)

type QueryResult struct {
	Answer          string          `json:"answer,omitempty"`
	Citations       []Citation      `json:"citations"`
	Confidence      float64         `json:"confidence"`
	HasRelevantInfo bool            `json:"has_relevant_info"`
	RejectionReason RejectionReason `json:"rejection_reason,omitempty"`
	Explanation     string          `json:"explanation,omitempty"`
	FollowUps       []string        `json:"follow_up_questions"`
	Profile         string          `json:"profile"`
	CandidateCount  int             `json:"candidate_count"`
}

type IndexStats struct {
	TotalChunks    int            `json:"total_chunks"`
	Documents      int            `json:"documents"`
	ChunksPerScope map[string]int `json:"chunks_per_scope"`
	Generation     uint64         `json:"generation"`
}
