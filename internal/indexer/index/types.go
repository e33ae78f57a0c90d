package index

// Params holds the BM25 tuning constants.
type Params struct {
	K1 float64 `json:"k1" yaml:"k1"`
	B  float64 `json:"b" yaml:"b"`
}

// DefaultParams returns k1=1.5 and b=0.75.
func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75}
}

type ScoredDoc struct {
	DocIndex int     `json:"doc_index"`
	Score    float64 `json:"score"`
}

// MatchStats explains how a query overlaps the fitted vocabulary. It is
// diagnostic only and never feeds into ranking.
type MatchStats struct {
	QueryTerms    int      `json:"query_terms"`
	MatchedTerms  int      `json:"matched_terms"`
	TermMatchRate float64  `json:"term_match_rate"`
	MatchedList   []string `json:"matched_term_list"`
	UnmatchedList []string `json:"unmatched_term_list"`
	AvgIDF        float64  `json:"avg_idf"`
}

type CorpusStats struct {
	NumDocuments   int     `json:"num_documents"`
	AvgDocLength   float64 `json:"avg_doc_length"`
	VocabularySize int     `json:"vocabulary_size"`
	MinDocLength   int     `json:"min_doc_length"`
	MaxDocLength   int     `json:"max_doc_length"`
	K1             float64 `json:"k1"`
	B              float64 `json:"b"`
}
