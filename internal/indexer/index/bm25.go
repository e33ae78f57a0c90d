package index

import (
	"log/slog"
	"math"
	"sort"
	"sync"
)

// BM25 is an in-memory lexical index over a positional corpus: document i
// always corresponds to record i of the caller. It starts unfit; Fit builds a
// complete new state and swaps it in, so readers never observe a partial fit.
type BM25 struct {
	mu     sync.RWMutex
	params Params
	state  *fitState
	logger *slog.Logger
}

type fitState struct {
	n            int
	docLengths   []int
	avgDocLength float64
	docFreqs     map[string]int
	idf          map[string]float64
	termFreqs    []map[string]int
}

func New(params Params) *BM25 {
	return &BM25{
		params: params,
		logger: slog.Default().With("component", "bm25"),
	}
}

func (x *BM25) Params() Params {
	return x.params
}

// Fit indexes corpus, replacing any previous state. An empty corpus is a
// valid fit with zero documents.
func (x *BM25) Fit(corpus [][]string) {
	st := &fitState{
		n:          len(corpus),
		docLengths: make([]int, len(corpus)),
		docFreqs:   make(map[string]int),
		idf:        make(map[string]float64),
		termFreqs:  make([]map[string]int, len(corpus)),
	}
	totalTokens := 0
	for i, doc := range corpus {
		st.docLengths[i] = len(doc)
		totalTokens += len(doc)
		tf := make(map[string]int, len(doc))
		for _, term := range doc {
			tf[term]++
		}
		st.termFreqs[i] = tf
		for term := range tf {
			st.docFreqs[term]++
		}
	}
	if st.n > 0 {
		st.avgDocLength = float64(totalTokens) / float64(st.n)
	}
	for term, df := range st.docFreqs {
		st.idf[term] = computeIDF(st.n, df)
	}

	x.mu.Lock()
	x.state = st
	x.mu.Unlock()

	x.logger.Debug("corpus fitted",
		"documents", st.n,
		"vocabulary", len(st.docFreqs),
		"avg_doc_length", st.avgDocLength,
	)
}

func (x *BM25) snapshot() *fitState {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.state
}

// Fitted reports whether Fit has been called at least once.
func (x *BM25) Fitted() bool {
	return x.snapshot() != nil
}

func (x *BM25) DocCount() int {
	st := x.snapshot()
	if st == nil {
		return 0
	}
	return st.n
}

// IDF returns the inverse document frequency of term, or 0 if the term is
// not in the vocabulary.
func (x *BM25) IDF(term string) float64 {
	st := x.snapshot()
	if st == nil {
		return 0
	}
	return st.idf[term]
}

// Score returns the BM25 score of doc for the query tokens. Out-of-range
// documents and an unfit index score 0.
func (x *BM25) Score(query []string, doc int) float64 {
	st := x.snapshot()
	if st == nil {
		return 0
	}
	return x.score(st, query, doc)
}

func (x *BM25) score(st *fitState, query []string, doc int) float64 {
	if doc < 0 || doc >= st.n {
		return 0
	}
	tfs := st.termFreqs[doc]
	docLen := float64(st.docLengths[doc])
	var score float64
	for _, term := range query {
		idf, ok := st.idf[term]
		if !ok {
			continue
		}
		tf := tfs[term]
		if tf == 0 {
			continue
		}
		score += idf * x.computeTFNorm(float64(tf), docLen, st.avgDocLength)
	}
	return score
}

// ScoreAll returns one score per document in corpus order.
func (x *BM25) ScoreAll(query []string) []float64 {
	st := x.snapshot()
	if st == nil {
		return []float64{}
	}
	scores := make([]float64, st.n)
	for i := range scores {
		scores[i] = x.score(st, query, i)
	}
	return scores
}

// TopK returns up to k documents with a strictly positive score, best first.
// Ties keep corpus order.
func (x *BM25) TopK(query []string, k int) []ScoredDoc {
	result := make([]ScoredDoc, 0)
	if k <= 0 {
		return result
	}
	for i, s := range x.ScoreAll(query) {
		if s > 0 {
			result = append(result, ScoredDoc{DocIndex: i, Score: s})
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Score > result[j].Score
	})
	if len(result) > k {
		result = result[:k]
	}
	return result
}

func (x *BM25) QueryMatchStats(query []string) MatchStats {
	stats := MatchStats{
		QueryTerms:    len(query),
		MatchedList:   make([]string, 0),
		UnmatchedList: make([]string, 0),
	}
	if len(query) == 0 {
		return stats
	}
	st := x.snapshot()
	var idfSum float64
	for _, term := range query {
		if st != nil {
			if idf, ok := st.idf[term]; ok {
				stats.MatchedList = append(stats.MatchedList, term)
				idfSum += idf
				continue
			}
		}
		stats.UnmatchedList = append(stats.UnmatchedList, term)
	}
	stats.MatchedTerms = len(stats.MatchedList)
	stats.TermMatchRate = float64(stats.MatchedTerms) / float64(stats.QueryTerms)
	if stats.MatchedTerms > 0 {
		stats.AvgIDF = idfSum / float64(stats.MatchedTerms)
	}
	return stats
}

func (x *BM25) Stats() CorpusStats {
	stats := CorpusStats{K1: x.params.K1, B: x.params.B}
	st := x.snapshot()
	if st == nil || st.n == 0 {
		return stats
	}
	stats.NumDocuments = st.n
	stats.AvgDocLength = st.avgDocLength
	stats.VocabularySize = len(st.docFreqs)
	stats.MinDocLength = st.docLengths[0]
	stats.MaxDocLength = st.docLengths[0]
	for _, l := range st.docLengths[1:] {
		stats.MinDocLength = min(stats.MinDocLength, l)
		stats.MaxDocLength = max(stats.MaxDocLength, l)
	}
	return stats
}

func computeIDF(totalDocs int, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func (x *BM25) computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	k1, b := x.params.K1, x.params.B
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
