package domain

// ScoredResult is a single ranked retrieval hit. Derived per query,
// never persisted.
type ScoredResult struct {
	record         Record
	vectorScore    float64
	keywordMatches int
	fieldBoost     float64
	finalScore     float64
}

// NewScoredResult creates a scored retrieval result.
func NewScoredResult(
	record Record, vectorScore float64,
	keywordMatches int, fieldBoost, finalScore float64,
) ScoredResult {
	return ScoredResult{
		record:         record,
		vectorScore:    vectorScore,
		keywordMatches: keywordMatches,
		fieldBoost:     fieldBoost,
		finalScore:     finalScore,
	}
}

// Record returns the matched record.
func (r *ScoredResult) Record() Record { return r.record }

// VectorScore returns the cosine similarity component, clamped to [0,1].
func (r *ScoredResult) VectorScore() float64 { return r.vectorScore }

// KeywordMatches returns the count of distinct matched query keywords.
func (r *ScoredResult) KeywordMatches() int { return r.keywordMatches }

// FieldBoost returns the weighted per-field hit boost.
func (r *ScoredResult) FieldBoost() float64 { return r.fieldBoost }

// FinalScore returns the combined ranking score.
func (r *ScoredResult) FinalScore() float64 { return r.finalScore }
