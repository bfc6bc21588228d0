package index

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ragfolio/ragfolio/internal/domain"
)

const (
	// keywordFactor and boostFactor are the multiplicative dampeners
	// applied per keyword match and per field-boost unit. Bounded so no
	// single factor dominates raw similarity.
	keywordFactor = 0.1
	boostFactor   = 0.1
)

// Weights is the per-field boost table. A field that contains at least
// one query keyword contributes its weight once; the sum is capped.
type Weights struct {
	Fields   map[string]float64
	MaxBoost float64
}

// DefaultWeights returns the standard field boost table: title hits count
// most, short structured fields next, long free text least.
func DefaultWeights() Weights {
	return Weights{
		Fields: map[string]float64{
			"title":        1.0,
			"organization": 0.6,
			"category":     0.6,
			"client":       0.6,
			"location":     0.6,
			"year":         0.6,
			"description":  0.3,
			"features":     0.3,
			"specialties":  0.3,
			"projects":     0.3,
		},
		MaxBoost: 3.0,
	}
}

// weight returns the boost weight for a field, with a free-text default
// for names outside the table.
func (w Weights) weight(field string) float64 {
	if v, ok := w.Fields[field]; ok {
		return v
	}
	return 0.3
}

// Scorer ranks snapshot records with the hybrid score:
// cosine similarity boosted multiplicatively by keyword matches and
// field-weighted hits.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given boost weights.
func NewScorer(weights Weights) *Scorer {
	if weights.MaxBoost <= 0 {
		weights.MaxBoost = DefaultWeights().MaxBoost
	}
	if weights.Fields == nil {
		weights.Fields = DefaultWeights().Fields
	}
	return &Scorer{weights: weights}
}

// Rank scores every record in the snapshot and returns the top k by
// final score. Ties keep snapshot order (stable sort), so ranking is
// deterministic and reproducible. An empty snapshot yields an empty
// result, never an error.
func (sc *Scorer) Rank(
	queryVec []float32, keywords []string, snap *Snapshot, k int,
) ([]domain.ScoredResult, error) {
	if snap == nil || snap.Len() == 0 {
		return []domain.ScoredResult{}, nil
	}
	if len(queryVec) != snap.Dim() {
		return nil, fmt.Errorf("%w: query dim %d, index dim %d",
			domain.ErrVectorDimMismatch, len(queryVec), snap.Dim())
	}

	results := make([]domain.ScoredResult, 0, snap.Len())
	for i := range snap.Records() {
		rec := snap.Records()[i]

		vecScore := clamp01(cosine(queryVec, rec.Embedding))
		matches, boost := sc.keywordScore(&rec, keywords)

		final := vecScore *
			(1 + keywordFactor*float64(matches)) *
			(1 + boostFactor*boost)

		results = append(results, domain.NewScoredResult(rec, vecScore, matches, boost, final))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore() > results[j].FinalScore()
	})

	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// keywordScore computes the distinct keyword match count across all
// searchable fields and the capped field-weighted boost.
func (sc *Scorer) keywordScore(rec *domain.Record, keywords []string) (int, float64) {
	if len(keywords) == 0 {
		return 0, 0
	}

	fields := rec.SearchFields()
	lowered := make([]string, len(fields))
	for i, f := range fields {
		lowered[i] = strings.ToLower(f.Text)
	}

	matched := 0
	boosted := make(map[string]bool, len(fields))
	for _, kw := range keywords {
		hit := false
		for i, f := range fields {
			if strings.Contains(lowered[i], kw) {
				hit = true
				boosted[f.Name] = true
			}
		}
		if hit {
			matched++
		}
	}

	boost := 0.0
	for name := range boosted {
		boost += sc.weights.weight(name)
	}
	if boost > sc.weights.MaxBoost {
		boost = sc.weights.MaxBoost
	}
	return matched, boost
}

// cosine computes cosine similarity between two equal-length vectors.
// Zero-magnitude vectors score 0.
func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
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
