package query

import (
	"context"

	"github.com/ragfolio/ragfolio/internal/domain"
	"github.com/ragfolio/ragfolio/internal/guard"
	"github.com/ragfolio/ragfolio/internal/index"
)

// Embedder vectorizes the raw query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Answerer generates the final answer from the assembled prompt.
type Answerer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SnapshotSource exposes the current index snapshot for one agent kind.
type SnapshotSource interface {
	Current() *index.Snapshot
}

// Ranker scores snapshot records against the query vector and keywords.
type Ranker interface {
	Rank(queryVec []float32, keywords []string, snap *index.Snapshot, k int) ([]domain.ScoredResult, error)
}

// Screener classifies raw queries before any retrieval or model work.
type Screener interface {
	Classify(query string) guard.Verdict
}
