package rebuild

import (
	"context"

	"github.com/ragfolio/ragfolio/internal/domain"
	"github.com/ragfolio/ragfolio/internal/index"
)

// CorpusLoader delivers one kind's records wholesale from the corpus files.
type CorpusLoader interface {
	Load(kind domain.Kind) ([]domain.Record, error)
}

// Embedder vectorizes record texts for the snapshot. Providers without a
// native batch path are wrapped by domain.BatchFallback at wiring time.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Publisher receives the fully built snapshot for one kind.
type Publisher interface {
	Current() *index.Snapshot
	Publish(snap *index.Snapshot)
}
