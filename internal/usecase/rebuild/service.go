// Package rebuild loads the corpus files, embeds every record, and
// publishes fresh index snapshots. All-or-nothing: any failure leaves
// the previous snapshot current.
package rebuild

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ragfolio/ragfolio/internal/domain"
	"github.com/ragfolio/ragfolio/internal/index"
	"github.com/ragfolio/ragfolio/internal/metrics"
)

// Service rebuilds per-agent index snapshots. Safe to call while queries
// are in flight: readers keep the snapshot they captured until the swap.
type Service struct {
	loader CorpusLoader
	embed  Embedder
	stores map[domain.Kind]Publisher
	logger *zap.Logger
}

// New creates the rebuild service.
func New(loader CorpusLoader, embed Embedder, stores map[domain.Kind]Publisher, logger *zap.Logger) *Service {
	return &Service{loader: loader, embed: embed, stores: stores, logger: logger}
}

// Rebuild loads, embeds, and publishes one kind's snapshot. Idempotent;
// an embedding failure reports domain.ErrRebuildFailed and keeps the
// previous snapshot authoritative.
func (s *Service) Rebuild(ctx context.Context, kind domain.Kind) error {
	store, ok := s.stores[kind]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownAgent, kind)
	}

	agent := string(kind)
	start := time.Now()

	records, err := s.loader.Load(kind)
	if err != nil {
		metrics.IndexRebuildsTotal.WithLabelValues(agent, "failure").Inc()
		return fmt.Errorf("%w: load corpus %s: %w", domain.ErrRebuildFailed, kind, err)
	}

	if len(records) == 0 {
		store.Publish(index.NewSnapshot(kind, nil, time.Now()))
		metrics.IndexRebuildsTotal.WithLabelValues(agent, "success").Inc()
		metrics.IndexRecords.WithLabelValues(agent).Set(0)
		s.logger.Warn("corpus is empty, published empty snapshot", zap.String("agent", agent))
		return nil
	}

	texts := make([]string, len(records))
	for i := range records {
		texts[i] = records[i].EmbeddingText()
	}

	batch, err := s.embed.BatchEmbed(ctx, texts)
	if err != nil {
		metrics.IndexRebuildsTotal.WithLabelValues(agent, "failure").Inc()
		return fmt.Errorf("%w: embed corpus %s: %w", domain.ErrRebuildFailed, kind, err)
	}
	if len(batch.Embeddings) != len(records) {
		metrics.IndexRebuildsTotal.WithLabelValues(agent, "failure").Inc()
		return fmt.Errorf("%w: embed corpus %s: %d vectors for %d records",
			domain.ErrRebuildFailed, kind, len(batch.Embeddings), len(records))
	}

	for i := range records {
		records[i].Embedding = batch.Embeddings[i]
	}

	store.Publish(index.NewSnapshot(kind, records, time.Now()))

	metrics.IndexRebuildsTotal.WithLabelValues(agent, "success").Inc()
	metrics.IndexRecords.WithLabelValues(agent).Set(float64(len(records)))

	s.logger.Info("index rebuilt",
		zap.String("agent", agent),
		zap.Int("records", len(records)),
		zap.Int("tokens", batch.TotalTokens),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// RebuildAll rebuilds every configured kind, continuing past per-kind
// failures and reporting them joined.
func (s *Service) RebuildAll(ctx context.Context) error {
	var firstErr error
	for _, kind := range domain.Kinds() {
		if _, ok := s.stores[kind]; !ok {
			continue
		}
		if err := s.Rebuild(ctx, kind); err != nil {
			s.logger.Error("rebuild failed", zap.String("agent", string(kind)), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
