// Package query orchestrates the answer pipeline: guard, embed, rank,
// context assembly, answer model, metrics.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ragfolio/ragfolio/internal/domain"
	"github.com/ragfolio/ragfolio/internal/metrics"
	"github.com/ragfolio/ragfolio/internal/text"
)

// agentRole describes each agent kind in the answer prompt.
var agentRole = map[domain.Kind]struct {
	name    string
	subject string
	noMatch string
}{
	domain.KindProjects: {
		name:    "Projects Agent",
		subject: "past construction projects",
		noMatch: "I couldn't find any projects matching your query. Would you like to try a different search term?",
	},
	domain.KindAwards: {
		name:    "Awards Agent",
		subject: "awards and recognition",
		noMatch: "I couldn't find any awards matching your query. Would you like to try a different search term?",
	},
}

// Options tunes the orchestrator. Zero values fall back to safe defaults
// through config.ApplyDefaults; the service trusts its inputs.
type Options struct {
	TopK            int
	MinScore        float64
	ExternalTimeout time.Duration
	RetryAttempts   int
	RetryBackoff    time.Duration
	MaxContextChars int
	CompanyName     string
}

// Result is one answered query.
type Result struct {
	Answer  string
	Results []domain.ScoredResult
	Elapsed time.Duration
}

// Service runs the query pipeline for all agent kinds. Stateless between
// requests and safe for concurrent use.
type Service struct {
	screen  Screener
	embed   Embedder
	answer  Answerer
	rank    Ranker
	sources map[domain.Kind]SnapshotSource
	usage   *metrics.Set
	opts    Options
	logger  *zap.Logger
}

// New creates the query service.
func New(
	screen Screener,
	embed Embedder,
	answer Answerer,
	rank Ranker,
	sources map[domain.Kind]SnapshotSource,
	usage *metrics.Set,
	opts Options,
	logger *zap.Logger,
) *Service {
	return &Service{
		screen:  screen,
		embed:   embed,
		answer:  answer,
		rank:    rank,
		sources: sources,
		usage:   usage,
		opts:    opts,
		logger:  logger,
	}
}

// Ask answers a natural-language query against one agent's corpus.
// Pipeline order is fixed: malformed check, guard, embed, rank, context,
// answer model, metrics. A blocked query touches neither the index nor
// any provider.
func (s *Service) Ask(ctx context.Context, kind domain.Kind, raw string) (Result, error) {
	receivedAt := time.Now()
	agent := string(kind)

	source, ok := s.sources[kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", domain.ErrUnknownAgent, kind)
	}

	if strings.TrimSpace(raw) == "" {
		return Result{}, domain.ErrMalformedQuery
	}

	if v := s.screen.Classify(raw); v.Suspect {
		s.recordBlocked(kind, raw, v.Rule, receivedAt)
		return Result{}, domain.NewBlocked(v.Rule)
	}

	ranked, err := s.retrieve(ctx, source, raw, s.opts.TopK)
	if err != nil {
		metrics.AgentQueriesTotal.WithLabelValues(agent, "failed").Inc()
		return Result{}, err
	}

	var answer string
	if len(ranked) == 0 {
		// Nothing retrieved: canned answer, the model is not called.
		answer = agentRole[kind].noMatch
	} else {
		prompt := s.buildPrompt(kind, raw, ranked)
		err = s.withRetry(ctx, "generate answer", func(ctx context.Context) error {
			out, genErr := s.answer.Generate(ctx, prompt)
			if genErr != nil {
				return genErr
			}
			answer = out
			return nil
		})
		if err != nil {
			metrics.AgentQueriesTotal.WithLabelValues(agent, "failed").Inc()
			return Result{}, err
		}
	}

	elapsed := time.Since(receivedAt)

	// Metrics recording never fails the request.
	if t := s.usage.ForKind(kind); t != nil {
		t.RecordSuccess(elapsed, raw, receivedAt)
	}
	metrics.AgentQueriesTotal.WithLabelValues(agent, "answered").Inc()
	metrics.AgentQueryDuration.WithLabelValues(agent).Observe(elapsed.Seconds())

	return Result{Answer: answer, Results: ranked, Elapsed: elapsed}, nil
}

// Search runs guard-checked hybrid retrieval without the answer model.
func (s *Service) Search(ctx context.Context, kind domain.Kind, raw string, limit int) ([]domain.ScoredResult, error) {
	source, ok := s.sources[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAgent, kind)
	}

	if strings.TrimSpace(raw) == "" {
		return nil, domain.ErrMalformedQuery
	}

	if v := s.screen.Classify(raw); v.Suspect {
		s.recordBlocked(kind, raw, v.Rule, time.Now())
		return nil, domain.NewBlocked(v.Rule)
	}

	if limit <= 0 {
		limit = s.opts.TopK
	}
	return s.retrieve(ctx, source, raw, limit)
}

// retrieve embeds the query and ranks it against the current snapshot,
// applying the minimum-score threshold.
func (s *Service) retrieve(
	ctx context.Context, source SnapshotSource, raw string, k int,
) ([]domain.ScoredResult, error) {
	var emb domain.EmbeddingResult
	err := s.withRetry(ctx, "embed query", func(ctx context.Context) error {
		var embErr error
		emb, embErr = s.embed.Embed(ctx, raw)
		return embErr
	})
	if err != nil {
		return nil, err
	}

	ranked, err := s.rank.Rank(emb.Embedding, text.Keywords(raw), source.Current(), k)
	if err != nil {
		return nil, fmt.Errorf("rank query: %w", err)
	}

	if s.opts.MinScore > 0 {
		filtered := ranked[:0]
		for _, r := range ranked {
			if r.FinalScore() >= s.opts.MinScore {
				filtered = append(filtered, r)
			}
		}
		ranked = filtered
	}
	return ranked, nil
}

// recordBlocked commits the injection attempt to the per-agent tracker
// and the prometheus mirror. total_queries stays untouched.
func (s *Service) recordBlocked(kind domain.Kind, raw, rule string, at time.Time) {
	if t := s.usage.ForKind(kind); t != nil {
		t.RecordInjection(raw, at)
	}
	metrics.AgentQueriesTotal.WithLabelValues(string(kind), "blocked").Inc()
	metrics.InjectionAttemptsTotal.WithLabelValues(string(kind), rule).Inc()
	s.logger.Warn("query blocked by injection guard",
		zap.String("agent", string(kind)),
		zap.String("rule", rule),
	)
}

// buildPrompt assembles the answer-model prompt: agent role, the user
// query, and the retrieved records bounded by the context budget.
func (s *Service) buildPrompt(kind domain.Kind, raw string, ranked []domain.ScoredResult) string {
	role := agentRole[kind]

	var b strings.Builder
	fmt.Fprintf(&b,
		"You are the %s for %s. Your role is to provide accurate information about %s's %s.\n\n",
		role.name, s.opts.CompanyName, s.opts.CompanyName, role.subject)
	fmt.Fprintf(&b, "USER QUERY: %s\n\nDATA:\n", raw)

	budget := s.opts.MaxContextChars
	for i := range ranked {
		rec := ranked[i].Record()
		entry := fmt.Sprintf("--- Result %d ---\n%s\n", i+1, rec.ContextText())
		if budget > 0 && b.Len()+len(entry) > budget {
			break
		}
		b.WriteString(entry)
	}

	fmt.Fprintf(&b,
		"\nBased on the information provided, respond to the user's query about %s's %s. "+
			"Present the information in a clear, concise, and helpful manner. "+
			"If the provided data doesn't contain relevant information to answer the query, "+
			"say that you don't have that specific information.\n\nRESPONSE:",
		s.opts.CompanyName, role.subject)

	return b.String()
}

// withRetry runs an external call with a per-attempt timeout and linear
// backoff. The final error always wraps domain.ErrUpstreamUnavailable so
// provider failures are never mistaken for blocked or empty results.
func (s *Service) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := s.opts.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w: %w", op, domain.ErrUpstreamUnavailable, ctx.Err())
			case <-time.After(s.opts.RetryBackoff * time.Duration(attempt)):
			}
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if s.opts.ExternalTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, s.opts.ExternalTimeout)
		}
		lastErr = fn(attemptCtx)
		cancel()

		if lastErr == nil {
			return nil
		}
		s.logger.Warn("external call failed",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	if errors.Is(lastErr, domain.ErrUpstreamUnavailable) {
		return fmt.Errorf("%s after %d attempts: %w", op, attempts, lastErr)
	}
	return fmt.Errorf("%s after %d attempts: %w: %w", op, attempts, domain.ErrUpstreamUnavailable, lastErr)
}
