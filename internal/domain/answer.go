package domain

import "context"

// Answerer is the natural-language answer model contract. It receives
// only the bounded retrieval context plus the already-guarded query.
type Answerer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
