package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedQuery signals an empty or whitespace-only query,
	// rejected before the guard runs.
	ErrMalformedQuery = errors.New("malformed query")
	// ErrQueryBlocked signals a query rejected by the injection guard.
	ErrQueryBlocked = errors.New("query blocked")
	// ErrUpstreamUnavailable signals an embedding or answer provider
	// failure or timeout after bounded retries.
	ErrUpstreamUnavailable = errors.New("upstream provider unavailable")
	// ErrRebuildFailed signals an index rebuild failure; the previous
	// snapshot remains authoritative.
	ErrRebuildFailed = errors.New("index rebuild failed")
	// ErrUnknownAgent signals an agent kind outside projects/awards.
	ErrUnknownAgent = errors.New("unknown agent kind")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
)

// BlockedError wraps ErrQueryBlocked with the guard rule that matched.
// Callers must be able to tell it apart from an answer with zero matches.
type BlockedError struct {
	Rule string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s: matched rule %q", ErrQueryBlocked.Error(), e.Rule)
}

func (e *BlockedError) Unwrap() error { return ErrQueryBlocked }

// NewBlocked creates a blocked-query error for the given guard rule.
func NewBlocked(rule string) error {
	return &BlockedError{Rule: rule}
}
