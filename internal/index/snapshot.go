// Package index holds the in-memory retrieval index: immutable corpus
// snapshots published by atomic pointer swap, and the hybrid scorer that
// ranks a snapshot against a query.
package index

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ragfolio/ragfolio/internal/domain"
)

// Snapshot is an immutable, ordered corpus of one kind plus its
// precomputed embeddings. A rebuild produces a new snapshot; in-flight
// readers keep the one they captured.
type Snapshot struct {
	kind    domain.Kind
	records []domain.Record
	dim     int
	builtAt time.Time
}

// NewSnapshot builds a snapshot from an ordered record sequence.
// The records slice is owned by the snapshot after the call.
func NewSnapshot(kind domain.Kind, records []domain.Record, builtAt time.Time) *Snapshot {
	dim := 0
	if len(records) > 0 {
		dim = len(records[0].Embedding)
	}
	return &Snapshot{kind: kind, records: records, dim: dim, builtAt: builtAt}
}

// Kind returns the corpus kind this snapshot covers.
func (s *Snapshot) Kind() domain.Kind { return s.kind }

// Records returns the ordered record sequence. Callers must not mutate it.
func (s *Snapshot) Records() []domain.Record { return s.records }

// Len returns the record count.
func (s *Snapshot) Len() int { return len(s.records) }

// Dim returns the embedding dimension, 0 for an empty snapshot.
func (s *Snapshot) Dim() int { return s.dim }

// BuiltAt returns when the snapshot was published.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Store owns the current snapshot of one corpus kind. Readers are
// lock-free; publishers are serialized and swap the whole snapshot,
// never mutating one in place.
type Store struct {
	kind    domain.Kind
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex // serializes publishers
}

// NewStore creates a store holding an empty snapshot.
func NewStore(kind domain.Kind) *Store {
	s := &Store{kind: kind}
	s.current.Store(NewSnapshot(kind, nil, time.Time{}))
	return s
}

// Kind returns the corpus kind this store serves.
func (s *Store) Kind() domain.Kind { return s.kind }

// Current returns the latest snapshot in O(1) without blocking readers.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Publish atomically swaps in a fully built snapshot. Queries that
// already captured the previous snapshot finish against it.
func (s *Store) Publish(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(snap)
}
