package metrics

import (
	"sync"
	"time"

	"github.com/ragfolio/ragfolio/internal/domain"
	"github.com/ragfolio/ragfolio/internal/text"
)

// dateLayout is the ISO date bucket key for queries_by_date.
const dateLayout = "2006-01-02"

// Injection is one recorded prompt-injection attempt.
type Injection struct {
	Date  string `json:"date"`
	Query string `json:"query"`
}

// State is a point-in-time copy of one agent's usage metrics.
// Append/increment-only for the process lifetime; never shrinks.
type State struct {
	TotalQueries      int64          `json:"total_queries"`
	QueryTimes        []float64      `json:"query_times"`
	PopularTerms      map[string]int `json:"popular_terms"`
	QueriesByDate     map[string]int `json:"queries_by_date"`
	InjectionAttempts []Injection    `json:"injection_attempts"`
}

// Tracker aggregates usage metrics for one agent kind. All entry points
// are safe under concurrent invocation: a single coarse mutex guards the
// whole state, so each logical update commits as one atomic unit and a
// reader never observes a half-applied query.
type Tracker struct {
	kind domain.Kind

	mu         sync.Mutex
	total      int64
	times      []float64
	terms      map[string]int
	byDate     map[string]int
	injections []Injection
}

// NewTracker creates an empty tracker for one agent kind.
func NewTracker(kind domain.Kind) *Tracker {
	return &Tracker{
		kind:   kind,
		terms:  make(map[string]int),
		byDate: make(map[string]int),
	}
}

// Kind returns the agent kind this tracker serves.
func (t *Tracker) Kind() domain.Kind { return t.kind }

// RecordSuccess commits one answered query: count, latency, date bucket,
// and normalized query terms, all under one critical section.
func (t *Tracker) RecordSuccess(elapsed time.Duration, query string, at time.Time) {
	terms := text.Terms(query)
	date := at.Format(dateLayout)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.total++
	t.times = append(t.times, elapsed.Seconds())
	t.byDate[date]++
	for _, term := range terms {
		t.terms[term]++
	}
}

// RecordInjection appends one blocked query. Does not touch total_queries
// or query_times.
func (t *Tracker) RecordInjection(query string, at time.Time) {
	date := at.Format(dateLayout)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.injections = append(t.injections, Injection{Date: date, Query: query})
}

// Snapshot returns a consistent deep copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := State{
		TotalQueries:      t.total,
		QueryTimes:        make([]float64, len(t.times)),
		PopularTerms:      make(map[string]int, len(t.terms)),
		QueriesByDate:     make(map[string]int, len(t.byDate)),
		InjectionAttempts: make([]Injection, len(t.injections)),
	}
	copy(s.QueryTimes, t.times)
	copy(s.InjectionAttempts, t.injections)
	for k, v := range t.terms {
		s.PopularTerms[k] = v
	}
	for k, v := range t.byDate {
		s.QueriesByDate[k] = v
	}
	return s
}

// Set holds one tracker per agent kind, constructed up front so handlers
// never race on map writes.
type Set struct {
	trackers map[domain.Kind]*Tracker
}

// NewSet creates trackers for all known kinds.
func NewSet() *Set {
	trackers := make(map[domain.Kind]*Tracker)
	for _, k := range domain.Kinds() {
		trackers[k] = NewTracker(k)
	}
	return &Set{trackers: trackers}
}

// ForKind returns the tracker for an agent kind, nil for unknown kinds.
func (s *Set) ForKind(kind domain.Kind) *Tracker {
	return s.trackers[kind]
}

// SnapshotAll returns a point-in-time state per agent kind.
func (s *Set) SnapshotAll() map[domain.Kind]State {
	out := make(map[domain.Kind]State, len(s.trackers))
	for kind, t := range s.trackers {
		out[kind] = t.Snapshot()
	}
	return out
}
