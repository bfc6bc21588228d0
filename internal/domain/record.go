package domain

import (
	"fmt"
	"strings"
)

// Kind identifies which corpus a record (and its serving agent) belongs to.
type Kind string

const (
	// KindProjects is the construction projects corpus.
	KindProjects Kind = "projects"
	// KindAwards is the awards and recognition corpus.
	KindAwards Kind = "awards"
)

// Kinds returns all known corpus kinds in a fixed order.
func Kinds() []Kind {
	return []Kind{KindProjects, KindAwards}
}

// ParseKind validates a kind string coming from a caller.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindProjects, KindAwards:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAgent, s)
	}
}

// Record is one corpus entity: a construction project or an award.
// It is a tagged variant -- common fields plus kind-specific optional fields.
// Records are immutable once built; re-embedding replaces them wholesale.
type Record struct {
	ID          string
	Kind        Kind
	Title       string
	Description string
	URL         string
	ImageURL    string

	// Project-only fields.
	Location    string
	Client      string
	Value       string
	Features    []string
	Specialties []string

	// Award-only fields.
	Organization    string
	Category        string
	Year            string
	Date            string
	RelatedProjects []string

	// Embedding is the precomputed vector for this record, normalized
	// by the provider. Set during index rebuild.
	Embedding []float32
}

// SearchField is one searchable text field of a record, named so the
// scorer can apply per-field boost weights.
type SearchField struct {
	Name string
	Text string
}

// SearchFields returns the record's searchable text fields for its kind.
// The switch is exhaustive over Kind; unknown kinds yield only common fields.
func (r *Record) SearchFields() []SearchField {
	fields := []SearchField{
		{Name: "title", Text: r.Title},
		{Name: "description", Text: r.Description},
	}
	switch r.Kind {
	case KindProjects:
		fields = append(fields,
			SearchField{Name: "location", Text: r.Location},
			SearchField{Name: "client", Text: r.Client},
			SearchField{Name: "features", Text: strings.Join(r.Features, ", ")},
			SearchField{Name: "specialties", Text: strings.Join(r.Specialties, ", ")},
		)
	case KindAwards:
		fields = append(fields,
			SearchField{Name: "organization", Text: r.Organization},
			SearchField{Name: "category", Text: r.Category},
			SearchField{Name: "year", Text: r.year()},
			SearchField{Name: "projects", Text: strings.Join(r.RelatedProjects, ", ")},
		)
	}
	out := fields[:0]
	for _, f := range fields {
		if strings.TrimSpace(f.Text) != "" {
			out = append(out, f)
		}
	}
	return out
}

// EmbeddingText renders the record as labelled lines for the embedding
// provider. The layout matches what the corpus was originally embedded with,
// so cached vectors stay valid across rebuilds.
func (r *Record) EmbeddingText() string {
	var parts []string
	add := func(label, text string) {
		if strings.TrimSpace(text) != "" {
			parts = append(parts, label+": "+text)
		}
	}

	add("Title", r.Title)
	add("Description", r.Description)
	switch r.Kind {
	case KindProjects:
		add("Location", r.Location)
		add("Client", r.Client)
		add("Features", strings.Join(r.Features, ", "))
		add("Specialties", strings.Join(r.Specialties, ", "))
	case KindAwards:
		add("Organization", r.Organization)
		add("Category", r.Category)
		add("Year", r.year())
		add("Projects", strings.Join(r.RelatedProjects, ", "))
	}
	return strings.Join(parts, "\n")
}

// ContextText renders the record's salient fields for the answer-model
// prompt. The orchestrator bounds the total context size.
func (r *Record) ContextText() string {
	var parts []string
	add := func(label, text string) {
		if strings.TrimSpace(text) != "" {
			parts = append(parts, label+": "+text)
		}
	}

	add("Title", r.Title)
	add("Description", r.Description)
	switch r.Kind {
	case KindProjects:
		add("Location", r.Location)
		add("Client", r.Client)
		add("Value", r.Value)
		add("Features", strings.Join(r.Features, ", "))
	case KindAwards:
		add("Organization", r.Organization)
		add("Category", r.Category)
		add("Year", r.year())
	}
	return strings.Join(parts, "\n")
}

// year prefers the explicit year field, falling back to the raw date.
func (r *Record) year() string {
	if r.Year != "" {
		return r.Year
	}
	return r.Date
}
