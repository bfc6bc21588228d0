// Package corpus loads the raw record corpora from the crawler-produced
// JSON files. The loader is the read-only corpus provider: records are
// delivered wholesale at snapshot-build time.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ragfolio/ragfolio/internal/domain"
)

// Loader reads per-kind corpus files from a directory.
type Loader struct {
	dir   string
	files map[domain.Kind]string
}

// New creates a loader for the given directory and per-kind file names.
func New(dir, projectsFile, awardsFile string) *Loader {
	return &Loader{
		dir: dir,
		files: map[domain.Kind]string{
			domain.KindProjects: projectsFile,
			domain.KindAwards:   awardsFile,
		},
	}
}

// projectDTO matches the crawler output shape for one project.
type projectDTO struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	ImageURL    string   `json:"image_url"`
	Description string   `json:"description"`
	Overview    string   `json:"overview"`
	Location    string   `json:"location"`
	Client      string   `json:"client"`
	Value       string   `json:"value"`
	Features    []string `json:"features"`
	Specialties []string `json:"specialties"`
}

// awardDTO matches the crawler output shape for one award.
type awardDTO struct {
	Title        string `json:"title"`
	Organization string `json:"organization"`
	Category     string `json:"category"`
	Description  string `json:"description"`
	Year         string `json:"year"`
	Date         string `json:"date"`
	URL          string `json:"url"`
	ImageURL     string `json:"image_url"`
	Projects     []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"projects"`
}

// Load reads and decodes the corpus file for one kind. A missing file is
// an error; callers decide whether to treat it as fatal.
func (l *Loader) Load(kind domain.Kind) ([]domain.Record, error) {
	file, ok := l.files[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAgent, kind)
	}

	path := filepath.Join(l.dir, file)
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", path, err)
	}

	switch kind {
	case domain.KindProjects:
		return decodeProjects(data, path)
	case domain.KindAwards:
		return decodeAwards(data, path)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownAgent, kind)
	}
}

func decodeProjects(data []byte, path string) ([]domain.Record, error) {
	var doc struct {
		Projects []projectDTO `json:"projects"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", path, err)
	}

	records := make([]domain.Record, 0, len(doc.Projects))
	for i, p := range doc.Projects {
		desc := p.Description
		if desc == "" {
			desc = p.Overview
		}
		records = append(records, domain.Record{
			ID:          recordID(domain.KindProjects, i, p.URL, p.Title),
			Kind:        domain.KindProjects,
			Title:       p.Title,
			Description: desc,
			URL:         p.URL,
			ImageURL:    p.ImageURL,
			Location:    p.Location,
			Client:      p.Client,
			Value:       p.Value,
			Features:    p.Features,
			Specialties: p.Specialties,
		})
	}
	return records, nil
}

func decodeAwards(data []byte, path string) ([]domain.Record, error) {
	var doc struct {
		Awards []awardDTO `json:"awards"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", path, err)
	}

	records := make([]domain.Record, 0, len(doc.Awards))
	for i, a := range doc.Awards {
		related := make([]string, 0, len(a.Projects))
		for _, p := range a.Projects {
			if p.Title != "" {
				related = append(related, p.Title)
			}
		}
		records = append(records, domain.Record{
			ID:              recordID(domain.KindAwards, i, a.URL, a.Title),
			Kind:            domain.KindAwards,
			Title:           a.Title,
			Description:     a.Description,
			URL:             a.URL,
			ImageURL:        a.ImageURL,
			Organization:    a.Organization,
			Category:        a.Category,
			Year:            a.Year,
			Date:            a.Date,
			RelatedProjects: related,
		})
	}
	return records, nil
}

// recordID builds a stable identifier, unique within a kind: the URL or
// title slug when present, the corpus position otherwise.
func recordID(kind domain.Kind, idx int, url, title string) string {
	base := url
	if base == "" {
		base = title
	}
	if base == "" {
		return fmt.Sprintf("%s-%d", kind, idx)
	}
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, base)
	slug = strings.Trim(slug, "-")
	return fmt.Sprintf("%s-%d-%s", kind, idx, slug)
}
