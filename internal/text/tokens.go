// Package text holds the shared query tokenizer used by the hybrid scorer
// and the popular-terms metrics.
package text

import (
	"strings"
	"unicode"
)

// stopWords are excluded from keyword matching and popular-terms counting.
// Deliberately small: the guard and scorer must stay conservative for
// legitimate construction/awards queries.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "about": {}, "at": {},
	"be": {}, "by": {}, "do": {}, "does": {}, "for": {}, "from": {},
	"has": {}, "have": {}, "how": {}, "in": {}, "is": {}, "it": {},
	"me": {}, "of": {}, "on": {}, "or": {}, "show": {}, "tell": {},
	"that": {}, "the": {}, "to": {}, "was": {}, "were": {}, "what": {},
	"which": {}, "with": {}, "you": {},
}

// Tokenize splits text into lower-cased word tokens. Any non-letter,
// non-digit rune is a separator.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Keywords extracts the deduplicated, stop-word-filtered keyword set from
// a raw query, preserving first-occurrence order for determinism.
func Keywords(query string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range Tokenize(query) {
		if len(tok) < 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// Terms extracts the deduplicated terms counted toward popular-terms
// metrics: lower-cased, stop-words removed, and only words longer than
// three characters.
func Terms(query string) []string {
	var out []string
	for _, kw := range Keywords(query) {
		if len(kw) > 3 {
			out = append(out, kw)
		}
	}
	return out
}

// IsStopWord reports whether the lower-cased token is a stop word.
func IsStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}
