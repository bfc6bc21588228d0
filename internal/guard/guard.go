// Package guard screens raw queries for prompt-injection attempts before
// any retrieval or model work happens.
package guard

import (
	"regexp"
	"strings"
)

// Verdict is the classification outcome for one raw query.
type Verdict struct {
	Suspect bool
	// Rule names the first matching rule when Suspect is true.
	Rule string
}

// Safe is the verdict for queries that matched no rule.
var Safe = Verdict{}

// Rule is one named injection heuristic. Rules are evaluated in order and
// the first match wins, which keeps classification deterministic.
type Rule struct {
	Name  string
	Match func(query string) bool
}

// regexRule builds a rule from a case-insensitive pattern.
func regexRule(name, pattern string) Rule {
	re := regexp.MustCompile(`(?i)` + pattern)
	return Rule{Name: name, Match: re.MatchString}
}

// defaultRules is the fixed rule table. Order is significant: override
// phrases first, then disclosure requests, then the density heuristic.
var defaultRules = []Rule{
	regexRule("instruction_override", strings.Join([]string{
		`ignore (?:all )?previous instructions`,
		`disregard (?:all|previous|your)`,
		`forget (?:all|your|previous)`,
		`new prompt:`,
		`system prompt`,
		`new instructions:`,
		`you are now`,
		`you will be`,
		`your new role`,
		`act as (?:if|though) you`,
	}, "|")),
	regexRule("disclosure_request", strings.Join([]string{
		`reveal your (?:instructions|prompt|configuration|rules)`,
		`(?:show|print|repeat|output) (?:me )?your (?:system )?(?:prompt|instructions)`,
		`(?:api[ _-]?key|credential|password|secret token)s?\b`,
		`environment variables?`,
		`\.env\b`,
	}, "|")),
	{Name: "imperative_density", Match: imperativeDense},
}

// directiveVerbs are the markers counted by the imperative-density rule.
var directiveVerbs = []string{
	"ignore", "disregard", "pretend", "obey", "comply",
	"override", "bypass", "jailbreak", "roleplay",
}

// imperativeDense flags unusually long queries stuffed with directive
// verbs. Deterministic: depends only on the input text.
func imperativeDense(query string) bool {
	if len([]rune(query)) < 280 {
		return false
	}
	lower := strings.ToLower(query)
	distinct := 0
	for _, verb := range directiveVerbs {
		if strings.Contains(lower, verb) {
			distinct++
		}
	}
	return distinct >= 3
}

// Guard classifies raw queries against an ordered rule table.
type Guard struct {
	rules []Rule
}

// New creates a guard with the default rule table.
func New() *Guard {
	return &Guard{rules: defaultRules}
}

// NewWithRules creates a guard with a custom rule table, evaluated in the
// given order.
func NewWithRules(rules []Rule) *Guard {
	return &Guard{rules: rules}
}

// Classify returns SUSPECT with the first matching rule name, or SAFE.
// Pure function of the input: no corpus, model, or clock dependency.
func (g *Guard) Classify(query string) Verdict {
	for _, r := range g.rules {
		if r.Match(query) {
			return Verdict{Suspect: true, Rule: r.Name}
		}
	}
	return Safe
}
