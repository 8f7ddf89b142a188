package intent

import (
	"regexp"
	"strings"

	"github.com/taskmesh/taskmesh/types"
)

var (
	// filePathPattern matches path-like tokens with a known source or
	// config extension, with or without directory separators.
	filePathPattern = regexp.MustCompile(`\b[\w./-]+\.(?:go|py|js|jsx|ts|tsx|java|rb|rs|c|cc|cpp|h|hpp|cs|php|sql|sh|proto|yaml|yml|json|toml|ini|md)\b`)

	// functionPattern matches call-like tokens: an identifier immediately
	// followed by parentheses.
	functionPattern = regexp.MustCompile(`\b([a-z_][A-Za-z0-9_]*)\s*\(`)

	// classPattern matches PascalCase identifiers with at least two humps,
	// so ordinary capitalized sentence starts are not picked up.
	classPattern = regexp.MustCompile(`\b([A-Z][a-z0-9]+(?:[A-Z][A-Za-z0-9]*)+)\b`)

	// modulePattern matches "module X" / "the X module" style references.
	moduleLeading  = regexp.MustCompile(`(?i)\b(?:module|package|service|component)\s+([a-zA-Z][\w-]*)`)
	moduleTrailing = regexp.MustCompile(`(?i)\b([a-zA-Z][\w-]*)\s+(?:module|package|service|component)\b`)

	// errorPattern matches CamelCase error/exception type names and
	// SCREAMING_SNAKE error codes.
	errorTypePattern = regexp.MustCompile(`\b([A-Z][A-Za-z0-9]*(?:Error|Exception))\b`)
	errorCodePattern = regexp.MustCompile(`\b(ERR_[A-Z0-9_]+|E[A-Z]{2,})\b`)

	wordPattern = regexp.MustCompile(`[a-z0-9][a-z0-9./+-]*`)
)

// moduleStopwords are generic nouns that modulePattern would otherwise
// report as module names.
var moduleStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "this": true, "that": true,
	"each": true, "every": true, "new": true, "our": true, "my": true,
	"is": true, "are": true, "was": true, "and": true, "or": true,
	"in": true, "to": true, "of": true, "for": true, "with": true,
}

// extractEntities runs all entity scans over the task text. It never fails;
// a scan that matches nothing simply contributes an empty list.
func (a *Analyzer) extractEntities(text string) types.ExtractedEntities {
	lower := strings.ToLower(text)

	return types.ExtractedEntities{
		FilePaths:    dedupe(filePathPattern.FindAllString(text, -1)),
		Functions:    dedupe(captures(functionPattern, text)),
		Classes:      dedupe(captures(classPattern, text)),
		Modules:      a.extractModules(text),
		Errors:       dedupe(append(captures(errorTypePattern, text), captures(errorCodePattern, text)...)),
		Technologies: a.extractTechnologies(lower),
		Urgency:      detectUrgency(lower),
	}
}

func (a *Analyzer) extractModules(text string) []string {
	var out []string
	for _, pat := range []*regexp.Regexp{moduleLeading, moduleTrailing} {
		for _, m := range pat.FindAllStringSubmatch(text, -1) {
			name := strings.ToLower(m[1])
			if moduleStopwords[name] {
				continue
			}
			out = append(out, name)
		}
	}
	return dedupe(out)
}

func (a *Analyzer) extractTechnologies(lower string) []string {
	tokens := tokenSet(lower)
	var out []string
	for _, tech := range a.technologies {
		if tokens[tech] {
			out = append(out, tech)
		}
	}
	return out
}

// detectUrgency scans for urgency triggers, most severe first. Absence of
// any trigger defaults to medium.
func detectUrgency(lower string) types.Urgency {
	for _, level := range []types.Urgency{types.UrgencyCritical, types.UrgencyHigh, types.UrgencyLow} {
		for _, phrase := range urgencyVocabulary[level] {
			if strings.Contains(lower, phrase) {
				return level
			}
		}
	}
	return types.UrgencyMedium
}

// tokenSet splits lowercased text into word tokens.
func tokenSet(lower string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range wordPattern.FindAllString(lower, -1) {
		set[strings.Trim(tok, "./+-")] = true
		set[tok] = true
	}
	return set
}

func captures(pat *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range pat.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

// dedupe removes duplicates while preserving first-seen order.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
