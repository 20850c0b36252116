package analysis

import (
	"regexp"
	"strings"
	"sync"
)

// containsAny reports whether text contains any of the given substrings.
// Adapted from detection/helpers.go:containsAny.
func containsAny(text string, substrings []string) bool {
	for _, s := range substrings {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// countKeywordMatches counts, with word-boundary case-insensitive regex
// matching (per spec.md §4.E.1's `keyword` rule kind), how many times each
// keyword occurs in text. Unlike
// detection/urgency_financial_strategy.go:countKeywords (plain substring,
// presence-only), spec.md §4.E.1 requires match *counting* with word
// boundaries, so each keyword compiles to its own `\bKEYWORD\b` pattern.
func countKeywordMatches(text string, keywords []string) int {
	total := 0
	for _, kw := range keywords {
		total += len(keywordPattern(kw).FindAllStringIndex(text, -1))
	}
	return total
}

var (
	patternCacheMu sync.Mutex
	patternCache   = map[string]*regexp.Regexp{}
)

// keywordPattern compiles (and memoizes) a word-boundary, case-insensitive
// pattern for one keyword. Keywords may contain spaces ("wire transfer"),
// so the boundary anchors apply to the whole phrase, not each word.
func keywordPattern(keyword string) *regexp.Regexp {
	patternCacheMu.Lock()
	defer patternCacheMu.Unlock()

	if re, ok := patternCache[keyword]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`)
	patternCache[keyword] = re
	return re
}

// hasLabel reports whether any label in labels case-insensitively equals
// target.
func hasLabel(labels []string, target string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, target) {
			return true
		}
	}
	return false
}

// countMatchedLabels counts how many of the configured tokens appear
// (case-insensitively) in labels.
func countMatchedLabels(labels []string, tokens []string) (int, []string) {
	matched := make([]string, 0)
	for _, tok := range tokens {
		if hasLabel(labels, tok) {
			matched = append(matched, tok)
		}
	}
	return len(matched), matched
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
