package analysis

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailsentinel/core/internal/cache"
	"github.com/mailsentinel/core/internal/domain"
)

// RuleKind is one of the five configurable ImportanceAnalyzer rule shapes
// from spec.md §4.E.1.
type RuleKind string

const (
	RuleKeyword         RuleKind = "keyword"
	RuleDomain          RuleKind = "domain"
	RuleLabel           RuleKind = "label"
	RuleNoReply         RuleKind = "noReply"
	RuleLargeAttachment RuleKind = "largeAttachment"
)

// defaultLargeAttachmentMinSize is the largeAttachment rule's default
// threshold, per spec.md §4.E.1 ("default 1 MiB").
const defaultLargeAttachmentMinSize = 1 << 20

// noReplyTokens is the fixed substring set the noReply rule checks sender
// against, per spec.md §4.E.1.
var noReplyTokens = []string{"no-reply", "noreply"}

// Rule is one configured ImportanceAnalyzer rule. Not every field is used by
// every Kind: Keywords/Domains/Labels are the rule's configured value list;
// MinSize only applies to RuleLargeAttachment.
type Rule struct {
	ID       string
	Kind     RuleKind
	Keywords []string
	Domains  []string
	Labels   []string
	MinSize  int64
	Weight   float64
	Priority int
}

// RuleMatch is one rule's evaluation outcome, per spec.md §4.E.1
// "{matched, score, reason}".
type RuleMatch struct {
	RuleID   string
	Kind     RuleKind
	Matched  bool
	Score    float64
	Reason   string
	Priority int
}

// ImportanceResult is the ImportanceAnalyzer's output.
type ImportanceResult struct {
	Score         float64
	Level         domain.ImportanceLevel
	MatchedRules  []string
	Confidence    float64
	MatchedRuleID []RuleMatch
}

// ImportanceAnalyzer evaluates a configured rule set against an
// EmailAnalysisContext, per spec.md §4.E.1.
type ImportanceAnalyzer struct {
	Rules          []Rule
	HighThreshold  float64
	LowThreshold   float64
	Cache          *cache.Cache
	CacheTTL       time.Duration
	KeyStrategy    CacheKeyStrategy
	Log            zerolog.Logger
}

// NewImportanceAnalyzer builds an analyzer with rules sorted priority DESC,
// per spec.md §4.E.1 "Rules are evaluated in priority DESC order".
func NewImportanceAnalyzer(rules []Rule, highThreshold, lowThreshold float64, c *cache.Cache, cacheTTL time.Duration, keyStrategy CacheKeyStrategy, log zerolog.Logger) *ImportanceAnalyzer {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })

	return &ImportanceAnalyzer{
		Rules:         sorted,
		HighThreshold: highThreshold,
		LowThreshold:  lowThreshold,
		Cache:         c,
		CacheTTL:      cacheTTL,
		KeyStrategy:   keyStrategy,
		Log:           log.With().Str("component", "importance_analyzer").Logger(),
	}
}

const importanceCachePrefix = "importance"

// Analyze runs every rule and combines the matches into a score/level/
// confidence triple, consulting the cache first. Per spec.md §4.E.1: "A
// failing rule is logged and skipped — remaining rules still run."
func (a *ImportanceAnalyzer) Analyze(ctx context.Context, ec EmailAnalysisContext) ImportanceResult {
	key := CacheKey(a.KeyStrategy, importanceCachePrefix, ec)
	if a.Cache != nil {
		if cached, found := a.Cache.Get(ec.UserID, key); found {
			if result, ok := cached.(ImportanceResult); ok {
				return result
			}
		}
	}

	result := a.evaluate(ec)

	if a.Cache != nil {
		a.Cache.SetWithTTL(ec.UserID, key, result, a.CacheTTL)
	}
	return result
}

func (a *ImportanceAnalyzer) evaluate(ec EmailAnalysisContext) ImportanceResult {
	matches := make([]RuleMatch, 0, len(a.Rules))
	for _, rule := range a.Rules {
		matches = append(matches, a.evaluateRuleSafely(rule, ec))
	}

	var score float64
	var matchedRuleIDs []string
	var matchedCount int
	var priorityWeightedSum float64

	for _, m := range matches {
		if !m.Matched {
			continue
		}
		score += m.Score
		matchedRuleIDs = append(matchedRuleIDs, m.RuleID)
		matchedCount++
		priorityWeightedSum += float64(m.Priority)
	}

	level := domain.ImportanceMedium
	switch {
	case score >= a.HighThreshold:
		level = domain.ImportanceHigh
	case score <= a.LowThreshold:
		level = domain.ImportanceLow
	}

	totalRules := len(a.Rules)
	var confidence float64
	if totalRules > 0 {
		confidence = clamp(float64(matchedCount)/float64(totalRules)+priorityWeightedSum/100, 0, 1)
	}

	return ImportanceResult{
		Score:         score,
		Level:         level,
		MatchedRules:  matchedRuleIDs,
		Confidence:    confidence,
		MatchedRuleID: matches,
	}
}

// evaluateRuleSafely isolates a panicking rule body so one bad rule
// configuration (e.g. a malformed pattern) cannot unwind the whole
// evaluation — spec.md §9 "model them as result types ... so a failure in
// one rule/batch does not unwind the enclosing loop".
func (a *ImportanceAnalyzer) evaluateRuleSafely(rule Rule, ec EmailAnalysisContext) (m RuleMatch) {
	defer func() {
		if r := recover(); r != nil {
			a.Log.Warn().Str("rule_id", rule.ID).Interface("panic", r).Msg("rule evaluation failed, skipping")
			m = RuleMatch{RuleID: rule.ID, Kind: rule.Kind, Priority: rule.Priority}
		}
	}()
	return evaluateRule(rule, ec)
}

func evaluateRule(rule Rule, ec EmailAnalysisContext) RuleMatch {
	base := RuleMatch{RuleID: rule.ID, Kind: rule.Kind, Priority: rule.Priority}

	switch rule.Kind {
	case RuleKeyword:
		text := ec.Subject + " " + ec.Snippet
		n := countKeywordMatches(text, rule.Keywords)
		if n > 0 {
			base.Matched = true
			base.Score = float64(n) * rule.Weight
			base.Reason = "matched " + strconv.Itoa(n) + " keyword(s)"
		}
		return base

	case RuleDomain:
		// Matches when any configured domain is a case-insensitive substring
		// of the full sender address, per spec.md §4.E.1 — not just the
		// domain half, so "sub.company.com" configured as "company.com"
		// still matches "someone@mail.sub.company.com".
		for _, d := range rule.Domains {
			if strings.Contains(ec.Sender, strings.ToLower(strings.TrimSpace(d))) {
				base.Matched = true
				base.Score = rule.Weight
				base.Reason = "sender matched domain " + d
				return base
			}
		}
		return base

	case RuleLabel:
		n, matched := countMatchedLabels(ec.Labels, rule.Labels)
		if n > 0 {
			base.Matched = true
			base.Score = float64(n) * rule.Weight
			base.Reason = "matched label(s): " + strings.Join(matched, ",")
		}
		return base

	case RuleNoReply:
		if containsAny(ec.Sender, noReplyTokens) {
			base.Matched = true
			base.Score = rule.Weight
			base.Reason = "sender looks like a no-reply address"
		}
		return base

	case RuleLargeAttachment:
		minSize := rule.MinSize
		if minSize <= 0 {
			minSize = defaultLargeAttachmentMinSize
		}
		if ec.HasAttachments && ec.Size > minSize {
			base.Matched = true
			base.Score = rule.Weight
			base.Reason = "has attachment larger than threshold"
		}
		return base
	}

	return base
}
