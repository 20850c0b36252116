package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsentinel/core/internal/cache"
	"github.com/mailsentinel/core/internal/domain"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testRules() []Rule {
	return []Rule{
		{ID: "urgent-keyword", Kind: RuleKeyword, Keywords: []string{"urgent"}, Weight: 2, Priority: 10},
		{ID: "boss-domain", Kind: RuleDomain, Domains: []string{"company.com"}, Weight: 3, Priority: 20},
		{ID: "important-label", Kind: RuleLabel, Labels: []string{"IMPORTANT"}, Weight: 1.5, Priority: 5},
		{ID: "no-reply", Kind: RuleNoReply, Weight: -2, Priority: 1},
		{ID: "big-attachment", Kind: RuleLargeAttachment, Weight: 1, Priority: 1},
	}
}

func TestImportanceAnalyzer_AnalyzeEmail(t *testing.T) {
	tests := []struct {
		name          string
		ctx           EmailAnalysisContext
		expectedLevel domain.ImportanceLevel
	}{
		{
			name: "urgent email from trusted domain with important label is high",
			ctx: NewContext("e1", "user1", "URGENT: Action Required", "boss@company.com",
				"please review", []string{"INBOX", "IMPORTANT"}, time.Now().UnixMilli(), 150000, true),
			expectedLevel: domain.ImportanceHigh,
		},
		{
			name: "no-reply sender with nothing else is low",
			ctx: NewContext("e2", "user1", "Your receipt", "no-reply@store.com",
				"thanks for your purchase", []string{"INBOX"}, time.Now().UnixMilli(), 1000, false),
			expectedLevel: domain.ImportanceLow,
		},
		{
			name: "plain email with no rule matches scores 0, at the low threshold, so is low",
			ctx: NewContext("e3", "user1", "hello", "friend@example.com",
				"how are you", []string{"INBOX"}, time.Now().UnixMilli(), 1000, false),
			expectedLevel: domain.ImportanceLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewImportanceAnalyzer(testRules(), 3, 0, nil, time.Minute, KeyPartial, testLogger())
			result := a.Analyze(context.Background(), tt.ctx)
			assert.Equal(t, tt.expectedLevel, result.Level)
		})
	}
}

func TestImportanceAnalyzer_RulesEvaluatedPriorityOrder(t *testing.T) {
	rules := testRules()
	a := NewImportanceAnalyzer(rules, 3, 0, nil, time.Minute, KeyPartial, testLogger())

	var priorities []int
	for _, r := range a.Rules {
		priorities = append(priorities, r.Priority)
	}
	for i := 1; i < len(priorities); i++ {
		assert.GreaterOrEqual(t, priorities[i-1], priorities[i])
	}
}

func TestImportanceAnalyzer_CachesResult(t *testing.T) {
	c := cache.New(time.Minute)
	a := NewImportanceAnalyzer(testRules(), 3, 0, c, time.Minute, KeyPartial, testLogger())

	ec := NewContext("e1", "user1", "urgent", "boss@company.com", "", []string{"IMPORTANT"}, time.Now().UnixMilli(), 100, false)

	first := a.Analyze(context.Background(), ec)
	stats := c.Stats()
	require.EqualValues(t, 1, stats.Misses)

	second := a.Analyze(context.Background(), ec)
	stats = c.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.Equal(t, first, second)
}

func TestImportanceAnalyzer_KeywordRule_CountsWordBoundaryMatches(t *testing.T) {
	rules := []Rule{{ID: "urgent", Kind: RuleKeyword, Keywords: []string{"urgent"}, Weight: 1, Priority: 1}}
	a := NewImportanceAnalyzer(rules, 100, -100, nil, time.Minute, KeyPartial, testLogger())

	ec := NewContext("e1", "user1", "urgent urgent", "a@b.com", "", nil, time.Now().UnixMilli(), 0, false)
	result := a.Analyze(context.Background(), ec)
	require.Len(t, result.MatchedRuleID, 1)
	assert.Equal(t, 2.0, result.MatchedRuleID[0].Score)

	// "urgently" must not match the word-boundary pattern for "urgent".
	ec2 := NewContext("e2", "user1", "urgently", "a@b.com", "", nil, time.Now().UnixMilli(), 0, false)
	result2 := a.Analyze(context.Background(), ec2)
	assert.False(t, result2.MatchedRuleID[0].Matched)
}
