package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mailsentinel/core/internal/domain"
)

func TestLabelClassifier_PickCategoryPriority(t *testing.T) {
	l := NewLabelClassifier(nil, time.Minute, KeyPartial)

	tests := []struct {
		name     string
		labels   []string
		expected domain.GmailCategory
	}{
		{"important wins over spam", []string{"IMPORTANT", "SPAM"}, domain.GmailImportant},
		{"spam wins over promotions", []string{"SPAM", "CATEGORY_PROMOTIONS"}, domain.GmailSpam},
		{"promotions wins over social", []string{"CATEGORY_PROMOTIONS", "CATEGORY_SOCIAL"}, domain.GmailPromotions},
		{"social wins over updates", []string{"SOCIAL", "UPDATES"}, domain.GmailSocial},
		{"no matching token falls back to primary", []string{"INBOX"}, domain.GmailPrimary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := NewContext("e1", "user1", "", "", "", tt.labels, time.Now().UnixMilli(), 0, false)
			result := l.Analyze(context.Background(), ec)
			assert.Equal(t, tt.expected, result.Category)
		})
	}
}

func TestLabelClassifier_UpdatesWinsOverForums(t *testing.T) {
	l := NewLabelClassifier(nil, time.Minute, KeyPartial)
	ec := NewContext("e1", "user1", "", "", "", []string{"CATEGORY_UPDATES", "CATEGORY_FORUMS"}, time.Now().UnixMilli(), 0, false)
	result := l.Analyze(context.Background(), ec)
	assert.Equal(t, domain.GmailUpdates, result.Category)
}

func TestLabelClassifier_ScoresReflectMatchedTokenFraction(t *testing.T) {
	l := NewLabelClassifier(nil, time.Minute, KeyPartial)
	ec := NewContext("e1", "user1", "", "", "", []string{"SPAM"}, time.Now().UnixMilli(), 0, false)
	result := l.Analyze(context.Background(), ec)
	assert.Equal(t, 1.0, result.SpamScore)
	assert.Equal(t, []string{"SPAM"}, result.SpamIndicators)
}

func TestLabelClassifier_NoTokensMatchedYieldsZeroScores(t *testing.T) {
	l := NewLabelClassifier(nil, time.Minute, KeyPartial)
	ec := NewContext("e1", "user1", "", "", "", []string{"INBOX"}, time.Now().UnixMilli(), 0, false)
	result := l.Analyze(context.Background(), ec)
	assert.Zero(t, result.SpamScore)
	assert.Zero(t, result.PromotionalScore)
	assert.Zero(t, result.SocialScore)
	assert.Empty(t, result.SpamIndicators)
}
