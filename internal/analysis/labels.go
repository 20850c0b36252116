package analysis

import (
	"context"
	"time"

	"github.com/mailsentinel/core/internal/cache"
	"github.com/mailsentinel/core/internal/domain"
)

// LabelClassifier maps a message's provider labels onto the gmail_category
// vocabulary and derives spam/promotional/social scores from configured
// label-token sets, per spec.md §4.E.3.
type LabelClassifier struct {
	ImportantTokens  []string
	SpamTokens       []string
	PromotionalTokens []string
	SocialTokens     []string
	UpdatesTokens    []string
	ForumsTokens     []string

	SpamThreshold        float64
	PromotionalThreshold float64
	SocialThreshold      float64

	Cache       *cache.Cache
	CacheTTL    time.Duration
	KeyStrategy CacheKeyStrategy
}

// LabelResult is the LabelClassifier's output.
type LabelResult struct {
	Category             domain.GmailCategory
	SpamScore             float64
	PromotionalScore      float64
	SocialScore           float64
	SpamIndicators        []string
	PromotionalIndicators []string
	SocialIndicators      []string
}

// NewLabelClassifier builds a classifier with the standard Gmail label
// vocabulary from spec.md §3 ("important, spam, promotions, social,
// primary, updates, forums").
func NewLabelClassifier(c *cache.Cache, cacheTTL time.Duration, keyStrategy CacheKeyStrategy) *LabelClassifier {
	return &LabelClassifier{
		ImportantTokens:   []string{"IMPORTANT", "STARRED"},
		SpamTokens:        []string{"SPAM"},
		PromotionalTokens: []string{"CATEGORY_PROMOTIONS", "PROMOTIONS"},
		SocialTokens:      []string{"CATEGORY_SOCIAL", "SOCIAL"},
		UpdatesTokens:     []string{"CATEGORY_UPDATES", "UPDATES"},
		ForumsTokens:      []string{"CATEGORY_FORUMS", "FORUMS"},

		SpamThreshold:        0.7,
		PromotionalThreshold: 0.8,
		SocialThreshold:      0.5,

		Cache:       c,
		CacheTTL:    cacheTTL,
		KeyStrategy: keyStrategy,
	}
}

const labelCachePrefix = "labels"

// Analyze derives the category and per-bucket scores for ec's labels,
// consulting the cache first.
func (l *LabelClassifier) Analyze(ctx context.Context, ec EmailAnalysisContext) LabelResult {
	key := CacheKey(l.KeyStrategy, labelCachePrefix, ec)
	if l.Cache != nil {
		if cached, found := l.Cache.Get(ec.UserID, key); found {
			if result, ok := cached.(LabelResult); ok {
				return result
			}
		}
	}

	result := l.evaluate(ec)

	if l.Cache != nil {
		l.Cache.SetWithTTL(ec.UserID, key, result, l.CacheTTL)
	}
	return result
}

func (l *LabelClassifier) evaluate(ec EmailAnalysisContext) LabelResult {
	spamCount, spamMatched := countMatchedLabels(ec.Labels, l.SpamTokens)
	promoCount, promoMatched := countMatchedLabels(ec.Labels, l.PromotionalTokens)
	socialCount, socialMatched := countMatchedLabels(ec.Labels, l.SocialTokens)

	result := LabelResult{
		Category:              l.pickCategory(ec.Labels),
		SpamScore:             scoreFromCount(spamCount, len(l.SpamTokens)),
		PromotionalScore:      scoreFromCount(promoCount, len(l.PromotionalTokens)),
		SocialScore:           scoreFromCount(socialCount, len(l.SocialTokens)),
		SpamIndicators:        spamMatched,
		PromotionalIndicators: promoMatched,
		SocialIndicators:      socialMatched,
	}
	return result
}

// pickCategory resolves the email's single provider-category bucket by
// priority: important beats spam beats promotions beats social beats
// updates beats forums; primary is the fallback when no token matches.
func (l *LabelClassifier) pickCategory(labels []string) domain.GmailCategory {
	switch {
	case anyMatched(labels, l.ImportantTokens):
		return domain.GmailImportant
	case anyMatched(labels, l.SpamTokens):
		return domain.GmailSpam
	case anyMatched(labels, l.PromotionalTokens):
		return domain.GmailPromotions
	case anyMatched(labels, l.SocialTokens):
		return domain.GmailSocial
	case anyMatched(labels, l.UpdatesTokens):
		return domain.GmailUpdates
	case anyMatched(labels, l.ForumsTokens):
		return domain.GmailForums
	default:
		return domain.GmailPrimary
	}
}

func anyMatched(labels, tokens []string) bool {
	n, _ := countMatchedLabels(labels, tokens)
	return n > 0
}

func scoreFromCount(matched, total int) float64 {
	if total == 0 {
		return 0
	}
	return clamp(float64(matched)/float64(total), 0, 1)
}
