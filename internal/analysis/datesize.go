package analysis

import (
	"context"
	"time"

	"github.com/mailsentinel/core/internal/cache"
	"github.com/mailsentinel/core/internal/domain"
)

const (
	// KiB/MiB size thresholds from spec.md §8 "Boundary behavior": exactly
	// 100 KiB is still small, exactly 1 MiB is still medium.
	defaultSmallBytes  = 100 * 1024
	defaultMediumBytes = 1024 * 1024
	// defaultPenaltyCapBytes is where sizePenalty saturates at 1, chosen to
	// match the 10 MiB "large" boundary example in spec.md §8.
	defaultPenaltyCapBytes = 10 * 1024 * 1024

	defaultRecentDays   = 7
	defaultModerateDays = 30
	// defaultRecencyBasisDays is the denominator in the recencyScore
	// formula — a separate, larger horizon than the age-category
	// boundaries so recency decays smoothly well past the "old" cutoff.
	defaultRecencyBasisDays = 90
)

// DateSizeResult is the DateSizeAnalyzer's output, per spec.md §4.E.2.
type DateSizeResult struct {
	AgeCategory  domain.AgeCategory
	SizeCategory domain.SizeCategory
	RecencyScore float64
	SizePenalty  float64
}

// DateSizeAnalyzer buckets an email by age and size with configurable
// thresholds, per spec.md §4.E.2.
type DateSizeAnalyzer struct {
	RecentDays       int
	ModerateDays     int
	RecencyBasisDays int
	SmallBytes       int64
	MediumBytes      int64
	PenaltyCapBytes  int64

	Cache       *cache.Cache
	CacheTTL    time.Duration
	KeyStrategy CacheKeyStrategy
}

// NewDateSizeAnalyzer builds an analyzer with spec.md §4.E.2's documented
// defaults, overridable per field after construction.
func NewDateSizeAnalyzer(c *cache.Cache, cacheTTL time.Duration, keyStrategy CacheKeyStrategy) *DateSizeAnalyzer {
	return &DateSizeAnalyzer{
		RecentDays:       defaultRecentDays,
		ModerateDays:     defaultModerateDays,
		RecencyBasisDays: defaultRecencyBasisDays,
		SmallBytes:       defaultSmallBytes,
		MediumBytes:      defaultMediumBytes,
		PenaltyCapBytes:  defaultPenaltyCapBytes,
		Cache:            c,
		CacheTTL:         cacheTTL,
		KeyStrategy:      keyStrategy,
	}
}

const dateSizeCachePrefix = "datesize"

// Analyze buckets ec by age and size, consulting the cache first.
func (a *DateSizeAnalyzer) Analyze(ctx context.Context, ec EmailAnalysisContext, now time.Time) DateSizeResult {
	key := CacheKey(a.KeyStrategy, dateSizeCachePrefix, ec)
	if a.Cache != nil {
		if cached, found := a.Cache.Get(ec.UserID, key); found {
			if result, ok := cached.(DateSizeResult); ok {
				return result
			}
		}
	}

	result := a.evaluate(ec, now)

	if a.Cache != nil {
		a.Cache.SetWithTTL(ec.UserID, key, result, a.CacheTTL)
	}
	return result
}

func (a *DateSizeAnalyzer) evaluate(ec EmailAnalysisContext, now time.Time) DateSizeResult {
	ageDays := ec.AgeDays(now)

	ageCategory := domain.AgeOld
	switch {
	case ageDays <= float64(a.RecentDays):
		ageCategory = domain.AgeRecent
	case ageDays <= float64(a.ModerateDays):
		ageCategory = domain.AgeModerate
	}

	sizeCategory := domain.SizeLarge
	switch {
	case ec.Size <= a.SmallBytes:
		sizeCategory = domain.SizeSmall
	case ec.Size <= a.MediumBytes:
		sizeCategory = domain.SizeMedium
	}

	// recencyScore is intentionally not upper-clamped: spec.md §4.E.2 notes
	// future dates "legally exceed 1".
	recencyScore := 1 - ageDays/float64(a.RecencyBasisDays)
	if recencyScore < 0 {
		recencyScore = 0
	}

	var sizePenalty float64
	if ec.Size > a.SmallBytes {
		span := float64(a.PenaltyCapBytes - a.SmallBytes)
		sizePenalty = clamp(float64(ec.Size-a.SmallBytes)/span, 0, 1)
	}

	return DateSizeResult{
		AgeCategory:  ageCategory,
		SizeCategory: sizeCategory,
		RecencyScore: recencyScore,
		SizePenalty:  sizePenalty,
	}
}
