// Package categorize implements the CategorizationEngine from spec.md §4.F:
// the orchestrator that runs the three analyzers over an email, combines
// their verdicts into one persisted category, and reports a per-run
// insights summary. Grounded on detector.go's run loop (iterate,
// evaluate, collect) generalized from a single fraud-score pass into a
// three-analyzer pipeline with parallel/sequential orchestration modes.
package categorize

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailsentinel/core/internal/analysis"
	"github.com/mailsentinel/core/internal/cache"
	"github.com/mailsentinel/core/internal/domain"
	"github.com/mailsentinel/core/internal/store"
)

// Options configures one categorizeEmails run, per spec.md §4.F.
type Options struct {
	ForceRefresh bool
	Year         *int
	UserID       string
}

// CombinedAnalysisResult is analyzeEmail's return value: the three
// analyzers' verdicts plus the derived category and overall confidence.
type CombinedAnalysisResult struct {
	Importance analysis.ImportanceResult
	DateSize   analysis.DateSizeResult
	Label      analysis.LabelResult
	Category   domain.Category
	Confidence float64
}

// Categories tallies how many processed emails landed in each bucket.
type Categories struct {
	High   int
	Medium int
	Low    int
}

// RuleCount is one entry of Insights.TopMatchedRules.
type RuleCount struct {
	RuleID string
	Count  int
}

// Insights is the per-run summary from spec.md §4.F "Insights summary".
type Insights struct {
	TopMatchedRules         []RuleCount
	SpamDetectionRate       float64
	AvgImportanceConfidence float64
	AgeCategoryHistogram    map[domain.AgeCategory]int
	SizeCategoryHistogram   map[domain.SizeCategory]int
}

// Result is categorizeEmails' return value.
type Result struct {
	Processed  int
	Categories Categories
	Emails     []domain.EmailIndex
	Insights   Insights
}

// Engine orchestrates the three analyzers and persists their combined
// verdict, per spec.md §4.F.
type Engine struct {
	Importance *analysis.ImportanceAnalyzer
	DateSize   *analysis.DateSizeAnalyzer
	Label      *analysis.LabelClassifier

	Store *store.Store
	Cache *cache.Cache

	EnableParallelProcessing bool
	BatchSize                int
	Timeout                  time.Duration
	RetryAttempts            int

	Log zerolog.Logger
}

// New builds an Engine with spec.md §4.F's documented defaults
// (sequential mode, batch size 100, 5s per-analyzer timeout, no retries).
func New(s *store.Store, importance *analysis.ImportanceAnalyzer, dateSize *analysis.DateSizeAnalyzer, label *analysis.LabelClassifier, c *cache.Cache, log zerolog.Logger) *Engine {
	return &Engine{
		Importance:    importance,
		DateSize:      dateSize,
		Label:         label,
		Store:         s,
		Cache:         c,
		BatchSize:     100,
		Timeout:       5 * time.Second,
		RetryAttempts: 0,
		Log:           log.With().Str("component", "categorization_engine").Logger(),
	}
}

// CategorizeEmails pulls matching emails (uncategorized only, unless
// ForceRefresh), analyzes and persists each, and returns a processed-run
// summary. Per spec.md §4.F, progress is logged every 100 emails and the
// user's cache namespace is flushed once the run completes.
func (e *Engine) CategorizeEmails(ctx context.Context, opts Options) (Result, error) {
	result := Result{
		Insights: Insights{
			AgeCategoryHistogram:  map[domain.AgeCategory]int{},
			SizeCategoryHistogram: map[domain.SizeCategory]int{},
		},
	}

	ruleCounts := map[string]int{}
	var spamHits int
	var confidenceSum float64
	var allIndicators int

	offset := 0
	skipped := 0
	for {
		crit := domain.SearchCriteria{
			UserID:         opts.UserID,
			CategoryIsNull: !opts.ForceRefresh,
			Limit:          e.BatchSize,
			Offset:         offset,
		}
		if opts.ForceRefresh && opts.Year != nil {
			crit.Year = opts.Year
		}

		page, err := e.Store.SearchEmails(ctx, crit)
		if err != nil {
			return result, fmt.Errorf("categorize: fetch page at offset %d: %w", offset, err)
		}
		if len(page.Emails) == 0 {
			break
		}

		for _, email := range page.Emails {
			combined, err := e.analyzeEmail(ctx, email, opts.UserID)
			if err != nil {
				e.Log.Warn().Err(err).Str("email_id", email.ID).Msg("analysis failed, skipping")
				skipped++
				continue
			}

			enriched := collectAnalyzerResults(email, combined, time.Now())
			if err := e.Store.UpsertEmailIndex(ctx, enriched); err != nil {
				return result, fmt.Errorf("categorize: persist %s: %w", email.ID, err)
			}

			result.Processed++
			result.Emails = append(result.Emails, enriched)
			switch combined.Category {
			case domain.CategoryHigh:
				result.Categories.High++
			case domain.CategoryMedium:
				result.Categories.Medium++
			case domain.CategoryLow:
				result.Categories.Low++
			}

			for _, ruleID := range combined.Importance.MatchedRules {
				ruleCounts[ruleID]++
			}
			if combined.Label.SpamScore > 0.5 {
				spamHits++
			}
			confidenceSum += combined.Importance.Confidence
			result.Insights.AgeCategoryHistogram[combined.DateSize.AgeCategory]++
			result.Insights.SizeCategoryHistogram[combined.DateSize.SizeCategory]++
			allIndicators += len(enriched.AllIndicators())

			if result.Processed%100 == 0 {
				e.Log.Info().Int("processed", result.Processed).Msg("categorization progress")
			}
		}

		if len(page.Emails) < e.BatchSize {
			break
		}
		// CategoryIsNull pages shrink as each processed email is persisted
		// with a category. Emails whose analysis failed stay uncategorized
		// and sort ahead of the unprocessed rows, so the next page starts
		// just past them. Force-refresh runs (which don't filter on
		// category) advance by a full batch.
		if opts.ForceRefresh {
			offset += e.BatchSize
		} else {
			offset = skipped
		}
	}

	if result.Processed > 0 {
		result.Insights.SpamDetectionRate = float64(spamHits) / float64(result.Processed)
		result.Insights.AvgImportanceConfidence = confidenceSum / float64(result.Processed)
	}
	result.Insights.TopMatchedRules = topRuleCounts(ruleCounts, 5)

	if e.Cache != nil {
		e.Cache.InvalidateUser(opts.UserID)
	}

	return result, nil
}

// AnalyzeEmail runs the three analyzers and combines their verdict without
// persisting anything.
func (e *Engine) AnalyzeEmail(ctx context.Context, email domain.EmailIndex, userID string) (CombinedAnalysisResult, error) {
	return e.analyzeEmail(ctx, email, userID)
}

func (e *Engine) analyzeEmail(ctx context.Context, email domain.EmailIndex, userID string) (CombinedAnalysisResult, error) {
	ec := analysis.NewContext(email.ID, userID, email.Subject, email.Sender, email.Snippet, email.Labels, email.Date, email.Size, email.HasAttachments)
	now := time.Now()

	var imp analysis.ImportanceResult
	var ds analysis.DateSizeResult
	var lbl analysis.LabelResult

	if e.EnableParallelProcessing {
		var err error
		imp, ds, lbl, err = e.analyzeParallel(ctx, ec, now)
		if err != nil {
			return CombinedAnalysisResult{}, err
		}
	} else {
		start := time.Now()
		imp = e.Importance.Analyze(ctx, ec)
		e.Log.Debug().Str("analyzer", "importance").Dur("took", time.Since(start)).Msg("analyzer duration")

		start = time.Now()
		ds = e.DateSize.Analyze(ctx, ec, now)
		e.Log.Debug().Str("analyzer", "datesize").Dur("took", time.Since(start)).Msg("analyzer duration")

		start = time.Now()
		lbl = e.Label.Analyze(ctx, ec)
		e.Log.Debug().Str("analyzer", "label").Dur("took", time.Since(start)).Msg("analyzer duration")
	}

	category := combineCategory(imp, ds, lbl)
	confidence := overallConfidence(imp, lbl)

	return CombinedAnalysisResult{
		Importance: imp,
		DateSize:   ds,
		Label:      lbl,
		Category:   category,
		Confidence: confidence,
	}, nil
}

// analyzeParallel runs the three analyzers concurrently under a single
// shared deadline; the email's analysis is rejected (non-nil error) if the
// deadline elapses before all three finish, per spec.md §4.F.
func (e *Engine) analyzeParallel(ctx context.Context, ec analysis.EmailAnalysisContext, now time.Time) (analysis.ImportanceResult, analysis.DateSizeResult, analysis.LabelResult, error) {
	deadline := e.Timeout
	if deadline <= 0 {
		deadline = 5 * time.Second
	}
	dctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var (
		imp analysis.ImportanceResult
		ds  analysis.DateSizeResult
		lbl analysis.LabelResult
	)

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(3)
	go func() { defer wg.Done(); imp = e.Importance.Analyze(dctx, ec) }()
	go func() { defer wg.Done(); ds = e.DateSize.Analyze(dctx, ec, now) }()
	go func() { defer wg.Done(); lbl = e.Label.Analyze(dctx, ec) }()

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return imp, ds, lbl, nil
	case <-dctx.Done():
		return analysis.ImportanceResult{}, analysis.DateSizeResult{}, analysis.LabelResult{}, fmt.Errorf("categorize: analysis deadline exceeded for email %s: %w", ec.ID, dctx.Err())
	}
}

// combineCategory implements spec.md §4.F's combination rule exactly.
func combineCategory(imp analysis.ImportanceResult, ds analysis.DateSizeResult, lbl analysis.LabelResult) domain.Category {
	labelImportant := lbl.Category == domain.GmailImportant
	recent := ds.AgeCategory == domain.AgeRecent

	switch imp.Level {
	case domain.ImportanceHigh:
		return domain.CategoryHigh
	case domain.ImportanceLow:
		if recent && labelImportant {
			return domain.CategoryMedium
		}
		return domain.CategoryLow
	case domain.ImportanceMedium:
		if recent && labelImportant {
			return domain.CategoryHigh
		}
		if lbl.SpamScore > 0.7 || lbl.PromotionalScore > 0.8 {
			return domain.CategoryLow
		}
		return domain.CategoryMedium
	default:
		return domain.CategoryMedium
	}
}

// overallConfidence implements spec.md §4.F's weighted confidence formula.
func overallConfidence(imp analysis.ImportanceResult, lbl analysis.LabelResult) float64 {
	indicatorCount := len(lbl.SpamIndicators) + len(lbl.PromotionalIndicators) + len(lbl.SocialIndicators)
	indicatorTerm := float64(indicatorCount) * 0.2
	if indicatorTerm > 1 {
		indicatorTerm = 1
	}
	return 0.6*imp.Confidence + 0.2*0.8 + 0.2*indicatorTerm
}

// collectAnalyzerResults copies every analyzer field onto email, per
// spec.md §4.F "Persistence". gmail_category "other" is folded to "primary"
// because the column constraint rejects "other".
func collectAnalyzerResults(email domain.EmailIndex, c CombinedAnalysisResult, now time.Time) domain.EmailIndex {
	importanceScore := c.Importance.Score
	importanceLevel := c.Importance.Level
	importanceConfidence := c.Importance.Confidence
	ageCategory := c.DateSize.AgeCategory
	sizeCategory := c.DateSize.SizeCategory
	recencyScore := c.DateSize.RecencyScore
	sizePenalty := c.DateSize.SizePenalty
	gmailCategory := domain.FoldGmailCategory(c.Label.Category)
	spamScore := c.Label.SpamScore
	promotionalScore := c.Label.PromotionalScore
	socialScore := c.Label.SocialScore
	category := c.Category
	timestamp := now.UnixMilli()
	version := domain.AnalysisVersion

	email.ImportanceScore = &importanceScore
	email.ImportanceLevel = &importanceLevel
	email.ImportanceMatchedRules = c.Importance.MatchedRules
	email.ImportanceConfidence = &importanceConfidence

	email.AgeCategory = &ageCategory
	email.SizeCategory = &sizeCategory
	email.RecencyScore = &recencyScore
	email.SizePenalty = &sizePenalty

	email.GmailCategory = &gmailCategory
	email.SpamScore = &spamScore
	email.PromotionalScore = &promotionalScore
	email.SocialScore = &socialScore
	email.SpamIndicators = c.Label.SpamIndicators
	email.PromotionalIndics = c.Label.PromotionalIndicators
	email.SocialIndicators = c.Label.SocialIndicators

	email.Category = &category
	email.AnalysisTimestamp = &timestamp
	email.AnalysisVersion = &version

	return email
}

func topRuleCounts(counts map[string]int, n int) []RuleCount {
	out := make([]RuleCount, 0, len(counts))
	for id, count := range counts {
		out = append(out, RuleCount{RuleID: id, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].RuleID < out[j].RuleID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
