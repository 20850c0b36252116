// Package domain holds the data model shared by every component: the email
// index row, job records, archive/search/cleanup records and the file ACL
// tables. Nothing in this package touches SQL or I/O.
package domain

import "time"

// Category is the final, persisted categorization bucket for an email.
type Category string

const (
	CategoryHigh   Category = "high"
	CategoryMedium Category = "medium"
	CategoryLow    Category = "low"
)

// AgeCategory buckets an email by how old it is.
type AgeCategory string

const (
	AgeRecent   AgeCategory = "recent"
	AgeModerate AgeCategory = "moderate"
	AgeOld      AgeCategory = "old"
)

// SizeCategory buckets an email by its byte size.
type SizeCategory string

const (
	SizeSmall  SizeCategory = "small"
	SizeMedium SizeCategory = "medium"
	SizeLarge  SizeCategory = "large"
)

// ImportanceLevel is the ImportanceAnalyzer's verdict.
type ImportanceLevel string

const (
	ImportanceHigh   ImportanceLevel = "high"
	ImportanceMedium ImportanceLevel = "medium"
	ImportanceLow    ImportanceLevel = "low"
)

// GmailCategory is the provider-side label bucket the LabelClassifier maps
// label tokens onto. "other" is never persisted — see FoldGmailCategory.
type GmailCategory string

const (
	GmailImportant  GmailCategory = "important"
	GmailSpam       GmailCategory = "spam"
	GmailPromotions GmailCategory = "promotions"
	GmailSocial     GmailCategory = "social"
	GmailPrimary    GmailCategory = "primary"
	GmailUpdates    GmailCategory = "updates"
	GmailForums     GmailCategory = "forums"
	GmailOther      GmailCategory = "other"
)

// FoldGmailCategory maps the analyzer-internal "other" bucket onto "primary"
// because the email_index.gmail_category CHECK constraint does not accept
// "other" — see spec.md §4.F "Persistence".
func FoldGmailCategory(c GmailCategory) GmailCategory {
	if c == GmailOther {
		return GmailPrimary
	}
	return c
}

// Archive location literal protocol values. Spec.md §9 "Open Questions"
// treats the casing as a literal wire value, not a style choice — keep both
// exactly as written.
const (
	ArchiveLocationTrash = "trash"
	ArchiveLocationGmail = "ARCHIVED"
	// ArchiveLocationCleanup marks rows archived locally by a cleanup
	// policy's "archive" action, per spec.md §4.J batchDeleteForCleanup —
	// unlike the gmail/export paths this literal isn't pinned by spec.md,
	// so it's a local Open Question decision (see DESIGN.md).
	ArchiveLocationCleanup = "cleanup"
)

const AnalysisVersion = "1.0.0"

// EmailIndex is the local mirror row of one remote message, per spec.md §3.
type EmailIndex struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"thread_id"`
	UserID   string   `json:"user_id"`

	Subject        string   `json:"subject"`
	Sender         string   `json:"sender"`
	Recipients     []string `json:"recipients"`
	Date           int64    `json:"date"` // epoch ms
	Year           int      `json:"year"`
	Size           int64    `json:"size"`
	HasAttachments bool     `json:"has_attachments"`
	Labels         []string `json:"labels"`
	Snippet        string   `json:"snippet"`

	Archived        bool   `json:"archived"`
	ArchiveDate     *int64 `json:"archive_date,omitempty"`
	ArchiveLocation string `json:"archive_location,omitempty"`

	// Analysis — nullable until first analyzed.
	ImportanceScore        *float64         `json:"importance_score,omitempty"`
	ImportanceLevel        *ImportanceLevel `json:"importance_level,omitempty"`
	ImportanceMatchedRules []string         `json:"importance_matched_rules,omitempty"`
	ImportanceConfidence   *float64         `json:"importance_confidence,omitempty"`

	AgeCategory  *AgeCategory  `json:"age_category,omitempty"`
	SizeCategory *SizeCategory `json:"size_category,omitempty"`
	RecencyScore *float64      `json:"recency_score,omitempty"`
	SizePenalty  *float64      `json:"size_penalty,omitempty"`

	GmailCategory      *GmailCategory `json:"gmail_category,omitempty"`
	SpamScore          *float64       `json:"spam_score,omitempty"`
	PromotionalScore   *float64       `json:"promotional_score,omitempty"`
	SocialScore        *float64       `json:"social_score,omitempty"`
	SpamIndicators     []string       `json:"spam_indicators,omitempty"`
	PromotionalIndics  []string       `json:"promotional_indicators,omitempty"`
	SocialIndicators   []string       `json:"social_indicators,omitempty"`

	Category *Category `json:"category,omitempty"`

	AnalysisTimestamp *int64  `json:"analysis_timestamp,omitempty"`
	AnalysisVersion   *string `json:"analysis_version,omitempty"`
}

// AllIndicators concatenates every analyzer-produced indicator list.
func (e *EmailIndex) AllIndicators() []string {
	out := make([]string, 0, len(e.SpamIndicators)+len(e.PromotionalIndics)+len(e.SocialIndicators))
	out = append(out, e.SpamIndicators...)
	out = append(out, e.PromotionalIndics...)
	out = append(out, e.SocialIndicators...)
	return out
}

// AgeDays returns the email's age in days relative to now, as a fractional
// value (hours / 24).
func (e *EmailIndex) AgeDays(now time.Time) float64 {
	sent := time.UnixMilli(e.Date)
	return now.Sub(sent).Hours() / 24
}
