// Package analysis implements the three stateless email analyzers from
// spec.md §4.E (ImportanceAnalyzer, DateSizeAnalyzer, LabelClassifier),
// adapted from the Strategy-pattern fraud detectors that originally lived
// in internal/domain/detection: a pluggable rule/strategy list evaluated
// independently per email, with a shared helper set (substring matching,
// keyword counting, label counting) generalized from detection/helpers.go.
package analysis

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// EmailAnalysisContext is the normalized view every analyzer reads, per
// spec.md §4.E: "email + normalized lowercase subject/sender/snippet,
// labels, date, size, hasAttachments, user_id".
type EmailAnalysisContext struct {
	ID             string
	UserID         string
	Subject        string // lowercased
	Sender         string // lowercased
	Snippet        string // lowercased
	Labels         []string
	Date           int64 // epoch ms
	Size           int64
	HasAttachments bool
}

// NewContext builds a normalized context from raw envelope fields.
func NewContext(id, userID, subject, sender, snippet string, labels []string, date, size int64, hasAttachments bool) EmailAnalysisContext {
	return EmailAnalysisContext{
		ID:             id,
		UserID:         userID,
		Subject:        strings.ToLower(subject),
		Sender:         strings.ToLower(sender),
		Snippet:        strings.ToLower(snippet),
		Labels:         labels,
		Date:           date,
		Size:           size,
		HasAttachments: hasAttachments,
	}
}

// AgeDays returns the context's age in days relative to now.
func (c EmailAnalysisContext) AgeDays(now time.Time) float64 {
	return now.Sub(time.UnixMilli(c.Date)).Hours() / 24
}

// CacheKeyStrategy selects how an analyzer derives its cache key, per
// spec.md §4.E "configurable key strategy".
type CacheKeyStrategy string

const (
	// KeyPartial builds "{prefix}:{user}:{id}:{subject}:{sender}" — cheap,
	// but two emails with the same id/subject/sender collide even if other
	// fields differ.
	KeyPartial CacheKeyStrategy = "partial"
	// KeyFull builds "{prefix}:{user}:{base64(canonical context)}" — exact,
	// at the cost of a larger key.
	KeyFull CacheKeyStrategy = "full"
)

// CacheKey builds the analyzer cache key for ctx under strategy, namespaced
// by prefix (typically the analyzer name).
func CacheKey(strategy CacheKeyStrategy, prefix string, ctx EmailAnalysisContext) string {
	if strategy == KeyFull {
		canonical, _ := json.Marshal(ctx)
		return prefix + ":" + ctx.UserID + ":" + base64.StdEncoding.EncodeToString(canonical)
	}
	return prefix + ":" + ctx.UserID + ":" + ctx.ID + ":" + ctx.Subject + ":" + ctx.Sender
}
