// Package search implements SearchEngine (spec.md §4.K): it delegates the
// structured criteria to the Store, applies the free-text predicate the
// Store doesn't know about, and owns the saved-search blobs. Grounded on
// the query-building helpers that used to live in internal/domain/detection
// (since adapted into internal/analysis), which compose a request shape
// the same way buildAdvancedQuery composes a
// provider query string.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mailsentinel/core/internal/domain"
	"github.com/mailsentinel/core/internal/store"
)

// DefaultLimit is spec.md §4.K's default page size.
const DefaultLimit = 50

// Engine is the SearchEngine component.
type Engine struct {
	Store *store.Store
	Log   zerolog.Logger
}

// New builds an Engine.
func New(s *store.Store, log zerolog.Logger) *Engine {
	return &Engine{Store: s, Log: log.With().Str("component", "search_engine").Logger()}
}

// Search resolves criteria via the Store, then applies the free-text Query
// predicate over subject/snippet, per spec.md §4.K.
func (e *Engine) Search(ctx context.Context, criteria domain.SearchCriteria) (domain.SearchResult, error) {
	limit := criteria.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := criteria.Query
	dbCriteria := criteria
	dbCriteria.Query = ""

	if query == "" {
		dbCriteria.Limit = limit
		return e.Store.SearchEmails(ctx, dbCriteria)
	}

	// Free text is applied after the database call, so the database page
	// can't be trusted to contain `limit` post-filter matches. The Store
	// defaults an unset limit to its own page size, so page through every
	// row matching the structured criteria rather than relying on that.
	all, err := e.searchAllPages(ctx, dbCriteria)
	if err != nil {
		return domain.SearchResult{}, err
	}

	matcher := newTextMatcher(query)
	matched := make([]domain.EmailIndex, 0, len(all))
	for _, email := range all {
		if matcher.matches(email.Subject) || matcher.matches(email.Snippet) {
			matched = append(matched, email)
		}
	}

	total := len(matched)
	start := criteria.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return domain.SearchResult{Emails: matched[start:end], Total: total}, nil
}

func (e *Engine) searchAllPages(ctx context.Context, criteria domain.SearchCriteria) ([]domain.EmailIndex, error) {
	const pageSize = 500
	var out []domain.EmailIndex
	offset := 0
	for {
		page := criteria
		page.Limit = pageSize
		page.Offset = offset
		result, err := e.Store.SearchEmails(ctx, page)
		if err != nil {
			return nil, err
		}
		out = append(out, result.Emails...)
		if len(result.Emails) < pageSize {
			return out, nil
		}
		offset += pageSize
	}
}

// textMatcher implements spec.md §4.K's free-text predicate: bare terms
// match case-insensitively if present anywhere; `"quoted spans"` must
// appear verbatim (case-insensitively) as a contiguous phrase.
type textMatcher struct {
	phrases []string
	terms   []string
}

func newTextMatcher(query string) textMatcher {
	var m textMatcher
	rest := query
	for {
		start := strings.IndexByte(rest, '"')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start+1:], '"')
		if end < 0 {
			break
		}
		phrase := rest[start+1 : start+1+end]
		if strings.TrimSpace(phrase) != "" {
			m.phrases = append(m.phrases, strings.ToLower(phrase))
		}
		rest = rest[:start] + " " + rest[start+1+end+1:]
	}
	for _, term := range strings.Fields(rest) {
		m.terms = append(m.terms, strings.ToLower(term))
	}
	return m
}

func (m textMatcher) matches(text string) bool {
	if len(m.phrases) == 0 && len(m.terms) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, p := range m.phrases {
		if !strings.Contains(lower, p) {
			return false
		}
	}
	for _, t := range m.terms {
		if !strings.Contains(lower, t) {
			return false
		}
	}
	return true
}

// BuildAdvancedQuery maps criteria onto the remote provider's query
// grammar, per spec.md §4.K. An empty criteria yields an empty string.
func BuildAdvancedQuery(criteria domain.SearchCriteria) string {
	var parts []string

	if criteria.Query != "" {
		parts = append(parts, fmt.Sprintf("%q", criteria.Query))
	}
	if criteria.SenderLike != "" {
		parts = append(parts, "from:"+criteria.SenderLike)
	}
	if criteria.YearFrom != nil {
		parts = append(parts, fmt.Sprintf("after:%d/1/1", *criteria.YearFrom))
	}
	if criteria.YearTo != nil {
		// End year is exclusive: 2023-2024 means before the first day after 2024.
		parts = append(parts, fmt.Sprintf("before:%d/1/1", *criteria.YearTo+1))
	}
	if criteria.HasAttachments != nil && *criteria.HasAttachments {
		parts = append(parts, "has:attachment")
	}
	for _, label := range criteria.Labels {
		parts = append(parts, "label:"+label)
	}
	if criteria.SizeMin != nil {
		parts = append(parts, "larger:"+strconv.FormatInt(*criteria.SizeMin, 10))
	}
	if criteria.SizeMax != nil {
		parts = append(parts, "smaller:"+strconv.FormatInt(*criteria.SizeMax, 10))
	}

	return strings.Join(parts, " ")
}

// SaveSearch persists criteria under name for userID, per spec.md §4.K.
func (e *Engine) SaveSearch(ctx context.Context, userID, name string, criteria domain.SearchCriteria) (domain.SavedSearch, error) {
	encoded, err := json.Marshal(criteria)
	if err != nil {
		return domain.SavedSearch{}, fmt.Errorf("search: marshal criteria: %w", err)
	}
	sv := domain.SavedSearch{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		Criteria:  string(encoded),
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := e.Store.SaveSearch(ctx, sv); err != nil {
		return domain.SavedSearch{}, err
	}
	return sv, nil
}

// ListSavedSearches returns every saved search owned by userID.
func (e *Engine) ListSavedSearches(ctx context.Context, userID string) ([]domain.SavedSearch, error) {
	return e.Store.ListSavedSearches(ctx, userID)
}

// DecodeCriteria unmarshals a SavedSearch's opaque criteria blob.
func DecodeCriteria(sv domain.SavedSearch) (domain.SearchCriteria, error) {
	var c domain.SearchCriteria
	if err := json.Unmarshal([]byte(sv.Criteria), &c); err != nil {
		return domain.SearchCriteria{}, fmt.Errorf("search: decode saved criteria: %w", err)
	}
	return c, nil
}
