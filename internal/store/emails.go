package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mailsentinel/core/internal/domain"
)

// importanceLevelPrefixSet expands a CleanupCriteria.ImportanceLevelMax cap
// into the set of levels at or below it, per spec.md §4.A
// "importance_level_max expands to the prefix set through {low,medium,high}".
var importanceLevelPrefixSet = map[string][]string{
	"low":    {"low"},
	"medium": {"low", "medium"},
	"high":   {"low", "medium", "high"},
}

// UpsertEmailIndex inserts or replaces one row, per spec.md §4.A
// "ON CONFLICT(id) DO UPDATE" semantics grounded on
// niraj8-things/email/internal/store/sqlite.go's UpsertMessages.
func (s *Store) UpsertEmailIndex(ctx context.Context, e domain.EmailIndex) error {
	row, err := marshalEmailIndex(e)
	if err != nil {
		return err
	}
	_, err = s.Execute(ctx, upsertEmailIndexSQL, row...)
	return err
}

// BulkUpsertEmailIndex upserts many rows inside one transaction, grounded on
// the same sqlite.go UpsertMessages batching shape.
func (s *Store) BulkUpsertEmailIndex(ctx context.Context, emails []domain.EmailIndex) (int64, error) {
	if len(emails) == 0 {
		return 0, nil
	}
	paramSets := make([][]interface{}, 0, len(emails))
	for _, e := range emails {
		row, err := marshalEmailIndex(e)
		if err != nil {
			return 0, err
		}
		paramSets = append(paramSets, row)
	}
	res, err := s.ExecuteBatch(ctx, upsertEmailIndexSQL, paramSets)
	if err != nil {
		return 0, err
	}
	return res.Changes, nil
}

const upsertEmailIndexSQL = `
INSERT INTO email_index (
	id, thread_id, user_id, subject, sender, recipients, date, year, size,
	has_attachments, labels, snippet, archived, archive_date, archive_location,
	category, importance_score, importance_level, importance_matched_rules,
	importance_confidence, age_category, size_category, recency_score,
	size_penalty, gmail_category, spam_score, promotional_score, social_score,
	spam_indicators, promotional_indicators, social_indicators,
	analysis_timestamp, analysis_version
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
	thread_id=excluded.thread_id, user_id=excluded.user_id, subject=excluded.subject,
	sender=excluded.sender, recipients=excluded.recipients, date=excluded.date,
	year=excluded.year, size=excluded.size, has_attachments=excluded.has_attachments,
	labels=excluded.labels, snippet=excluded.snippet, archived=excluded.archived,
	archive_date=excluded.archive_date, archive_location=excluded.archive_location,
	category=excluded.category, importance_score=excluded.importance_score,
	importance_level=excluded.importance_level,
	importance_matched_rules=excluded.importance_matched_rules,
	importance_confidence=excluded.importance_confidence,
	age_category=excluded.age_category, size_category=excluded.size_category,
	recency_score=excluded.recency_score, size_penalty=excluded.size_penalty,
	gmail_category=excluded.gmail_category, spam_score=excluded.spam_score,
	promotional_score=excluded.promotional_score, social_score=excluded.social_score,
	spam_indicators=excluded.spam_indicators,
	promotional_indicators=excluded.promotional_indicators,
	social_indicators=excluded.social_indicators,
	analysis_timestamp=excluded.analysis_timestamp,
	analysis_version=excluded.analysis_version
`

func marshalEmailIndex(e domain.EmailIndex) ([]interface{}, error) {
	recipients, err := json.Marshal(e.Recipients)
	if err != nil {
		return nil, fmt.Errorf("marshal recipients: %w", err)
	}
	labels, err := json.Marshal(e.Labels)
	if err != nil {
		return nil, fmt.Errorf("marshal labels: %w", err)
	}
	matchedRules, err := json.Marshal(e.ImportanceMatchedRules)
	if err != nil {
		return nil, fmt.Errorf("marshal importance_matched_rules: %w", err)
	}
	spamInd, err := json.Marshal(e.SpamIndicators)
	if err != nil {
		return nil, fmt.Errorf("marshal spam_indicators: %w", err)
	}
	promoInd, err := json.Marshal(e.PromotionalIndics)
	if err != nil {
		return nil, fmt.Errorf("marshal promotional_indicators: %w", err)
	}
	socialInd, err := json.Marshal(e.SocialIndicators)
	if err != nil {
		return nil, fmt.Errorf("marshal social_indicators: %w", err)
	}

	var category *string
	if e.Category != nil {
		c := string(*e.Category)
		category = &c
	}
	var importanceLevel *string
	if e.ImportanceLevel != nil {
		l := string(*e.ImportanceLevel)
		importanceLevel = &l
	}
	var ageCategory *string
	if e.AgeCategory != nil {
		a := string(*e.AgeCategory)
		ageCategory = &a
	}
	var sizeCategory *string
	if e.SizeCategory != nil {
		sc := string(*e.SizeCategory)
		sizeCategory = &sc
	}
	var gmailCategory *string
	if e.GmailCategory != nil {
		folded := domain.FoldGmailCategory(*e.GmailCategory)
		g := string(folded)
		gmailCategory = &g
	}

	return []interface{}{
		e.ID, e.ThreadID, e.UserID, e.Subject, e.Sender, string(recipients),
		e.Date, e.Year, e.Size, e.HasAttachments, string(labels), e.Snippet,
		e.Archived, e.ArchiveDate, nullIfEmpty(e.ArchiveLocation), category,
		e.ImportanceScore, importanceLevel, string(matchedRules),
		e.ImportanceConfidence, ageCategory, sizeCategory, e.RecencyScore,
		e.SizePenalty, gmailCategory, e.SpamScore, e.PromotionalScore,
		e.SocialScore, string(spamInd), string(promoInd), string(socialInd),
		e.AnalysisTimestamp, e.AnalysisVersion,
	}, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

const emailIndexColumns = `
	id, thread_id, user_id, subject, sender, recipients, date, year, size,
	has_attachments, labels, snippet, archived, archive_date, archive_location,
	category, importance_score, importance_level, importance_matched_rules,
	importance_confidence, age_category, size_category, recency_score,
	size_penalty, gmail_category, spam_score, promotional_score, social_score,
	spam_indicators, promotional_indicators, social_indicators,
	analysis_timestamp, analysis_version
`

func scanEmailIndex(rows *sql.Rows) (domain.EmailIndex, error) {
	var e domain.EmailIndex
	var recipients, labels string
	var matchedRules, spamInd, promoInd, socialInd sql.NullString
	var category, importanceLevel, ageCategory, sizeCategory, gmailCategory sql.NullString
	var archiveLocation sql.NullString
	var archiveDate sql.NullInt64
	var analysisTimestamp sql.NullInt64
	var analysisVersion sql.NullString

	err := rows.Scan(
		&e.ID, &e.ThreadID, &e.UserID, &e.Subject, &e.Sender, &recipients, &e.Date, &e.Year, &e.Size,
		&e.HasAttachments, &labels, &e.Snippet, &e.Archived, &archiveDate, &archiveLocation,
		&category, &e.ImportanceScore, &importanceLevel, &matchedRules,
		&e.ImportanceConfidence, &ageCategory, &sizeCategory, &e.RecencyScore,
		&e.SizePenalty, &gmailCategory, &e.SpamScore, &e.PromotionalScore,
		&e.SocialScore, &spamInd, &promoInd, &socialInd,
		&analysisTimestamp, &analysisVersion,
	)
	if err != nil {
		return e, err
	}

	_ = json.Unmarshal([]byte(recipients), &e.Recipients)
	_ = json.Unmarshal([]byte(labels), &e.Labels)
	if matchedRules.Valid {
		_ = json.Unmarshal([]byte(matchedRules.String), &e.ImportanceMatchedRules)
	}
	if spamInd.Valid {
		_ = json.Unmarshal([]byte(spamInd.String), &e.SpamIndicators)
	}
	if promoInd.Valid {
		_ = json.Unmarshal([]byte(promoInd.String), &e.PromotionalIndics)
	}
	if socialInd.Valid {
		_ = json.Unmarshal([]byte(socialInd.String), &e.SocialIndicators)
	}
	if archiveDate.Valid {
		e.ArchiveDate = &archiveDate.Int64
	}
	if archiveLocation.Valid {
		e.ArchiveLocation = archiveLocation.String
	}
	if category.Valid {
		c := domain.Category(category.String)
		e.Category = &c
	}
	if importanceLevel.Valid {
		l := domain.ImportanceLevel(importanceLevel.String)
		e.ImportanceLevel = &l
	}
	if ageCategory.Valid {
		a := domain.AgeCategory(ageCategory.String)
		e.AgeCategory = &a
	}
	if sizeCategory.Valid {
		sc := domain.SizeCategory(sizeCategory.String)
		e.SizeCategory = &sc
	}
	if gmailCategory.Valid {
		g := domain.GmailCategory(gmailCategory.String)
		e.GmailCategory = &g
	}
	if analysisTimestamp.Valid {
		e.AnalysisTimestamp = &analysisTimestamp.Int64
	}
	if analysisVersion.Valid {
		e.AnalysisVersion = &analysisVersion.String
	}
	return e, nil
}

// SearchEmails builds and runs a query from criteria, per spec.md §4.E.
// An empty criteria.UserID omits the user_id predicate entirely rather than
// matching user_id = '' — the legacy single-user fallback documented in
// DESIGN.md Open Question 2.
func (s *Store) SearchEmails(ctx context.Context, c domain.SearchCriteria) (domain.SearchResult, error) {
	where, args := buildSearchWhere(c)

	countQuery := "SELECT COUNT(*) FROM email_index" + where
	var total int
	if err := s.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return domain.SearchResult{}, fmt.Errorf("count search results: %w", err)
	}

	query := "SELECT" + emailIndexColumns + "FROM email_index" + where + " ORDER BY date DESC"
	limit := c.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, c.Offset)

	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("search emails: %w", err)
	}
	defer rows.Close()

	emails := make([]domain.EmailIndex, 0)
	for rows.Next() {
		e, err := scanEmailIndex(rows)
		if err != nil {
			return domain.SearchResult{}, fmt.Errorf("scan search row: %w", err)
		}
		emails = append(emails, e)
	}
	if err := rows.Err(); err != nil {
		return domain.SearchResult{}, err
	}

	return domain.SearchResult{Emails: emails, Total: total}, nil
}

func buildSearchWhere(c domain.SearchCriteria) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if c.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, c.UserID)
	}
	if c.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, c.Category)
	}
	if c.CategoryIsNull {
		clauses = append(clauses, "category IS NULL")
	}
	if len(c.Categories) > 0 {
		clauses = append(clauses, "category IN ("+placeholders(len(c.Categories))+")")
		for _, v := range c.Categories {
			args = append(args, v)
		}
	}
	if len(c.IDs) > 0 {
		clauses = append(clauses, "id IN ("+placeholders(len(c.IDs))+")")
		for _, v := range c.IDs {
			args = append(args, v)
		}
	}
	if c.Year != nil {
		clauses = append(clauses, "year = ?")
		args = append(args, *c.Year)
	}
	if c.YearFrom != nil {
		clauses = append(clauses, "year >= ?")
		args = append(args, *c.YearFrom)
	}
	if c.YearTo != nil {
		clauses = append(clauses, "year <= ?")
		args = append(args, *c.YearTo)
	}
	if c.SizeMin != nil {
		clauses = append(clauses, "size >= ?")
		args = append(args, *c.SizeMin)
	}
	if c.SizeMax != nil {
		clauses = append(clauses, "size <= ?")
		args = append(args, *c.SizeMax)
	}
	if c.Archived != nil {
		clauses = append(clauses, "archived = ?")
		args = append(args, *c.Archived)
	}
	if c.SenderLike != "" {
		clauses = append(clauses, "sender LIKE ?")
		args = append(args, "%"+c.SenderLike+"%")
	}
	if c.HasAttachments != nil {
		clauses = append(clauses, "has_attachments = ?")
		args = append(args, *c.HasAttachments)
	}
	for _, label := range c.Labels {
		clauses = append(clauses, "labels LIKE ?")
		args = append(args, "%\""+label+"\"%")
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}
	return strings.Join(ph, ",")
}

// GetEmailsForCleanup runs the cleanup-eligibility predicate from spec.md
// §4.C "Cleanup criteria": every non-nil criterion is AND-ed; age/no-access
// are computed against the current time rather than stored directly.
func (s *Store) GetEmailsForCleanup(ctx context.Context, userID string, crit domain.CleanupCriteria, limit int) ([]domain.EmailIndex, error) {
	var clauses []string
	args := []interface{}{}

	if userID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, userID)
	}
	if crit.AgeDaysMin != nil {
		cutoff := time.Now().AddDate(0, 0, -*crit.AgeDaysMin).UnixMilli()
		clauses = append(clauses, "date <= ?")
		args = append(args, cutoff)
	}
	if crit.ImportanceLevelMax != nil {
		levels, ok := importanceLevelPrefixSet[*crit.ImportanceLevelMax]
		if !ok {
			return nil, fmt.Errorf("query cleanup candidates: unknown importance_level_max %q", *crit.ImportanceLevelMax)
		}
		clauses = append(clauses, fmt.Sprintf("(importance_level IS NULL OR importance_level IN (%s))", placeholders(len(levels))))
		for _, lvl := range levels {
			args = append(args, lvl)
		}
	}
	if crit.SizeFloorBytes != nil {
		clauses = append(clauses, "size >= ?")
		args = append(args, *crit.SizeFloorBytes)
	}
	if crit.SpamScoreMin != nil {
		clauses = append(clauses, "spam_score >= ?")
		args = append(args, *crit.SpamScoreMin)
	}
	if crit.PromotionalScoreMin != nil {
		clauses = append(clauses, "promotional_score >= ?")
		args = append(args, *crit.PromotionalScoreMin)
	}
	if crit.NoAccessDays != nil {
		cutoff := time.Now().AddDate(0, 0, -*crit.NoAccessDays).UnixMilli()
		clauses = append(clauses, `NOT EXISTS (
			SELECT 1 FROM email_access_summary eas
			WHERE eas.email_id = email_index.id AND eas.user_id = email_index.user_id
			AND eas.last_access_at > ?)`)
		args = append(args, cutoff)
	}
	if crit.AccessScoreMax != nil {
		clauses = append(clauses, `NOT EXISTS (
			SELECT 1 FROM email_access_summary eas
			WHERE eas.email_id = email_index.id AND eas.user_id = email_index.user_id
			AND eas.access_score > ?)`)
		args = append(args, *crit.AccessScoreMax)
	}
	clauses = append(clauses, "archived = 0")

	query := "SELECT" + emailIndexColumns + "FROM email_index"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY COALESCE(importance_score,0) ASC, date ASC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cleanup candidates: %w", err)
	}
	defer rows.Close()

	out := make([]domain.EmailIndex, 0)
	for rows.Next() {
		e, err := scanEmailIndex(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cleanup candidate: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkEmailsAsArchived flips archived=1 and records the archive location,
// per spec.md §4.D archive_location's two literal values.
func (s *Store) MarkEmailsAsArchived(ctx context.Context, ids []string, location string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := nowMs()
	query := fmt.Sprintf(
		"UPDATE email_index SET archived = 1, archive_date = ?, archive_location = ? WHERE id IN (%s)",
		placeholders(len(ids)),
	)
	args := make([]interface{}, 0, len(ids)+2)
	args = append(args, now, location)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.Execute(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark emails archived: %w", err)
	}
	return res.Changes, nil
}

// RestoreEmailIDs clears the archive lifecycle fields, per spec.md §4.J
// "restoreEmails": archived, archive_date, archive_location all reset.
func (s *Store) RestoreEmailIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(
		"UPDATE email_index SET archived = 0, archive_date = NULL, archive_location = NULL WHERE id IN (%s)",
		placeholders(len(ids)),
	)
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.Execute(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("restore emails: %w", err)
	}
	return res.Changes, nil
}

// DeleteEmailIDs removes rows outright, per spec.md §4.D's hard-delete path
// (archive_location == "trash"). Returns the actual changed-row count — see
// DESIGN.md Open Question 3.
func (s *Store) DeleteEmailIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf("DELETE FROM email_index WHERE id IN (%s)", placeholders(len(ids)))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := s.Execute(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete email ids: %w", err)
	}
	return res.Changes, nil
}

// GetEmailByID fetches a single row, returning sql.ErrNoRows if absent.
func (s *Store) GetEmailByID(ctx context.Context, id string) (domain.EmailIndex, error) {
	query := "SELECT" + emailIndexColumns + "FROM email_index WHERE id = ?"
	rows, err := s.Query(ctx, query, id)
	if err != nil {
		return domain.EmailIndex{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		return domain.EmailIndex{}, sql.ErrNoRows
	}
	return scanEmailIndex(rows)
}

// CountEmails returns the total row count for a user, or the whole table if
// userID is "".
func (s *Store) CountEmails(ctx context.Context, userID string) (int, error) {
	var n int
	if userID == "" {
		err := s.QueryRow(ctx, "SELECT COUNT(*) FROM email_index").Scan(&n)
		return n, err
	}
	err := s.QueryRow(ctx, "SELECT COUNT(*) FROM email_index WHERE user_id = ?", userID).Scan(&n)
	return n, err
}
