package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mailsentinel/core/internal/domain"
)

// SaveArchiveRule persists a named criteria/action rule a user can invoke
// later, from spec.md §3 archive_rules.
func (s *Store) SaveArchiveRule(ctx context.Context, r domain.ArchiveRule) error {
	_, err := s.Execute(ctx,
		"INSERT INTO archive_rules (id, user_id, name, criteria, action, created_at) VALUES (?,?,?,?,?,?)",
		r.ID, r.UserID, r.Name, r.Criteria, r.Action, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save archive rule: %w", err)
	}
	return nil
}

// ListArchiveRules returns every rule owned by userID.
func (s *Store) ListArchiveRules(ctx context.Context, userID string) ([]domain.ArchiveRule, error) {
	rows, err := s.Query(ctx, "SELECT id, user_id, name, criteria, action, created_at FROM archive_rules WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("list archive rules: %w", err)
	}
	defer rows.Close()

	var out []domain.ArchiveRule
	for rows.Next() {
		var r domain.ArchiveRule
		if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &r.Criteria, &r.Action, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan archive rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveArchiveRecord logs one export-to-file operation, from spec.md §4.J.
func (s *Store) SaveArchiveRecord(ctx context.Context, r domain.ArchiveRecord) error {
	ids, err := json.Marshal(r.EmailIDs)
	if err != nil {
		return fmt.Errorf("marshal archive record email ids: %w", err)
	}
	_, err = s.Execute(ctx,
		"INSERT INTO archive_records (id, user_id, file_path, email_ids, created_at) VALUES (?,?,?,?,?)",
		r.ID, r.UserID, r.FilePath, string(ids), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save archive record: %w", err)
	}
	return nil
}

// ListArchiveRecords returns every export record for userID, newest first.
func (s *Store) ListArchiveRecords(ctx context.Context, userID string) ([]domain.ArchiveRecord, error) {
	rows, err := s.Query(ctx, "SELECT id, user_id, file_path, email_ids, created_at FROM archive_records WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("list archive records: %w", err)
	}
	defer rows.Close()

	var out []domain.ArchiveRecord
	for rows.Next() {
		var r domain.ArchiveRecord
		var ids string
		if err := rows.Scan(&r.ID, &r.UserID, &r.FilePath, &ids, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan archive record: %w", err)
		}
		_ = json.Unmarshal([]byte(ids), &r.EmailIDs)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveSearch persists a named query a user can re-run later, from spec.md §4.E.
func (s *Store) SaveSearch(ctx context.Context, sv domain.SavedSearch) error {
	_, err := s.Execute(ctx,
		"INSERT INTO saved_searches (id, user_id, name, criteria, created_at) VALUES (?,?,?,?,?)",
		sv.ID, sv.UserID, sv.Name, sv.Criteria, sv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save search: %w", err)
	}
	return nil
}

// ListSavedSearches returns every saved search for userID.
func (s *Store) ListSavedSearches(ctx context.Context, userID string) ([]domain.SavedSearch, error) {
	rows, err := s.Query(ctx, "SELECT id, user_id, name, criteria, created_at FROM saved_searches WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("list saved searches: %w", err)
	}
	defer rows.Close()

	var out []domain.SavedSearch
	for rows.Next() {
		var sv domain.SavedSearch
		if err := rows.Scan(&sv.ID, &sv.UserID, &sv.Name, &sv.Criteria, &sv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan saved search: %w", err)
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}
