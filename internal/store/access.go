package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/mailsentinel/core/internal/domain"
)

// accessHalfLifeDays is the access-count scale in recomputeAccessScore: seven
// accesses give a score of about 0.63. The score does not depend on when the
// accesses happened. Used only by recomputeAccessScore below.
const accessHalfLifeDays = 7.0

// RecordAccess appends one view/search event and refreshes the denormalized
// summary row, grounded on spec.md §4.I "AccessPattern" / "RecordAccess".
func (s *Store) RecordAccess(ctx context.Context, userID, emailID string, kind domain.AccessKind) error {
	now := nowMs()
	_, err := s.Execute(ctx,
		"INSERT INTO email_access_log (user_id, email_id, kind, created_at) VALUES (?,?,?,?)",
		userID, emailID, string(kind), now,
	)
	if err != nil {
		return fmt.Errorf("record access event: %w", err)
	}

	var count int
	if err := s.QueryRow(ctx,
		"SELECT COUNT(*) FROM email_access_log WHERE user_id = ? AND email_id = ?",
		userID, emailID,
	).Scan(&count); err != nil {
		return fmt.Errorf("count access events: %w", err)
	}

	score := recomputeAccessScore(count, now)
	_, err = s.Execute(ctx, `
		INSERT INTO email_access_summary (email_id, user_id, access_count, last_access_at, access_score)
		VALUES (?,?,?,?,?)
		ON CONFLICT(email_id, user_id) DO UPDATE SET
			access_count = excluded.access_count,
			last_access_at = excluded.last_access_at,
			access_score = excluded.access_score`,
		emailID, userID, count, now, score,
	)
	if err != nil {
		return fmt.Errorf("update access summary: %w", err)
	}
	return nil
}

// recomputeAccessScore folds access frequency into a bounded [0,1) score:
// more accesses push the score up but with diminishing returns, matching the
// "frequency, not recency" framing of spec.md §4.I.
func recomputeAccessScore(count int, _ int64) float64 {
	return 1 - math.Exp(-float64(count)/accessHalfLifeDays)
}

// GetAccessSummary fetches the denormalized row for one email/user, or a
// zero-value summary (no error) if the email has never been accessed.
func (s *Store) GetAccessSummary(ctx context.Context, userID, emailID string) (domain.AccessSummary, error) {
	var sm domain.AccessSummary
	sm.UserID = userID
	sm.EmailID = emailID

	err := s.QueryRow(ctx,
		"SELECT access_count, last_access_at, access_score FROM email_access_summary WHERE user_id = ? AND email_id = ?",
		userID, emailID,
	).Scan(&sm.AccessCount, &sm.LastAccessAt, &sm.AccessScore)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sm, nil
		}
		return sm, fmt.Errorf("get access summary: %w", err)
	}
	return sm, nil
}
