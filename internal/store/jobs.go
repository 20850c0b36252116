package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/mailsentinel/core/internal/domain"
)

// ErrInvalidTransition is returned by UpdateJobStatus when the requested
// status change violates the monotonic job state machine from spec.md §3.
var ErrInvalidTransition = errors.New("invalid job status transition")

// CreateCleanupJob inserts a new job row in PENDING status.
func (s *Store) CreateCleanupJob(ctx context.Context, j domain.CleanupJob) error {
	params, err := json.Marshal(j.Params)
	if err != nil {
		return errors.Wrap(err, "marshal job params")
	}

	_, err = s.Execute(ctx, `
		INSERT INTO job_statuses (
			job_id, job_type, status, request_params, progress, created_at,
			updated_at, user_id, policy_id, triggered_by, priority, batch_size,
			target_emails, emails_analyzed, emails_cleaned, storage_freed,
			errors_encountered, current_batch, total_batches
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.JobID, j.JobType, string(j.Status), string(params), j.Progress, j.CreatedAt,
		j.UpdatedAt, j.UserID, j.PolicyID, string(j.TriggeredBy), string(j.Priority), j.BatchSize,
		j.TargetEmails, j.EmailsAnalyzed, j.EmailsCleaned, j.StorageFreed,
		j.ErrorsEncountered, j.CurrentBatch, j.TotalBatches,
	)
	if err != nil {
		return errors.Wrap(err, "insert cleanup job")
	}
	return nil
}

// UpdateJobStatus moves a job forward in the status machine. It loads the
// current status first and rejects the update via ErrInvalidTransition if
// CanTransition disallows it — this is the failure-cause capture spec.md §9
// flags as needing pkg/errors' Wrap/Cause so callers can unwrap to the
// underlying sentinel.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, to domain.JobStatus, progress int, errorDetails string) error {
	var current string
	err := s.QueryRow(ctx, "SELECT status FROM job_statuses WHERE job_id = ?", jobID).Scan(&current)
	if err == sql.ErrNoRows {
		return errors.Wrapf(err, "job %s not found", jobID)
	}
	if err != nil {
		return errors.Wrap(err, "load job status")
	}

	if !domain.CanTransition(domain.JobStatus(current), to) {
		return errors.Wrapf(ErrInvalidTransition, "job %s: %s -> %s", jobID, current, to)
	}

	now := nowMs()
	_, err = s.Execute(ctx, `
		UPDATE job_statuses
		SET status = ?, progress = ?, error_details = ?, updated_at = ?,
			started_at = CASE WHEN started_at IS NULL AND ? = ? THEN ? ELSE started_at END,
			completed_at = CASE WHEN ? IN (?,?,?) THEN ? ELSE completed_at END
		WHERE job_id = ?`,
		string(to), progress, nullIfEmpty(errorDetails), now,
		string(to), string(domain.JobInProgress), now,
		string(to), string(domain.JobCompleted), string(domain.JobFailed), string(domain.JobCancelled), now,
		jobID,
	)
	if err != nil {
		return errors.Wrap(err, "update job status")
	}
	return nil
}

// UpdateCleanupProgress records incremental cleanup counters without
// touching status, for the per-batch progress updates in spec.md §4.C.
func (s *Store) UpdateCleanupProgress(ctx context.Context, jobID string, emailsAnalyzed, emailsCleaned int, storageFreed int64, errorsEncountered, currentBatch int) error {
	_, err := s.Execute(ctx, `
		UPDATE job_statuses
		SET emails_analyzed = ?, emails_cleaned = ?, storage_freed = ?,
			errors_encountered = ?, current_batch = ?, updated_at = ?
		WHERE job_id = ?`,
		emailsAnalyzed, emailsCleaned, storageFreed, errorsEncountered, currentBatch, nowMs(), jobID,
	)
	if err != nil {
		return fmt.Errorf("update cleanup progress: %w", err)
	}
	return nil
}

// SetJobResults attaches a final results payload to a job, typically
// alongside a transition to COMPLETED.
func (s *Store) SetJobResults(ctx context.Context, jobID string, results map[string]interface{}) error {
	payload, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal job results: %w", err)
	}
	_, err = s.Execute(ctx, "UPDATE job_statuses SET results = ?, updated_at = ? WHERE job_id = ?", string(payload), nowMs(), jobID)
	if err != nil {
		return fmt.Errorf("set job results: %w", err)
	}
	return nil
}

// GetJob fetches one job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (domain.CleanupJob, error) {
	row := s.QueryRow(ctx, `
		SELECT job_id, job_type, status, request_params, progress, results,
			error_details, created_at, started_at, completed_at, updated_at,
			user_id, policy_id, triggered_by, priority, batch_size,
			target_emails, emails_analyzed, emails_cleaned, storage_freed,
			errors_encountered, current_batch, total_batches
		FROM job_statuses WHERE job_id = ?`, jobID)
	return scanCleanupJob(row)
}

// ListJobsForUser returns jobs for a user ordered newest-first, optionally
// filtered by status.
func (s *Store) ListJobsForUser(ctx context.Context, userID string, status domain.JobStatus) ([]domain.CleanupJob, error) {
	query := `
		SELECT job_id, job_type, status, request_params, progress, results,
			error_details, created_at, started_at, completed_at, updated_at,
			user_id, policy_id, triggered_by, priority, batch_size,
			target_emails, emails_analyzed, emails_cleaned, storage_freed,
			errors_encountered, current_batch, total_batches
		FROM job_statuses WHERE user_id = ?`
	args := []interface{}{userID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.CleanupJob
	for rows.Next() {
		j, err := scanCleanupJobRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// CleanupOldJobs deletes job rows older than maxAgeDays (0 means "all"),
// optionally scoped to userID ("" means every user), per spec.md §4.G.
// Returns the number of rows deleted.
func (s *Store) CleanupOldJobs(ctx context.Context, maxAgeDays int, userID string) (int64, error) {
	query := "DELETE FROM job_statuses WHERE 1=1"
	var args []interface{}
	if maxAgeDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -maxAgeDays).UnixMilli()
		query += " AND created_at < ?"
		args = append(args, cutoff)
	}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	res, err := s.Execute(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup old jobs: %w", err)
	}
	return res.Changes, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCleanupJob(row *sql.Row) (domain.CleanupJob, error) {
	return scanCleanupJobGeneric(row)
}

func scanCleanupJobRows(rows *sql.Rows) (domain.CleanupJob, error) {
	return scanCleanupJobGeneric(rows)
}

func scanCleanupJobGeneric(row rowScanner) (domain.CleanupJob, error) {
	var j domain.CleanupJob
	var params, results sql.NullString
	var errorDetails sql.NullString
	var startedAt, completedAt sql.NullInt64
	var status, triggeredBy, priority string

	err := row.Scan(
		&j.JobID, &j.JobType, &status, &params, &j.Progress, &results,
		&errorDetails, &j.CreatedAt, &startedAt, &completedAt, &j.UpdatedAt,
		&j.UserID, &j.PolicyID, &triggeredBy, &priority, &j.BatchSize,
		&j.TargetEmails, &j.EmailsAnalyzed, &j.EmailsCleaned, &j.StorageFreed,
		&j.ErrorsEncountered, &j.CurrentBatch, &j.TotalBatches,
	)
	if err != nil {
		return j, err
	}

	j.Status = domain.JobStatus(status)
	j.TriggeredBy = domain.JobTrigger(triggeredBy)
	j.Priority = domain.JobPriority(priority)
	if params.Valid {
		_ = json.Unmarshal([]byte(params.String), &j.Params)
	}
	if results.Valid {
		_ = json.Unmarshal([]byte(results.String), &j.Results)
	}
	if errorDetails.Valid {
		j.ErrorDetails = errorDetails.String
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Int64
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Int64
	}
	return j, nil
}
