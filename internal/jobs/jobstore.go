// Package jobs implements the process-wide JobStore singleton, the
// in-memory JobQueue, and the cooperative CategorizationWorker from
// spec.md §4.G–§4.I. Grounded on cmd/email-retrieval's worker-pool shape
// (a buffered channel feeding a single consumer
// goroutine) generalized into a job-status state machine with
// user-scoped reads.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mailsentinel/core/internal/domain"
	"github.com/mailsentinel/core/internal/store"
)

// ErrNotFound is returned when a job doesn't exist, or exists but is owned
// by a different user — the two cases are indistinguishable to the caller
// by design, per spec.md §4.G "every read takes user_id to prevent
// cross-tenant leakage".
var ErrNotFound = errors.New("job not found")

// JobStore is a process-wide singleton backed by the (any-user) Store.
// Every read takes a user_id and refuses to return a row owned by a
// different user.
type JobStore struct {
	store *store.Store
	log   zerolog.Logger
}

// New wraps s as the process-wide JobStore.
func New(s *store.Store, log zerolog.Logger) *JobStore {
	return &JobStore{store: s, log: log.With().Str("component", "job_store").Logger()}
}

// Create inserts a new job row in PENDING status.
func (js *JobStore) Create(ctx context.Context, j domain.CleanupJob) error {
	if j.Status == "" {
		j.Status = domain.JobPending
	}
	now := time.Now().UnixMilli()
	if j.CreatedAt == 0 {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	return js.store.CreateCleanupJob(ctx, j)
}

// Get fetches jobID scoped to userID; returns ErrNotFound if the job
// doesn't exist or belongs to a different user.
func (js *JobStore) Get(ctx context.Context, jobID, userID string) (domain.CleanupJob, error) {
	j, err := js.store.GetJob(ctx, jobID)
	if err != nil {
		return domain.CleanupJob{}, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if j.UserID != userID {
		return domain.CleanupJob{}, ErrNotFound
	}
	return j, nil
}

// ListForUser lists userID's jobs, optionally filtered by status.
func (js *JobStore) ListForUser(ctx context.Context, userID string, status domain.JobStatus) ([]domain.CleanupJob, error) {
	return js.store.ListJobsForUser(ctx, userID, status)
}

// Transition moves jobID to a new status, scoped to userID. The compare-
// and-set semantics live in Store.UpdateJobStatus (domain.CanTransition);
// Transition adds the user-scoping check on top.
func (js *JobStore) Transition(ctx context.Context, jobID, userID string, to domain.JobStatus, progress int, errorDetails string) error {
	if _, err := js.Get(ctx, jobID, userID); err != nil {
		return err
	}
	return js.store.UpdateJobStatus(ctx, jobID, to, progress, errorDetails)
}

// SetResults attaches a results payload to jobID, scoped to userID.
func (js *JobStore) SetResults(ctx context.Context, jobID, userID string, results map[string]interface{}) error {
	if _, err := js.Get(ctx, jobID, userID); err != nil {
		return err
	}
	return js.store.SetJobResults(ctx, jobID, results)
}

// UpdateProgress records cleanup-specific progress counters for jobID,
// scoped to userID.
func (js *JobStore) UpdateProgress(ctx context.Context, jobID, userID string, emailsAnalyzed, emailsCleaned int, storageFreed int64, errorsEncountered, currentBatch int) error {
	if _, err := js.Get(ctx, jobID, userID); err != nil {
		return err
	}
	return js.store.UpdateCleanupProgress(ctx, jobID, emailsAnalyzed, emailsCleaned, storageFreed, errorsEncountered, currentBatch)
}

// CleanupOldJobs deletes job rows older than maxAgeDays (0 means "all"),
// optionally scoped to userID ("" means every user). Returns the number of
// rows deleted.
func (js *JobStore) CleanupOldJobs(ctx context.Context, maxAgeDays int, userID string) (int64, error) {
	return js.store.CleanupOldJobs(ctx, maxAgeDays, userID)
}
