// Package bulk implements BulkMutator from spec.md §4.J: one component
// with three entry points (deleteEmails, restoreEmails, archiveEmails) plus
// a policy-driven batchDeleteForCleanup, all sharing the same ≤50-id
// batching and rate-limited remote call pattern. Grounded on
// cmd/email-retrieval's batch-processing loop, generalized from a single
// fetch pipeline into a three-mutation, rate-limited dispatcher.
package bulk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mailsentinel/core/internal/domain"
	"github.com/mailsentinel/core/internal/fileacl"
	"github.com/mailsentinel/core/internal/ports"
	"github.com/mailsentinel/core/internal/store"
)

// maxBatchSize is spec.md §4.J's hard batching ceiling.
const maxBatchSize = 50

// defaultBatchDelay is the forced inter-batch delay floor from spec.md
// §4.J "default ≥ 100 ms".
const defaultBatchDelay = 100 * time.Millisecond

// Mutator is the BulkMutator component.
type Mutator struct {
	Store   *store.Store
	Remote  ports.RemoteMailClient
	FileACL *fileacl.Control

	BatchDelay time.Duration
	Log        zerolog.Logger
}

// New builds a Mutator. batchDelay <= 0 falls back to defaultBatchDelay.
func New(s *store.Store, remote ports.RemoteMailClient, facl *fileacl.Control, batchDelay time.Duration, log zerolog.Logger) *Mutator {
	if batchDelay <= 0 {
		batchDelay = defaultBatchDelay
	}
	return &Mutator{
		Store:      s,
		Remote:     remote,
		FileACL:    facl,
		BatchDelay: batchDelay,
		Log:        log.With().Str("component", "bulk_mutator").Logger(),
	}
}

func (m *Mutator) limiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(m.BatchDelay), 1)
}

func chunk(ids []string, size int) [][]string {
	if size <= 0 || size > maxBatchSize {
		size = maxBatchSize
	}
	var out [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[i:end])
	}
	return out
}

// DeleteOptions selects deleteEmails' candidate rows, per spec.md §4.J.
type DeleteOptions struct {
	Criteria     domain.SearchCriteria
	SkipArchived *bool // nil means true (spec.md's default)
	DryRun       bool
	ForceDelay   bool
}

// DeleteResult is deleteEmails' return value.
type DeleteResult struct {
	Deleted int
	Errors  []string
}

// DeleteEmails resolves candidates via Store.SearchEmails, applies the
// default safety rules (skip archived, exclude high-priority rows unless
// category is explicitly "high"), and — unless DryRun — moves each batch to
// trash via the remote client before deleting the local rows.
func (m *Mutator) DeleteEmails(ctx context.Context, opts DeleteOptions, userID string) (DeleteResult, error) {
	crit := opts.Criteria
	crit.UserID = userID
	crit.Limit = 0

	skipArchived := true
	if opts.SkipArchived != nil {
		skipArchived = *opts.SkipArchived
	}
	if skipArchived {
		f := false
		crit.Archived = &f
	}

	excludeHigh := crit.Category != string(domain.CategoryHigh)

	emails, err := m.searchAll(ctx, crit)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("bulk: resolve delete candidates: %w", err)
	}

	ids := make([]string, 0, len(emails))
	for _, e := range emails {
		if excludeHigh && e.Category != nil && *e.Category == domain.CategoryHigh {
			continue
		}
		ids = append(ids, e.ID)
	}

	if opts.DryRun {
		return DeleteResult{
			Deleted: len(ids),
			Errors:  []string{fmt.Sprintf("DRY RUN: would delete %d email(s)", len(ids))},
		}, nil
	}

	result := DeleteResult{}
	lim := m.limiter()
	for i, batch := range chunk(ids, maxBatchSize) {
		if i > 0 || opts.ForceDelay {
			if err := lim.Wait(ctx); err != nil {
				return result, fmt.Errorf("bulk: rate limiter: %w", err)
			}
		}

		if err := m.Remote.BatchModify(ctx, batch, []string{"TRASH"}, []string{"INBOX", "UNREAD"}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("batch %d failed: %v", i, err))
			continue
		}
		if _, err := m.Store.DeleteEmailIDs(ctx, batch); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("batch %d failed: %v", i, err))
			continue
		}
		result.Deleted += len(batch)
	}
	return result, nil
}

// RestoreRequest is restoreEmails' input, per spec.md §4.J.
type RestoreRequest struct {
	EmailIDs      []string
	RestoreLabels []string
}

// RestoreResult is restoreEmails' return value.
type RestoreResult struct {
	Restored int
	Errors   []string
}

// RestoreEmails resolves rows by id and user_id, filters to archived=1, and
// restores each batch via the remote client before clearing the local
// archive fields. IDs not owned by userID (or not archived) are silently
// excluded; a single summary error reports how many were skipped.
func (m *Mutator) RestoreEmails(ctx context.Context, req RestoreRequest, userID string) (RestoreResult, error) {
	archived := true
	crit := domain.SearchCriteria{UserID: userID, IDs: req.EmailIDs, Archived: &archived}
	emails, err := m.searchAll(ctx, crit)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("bulk: resolve restore candidates: %w", err)
	}

	ids := make([]string, 0, len(emails))
	for _, e := range emails {
		ids = append(ids, e.ID)
	}

	result := RestoreResult{}
	if skipped := len(req.EmailIDs) - len(ids); skipped > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%d email id(s) not found or not owned by this user", skipped))
	}
	if len(ids) == 0 {
		return result, nil
	}

	addLabels := append([]string{"INBOX"}, req.RestoreLabels...)
	lim := m.limiter()
	for i, batch := range chunk(ids, maxBatchSize) {
		if i > 0 {
			if err := lim.Wait(ctx); err != nil {
				return result, fmt.Errorf("bulk: rate limiter: %w", err)
			}
		}
		if err := m.Remote.BatchModify(ctx, batch, addLabels, []string{"TRASH"}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("batch %d failed: %v", i, err))
			continue
		}
		if _, err := m.Store.RestoreEmailIDs(ctx, batch); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("batch %d failed: %v", i, err))
			continue
		}
		result.Restored += len(batch)
	}
	return result, nil
}

// ArchiveOptions selects archiveEmails' candidate rows and method, per
// spec.md §4.J.
type ArchiveOptions struct {
	Criteria   domain.SearchCriteria
	Method     string // "gmail" | "export"
	ExportPath string
	Formatter  ports.EmailFormatter
}

// ArchiveResult is archiveEmails' return value.
type ArchiveResult struct {
	Archived int
	Errors   []string
	FilePath string // set only for Method == "export"
}

// ArchiveEmails resolves candidates and archives them either by flipping
// provider labels ("gmail") or by writing a local export file and recording
// it with FileACL ("export"), per spec.md §4.J.
func (m *Mutator) ArchiveEmails(ctx context.Context, opts ArchiveOptions, userID string) (ArchiveResult, error) {
	crit := opts.Criteria
	crit.UserID = userID
	crit.Limit = 0

	emails, err := m.searchAll(ctx, crit)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("bulk: resolve archive candidates: %w", err)
	}
	ids := make([]string, 0, len(emails))
	for _, e := range emails {
		ids = append(ids, e.ID)
	}
	if len(ids) == 0 {
		return ArchiveResult{}, nil
	}

	switch opts.Method {
	case "export":
		return m.archiveExport(ctx, emails, ids, opts, userID)
	default:
		return m.archiveGmail(ctx, ids)
	}
}

func (m *Mutator) archiveGmail(ctx context.Context, ids []string) (ArchiveResult, error) {
	result := ArchiveResult{}
	lim := m.limiter()
	for i, batch := range chunk(ids, maxBatchSize) {
		if i > 0 {
			if err := lim.Wait(ctx); err != nil {
				return result, fmt.Errorf("bulk: rate limiter: %w", err)
			}
		}
		if err := m.Remote.BatchModify(ctx, batch, []string{"ARCHIVED"}, []string{"INBOX"}); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("batch %d failed: %v", i, err))
			continue
		}
		if _, err := m.Store.MarkEmailsAsArchived(ctx, batch, domain.ArchiveLocationGmail); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("batch %d failed: %v", i, err))
			continue
		}
		result.Archived += len(batch)
	}
	return result, nil
}

func (m *Mutator) archiveExport(ctx context.Context, emails []domain.EmailIndex, ids []string, opts ArchiveOptions, userID string) (ArchiveResult, error) {
	dir := filepath.Join(opts.ExportPath, "user_"+userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ArchiveResult{}, fmt.Errorf("bulk: create export directory: %w", err)
	}

	data, err := opts.Formatter.FormatEmails(emails)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("bulk: format export: %w", err)
	}

	filename := fmt.Sprintf("export_%s_%d.%s", userID, time.Now().UnixMilli(), opts.Formatter.FileExtension())
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ArchiveResult{}, fmt.Errorf("bulk: write export file: %w", err)
	}

	if m.FileACL != nil {
		if _, err := m.FileACL.CreateFileMetadata(ctx, fileacl.CreateRequest{
			FilePath:         path,
			OriginalFilename: filename,
			FileType:         domain.FileTypeEmailExport,
			SizeBytes:        int64(len(data)),
			UserID:           userID,
		}); err != nil {
			return ArchiveResult{}, fmt.Errorf("bulk: record export file metadata: %w", err)
		}
	}

	if err := m.Store.SaveArchiveRecord(ctx, domain.ArchiveRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		FilePath:  path,
		EmailIDs:  ids,
		CreatedAt: time.Now().UnixMilli(),
	}); err != nil {
		return ArchiveResult{}, fmt.Errorf("bulk: save archive record: %w", err)
	}

	if _, err := m.Store.MarkEmailsAsArchived(ctx, ids, path); err != nil {
		return ArchiveResult{}, fmt.Errorf("bulk: mark emails archived: %w", err)
	}

	return ArchiveResult{Archived: len(ids), FilePath: path}, nil
}

// CleanupOptions is batchDeleteForCleanup's {dry_run, batch_size?,
// max_failures?} input, per spec.md §4.J.
type CleanupOptions struct {
	DryRun      bool
	BatchSize   int
	MaxFailures int
}

// CleanupResult is batchDeleteForCleanup's return value.
type CleanupResult struct {
	Deleted      int
	Archived     int
	Failed       int
	StorageFreed int64
	Errors       []string
}

// BatchDeleteForCleanup applies policy.Safety to the candidate set emails
// before batching: preserve_important drops category=="high" rows from the
// run entirely, and max_emails_per_run caps the remainder with a warning.
// action.type=="archive" archives locally instead of calling the remote
// client. Stops once Failed reaches MaxFailures, per spec.md §4.J.
func (m *Mutator) BatchDeleteForCleanup(ctx context.Context, emails []domain.EmailIndex, policy domain.CleanupPolicy, opts CleanupOptions) (CleanupResult, error) {
	result := CleanupResult{}

	candidates := make([]domain.EmailIndex, 0, len(emails))
	for _, e := range emails {
		if policy.Safety.PreserveImportant && e.Category != nil && *e.Category == domain.CategoryHigh {
			continue
		}
		candidates = append(candidates, e)
	}

	if max := policy.Safety.MaxEmailsPerRun; max > 0 && len(candidates) > max {
		dropped := len(candidates) - max
		result.Errors = append(result.Errors, fmt.Sprintf("warning: %d email(s) dropped, exceeding max_emails_per_run=%d", dropped, max))
		candidates = candidates[:max]
	}

	if opts.DryRun {
		switch policy.Action {
		case domain.CleanupActionArchive:
			result.Archived = len(candidates)
		default:
			result.Deleted = len(candidates)
		}
		result.Errors = append(result.Errors, fmt.Sprintf("DRY RUN: would process %d email(s)", len(candidates)))
		return result, nil
	}

	maxFailures := opts.MaxFailures
	if maxFailures <= 0 {
		maxFailures = len(candidates) + 1 // effectively unlimited
	}

	ids := make([]string, len(candidates))
	bySize := make(map[string]int64, len(candidates))
	for i, e := range candidates {
		ids[i] = e.ID
		bySize[e.ID] = e.Size
	}

	batchSize := opts.BatchSize
	lim := m.limiter()
	for i, batch := range chunk(ids, batchSize) {
		if i > 0 {
			if err := lim.Wait(ctx); err != nil {
				return result, fmt.Errorf("bulk: rate limiter: %w", err)
			}
		}

		if policy.Action == domain.CleanupActionArchive {
			if _, err := m.Store.MarkEmailsAsArchived(ctx, batch, domain.ArchiveLocationCleanup); err != nil {
				result.Failed += len(batch)
				result.Errors = append(result.Errors, fmt.Sprintf("Batch %d failed: %v", i, err))
				if result.Failed >= maxFailures {
					break
				}
				continue
			}
			result.Archived += len(batch)
			continue
		}

		if err := m.Remote.BatchModify(ctx, batch, []string{"TRASH"}, []string{"INBOX", "UNREAD"}); err != nil {
			result.Failed += len(batch)
			result.Errors = append(result.Errors, fmt.Sprintf("Batch %d failed: %v", i, err))
			if result.Failed >= maxFailures {
				break
			}
			continue
		}
		if _, err := m.Store.DeleteEmailIDs(ctx, batch); err != nil {
			result.Failed += len(batch)
			result.Errors = append(result.Errors, fmt.Sprintf("Batch %d failed: %v", i, err))
			if result.Failed >= maxFailures {
				break
			}
			continue
		}
		for _, id := range batch {
			result.StorageFreed += bySize[id]
		}
		result.Deleted += len(batch)
	}

	return result, nil
}

// searchAll pages through every matching row regardless of Store's default
// page size, since BulkMutator operates over the full candidate set.
func (m *Mutator) searchAll(ctx context.Context, crit domain.SearchCriteria) ([]domain.EmailIndex, error) {
	const pageSize = 500
	var out []domain.EmailIndex
	offset := 0
	for {
		page := crit
		page.Limit = pageSize
		page.Offset = offset
		result, err := m.Store.SearchEmails(ctx, page)
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
