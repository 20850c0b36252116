package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsentinel/core/internal/domain"
	"github.com/mailsentinel/core/internal/logging"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	log := logging.New("error", "json")
	s, err := Open(filepath.Join(dir, "user1.db"), "user1", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_MigratesAnalyzerColumns(t *testing.T) {
	dir := t.TempDir()
	log := logging.New("error", "json")

	path := filepath.Join(dir, "user1.db")
	s1, err := Open(path, "user1", log)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	// Re-opening an existing db must not error on "duplicate column name".
	s2, err := Open(path, "user1", log)
	require.NoError(t, err)
	defer s2.Close()

	assert.True(t, hasAnalyzerColumns(s2.db))
}

func TestUpsertAndSearchEmails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	high := domain.ImportanceHigh
	cat := domain.CategoryHigh

	e := domain.EmailIndex{
		ID:              "msg-1",
		ThreadID:        "thread-1",
		UserID:          "user1",
		Subject:         "Quarterly report",
		Sender:          "boss@company.com",
		Recipients:      []string{"me@company.com"},
		Date:            1700000000000,
		Year:            2023,
		Size:            2048,
		HasAttachments:  true,
		Labels:          []string{"INBOX", "IMPORTANT"},
		Snippet:         "please review",
		ImportanceLevel: &high,
		Category:        &cat,
	}

	require.NoError(t, s.UpsertEmailIndex(ctx, e))

	got, err := s.GetEmailByID(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly report", got.Subject)
	assert.Equal(t, []string{"me@company.com"}, got.Recipients)
	assert.Equal(t, []string{"INBOX", "IMPORTANT"}, got.Labels)
	require.NotNil(t, got.ImportanceLevel)
	assert.Equal(t, domain.ImportanceHigh, *got.ImportanceLevel)

	res, err := s.SearchEmails(ctx, domain.SearchCriteria{UserID: "user1", Category: "high"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	require.Len(t, res.Emails, 1)
	assert.Equal(t, "msg-1", res.Emails[0].ID)

	// Legacy fallback: empty UserID omits the predicate rather than matching none.
	res, err = s.SearchEmails(ctx, domain.SearchCriteria{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
}

func TestUpsertEmailIndex_IsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := domain.EmailIndex{ID: "msg-2", UserID: "user1", Subject: "v1", Date: 1700000000000}
	require.NoError(t, s.UpsertEmailIndex(ctx, e))

	e.Subject = "v2"
	require.NoError(t, s.UpsertEmailIndex(ctx, e))

	n, err := s.CountEmails(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetEmailByID(ctx, "msg-2")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Subject)
}

func TestDeleteEmailIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.UpsertEmailIndex(ctx, domain.EmailIndex{ID: id, UserID: "user1", Date: 1}))
	}

	changed, err := s.DeleteEmailIDs(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, changed)

	n, err := s.CountEmails(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMarkEmailsAsArchived(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertEmailIndex(ctx, domain.EmailIndex{ID: "a", UserID: "user1", Date: 1}))

	changed, err := s.MarkEmailsAsArchived(ctx, []string{"a"}, domain.ArchiveLocationTrash)
	require.NoError(t, err)
	assert.EqualValues(t, 1, changed)

	got, err := s.GetEmailByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.Archived)
	assert.Equal(t, domain.ArchiveLocationTrash, got.ArchiveLocation)
}

func TestGetEmailsForCleanup_FiltersByAge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := int64(1) // epoch ms, ancient
	recent := nowMs()

	require.NoError(t, s.UpsertEmailIndex(ctx, domain.EmailIndex{ID: "old", UserID: "user1", Date: old}))
	require.NoError(t, s.UpsertEmailIndex(ctx, domain.EmailIndex{ID: "new", UserID: "user1", Date: recent}))

	ageDaysMin := 30
	candidates, err := s.GetEmailsForCleanup(ctx, "user1", domain.CleanupCriteria{AgeDaysMin: &ageDaysMin}, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "old", candidates[0].ID)
}

func TestGetEmailsForCleanup_ImportanceLevelMaxExpandsToPrefixSet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	low, medium, high := domain.ImportanceLow, domain.ImportanceMedium, domain.ImportanceHigh
	require.NoError(t, s.UpsertEmailIndex(ctx, domain.EmailIndex{ID: "low", UserID: "user1", Date: nowMs(), ImportanceLevel: &low}))
	require.NoError(t, s.UpsertEmailIndex(ctx, domain.EmailIndex{ID: "medium", UserID: "user1", Date: nowMs(), ImportanceLevel: &medium}))
	require.NoError(t, s.UpsertEmailIndex(ctx, domain.EmailIndex{ID: "high", UserID: "user1", Date: nowMs(), ImportanceLevel: &high}))
	require.NoError(t, s.UpsertEmailIndex(ctx, domain.EmailIndex{ID: "unanalyzed", UserID: "user1", Date: nowMs()}))

	levelCap := "medium"
	candidates, err := s.GetEmailsForCleanup(ctx, "user1", domain.CleanupCriteria{ImportanceLevelMax: &levelCap}, 10)
	require.NoError(t, err)

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	assert.ElementsMatch(t, []string{"low", "medium", "unanalyzed"}, ids)
}

func TestGetEmailsForCleanup_NoAccessDaysKeepsNeverAccessedEligible(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertEmailIndex(ctx, domain.EmailIndex{ID: "never-accessed", UserID: "user1", Date: nowMs()}))
	require.NoError(t, s.UpsertEmailIndex(ctx, domain.EmailIndex{ID: "recently-accessed", UserID: "user1", Date: nowMs()}))
	require.NoError(t, s.RecordAccess(ctx, "user1", "recently-accessed", domain.AccessView))

	noAccessDays := 7
	candidates, err := s.GetEmailsForCleanup(ctx, "user1", domain.CleanupCriteria{NoAccessDays: &noAccessDays}, 10)
	require.NoError(t, err)

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	assert.ElementsMatch(t, []string{"never-accessed"}, ids)
}

func TestGetEmailsForCleanup_AccessScoreMaxKeepsNeverAccessedEligible(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertEmailIndex(ctx, domain.EmailIndex{ID: "never-accessed", UserID: "user1", Date: nowMs()}))
	require.NoError(t, s.UpsertEmailIndex(ctx, domain.EmailIndex{ID: "heavily-accessed", UserID: "user1", Date: nowMs()}))
	for i := 0; i < 20; i++ {
		require.NoError(t, s.RecordAccess(ctx, "user1", "heavily-accessed", domain.AccessView))
	}

	scoreMax := 0.1
	candidates, err := s.GetEmailsForCleanup(ctx, "user1", domain.CleanupCriteria{AccessScoreMax: &scoreMax}, 10)
	require.NoError(t, err)

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	assert.ElementsMatch(t, []string{"never-accessed"}, ids)
}

func TestGetEmailsForCleanup_OrdersByImportanceScoreThenDate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	highScore, lowScore := 0.9, 0.1
	older, newer := nowMs()-1000, nowMs()

	require.NoError(t, s.UpsertEmailIndex(ctx, domain.EmailIndex{ID: "important-old", UserID: "user1", Date: older, ImportanceScore: &highScore}))
	require.NoError(t, s.UpsertEmailIndex(ctx, domain.EmailIndex{ID: "unimportant-new", UserID: "user1", Date: newer, ImportanceScore: &lowScore}))
	require.NoError(t, s.UpsertEmailIndex(ctx, domain.EmailIndex{ID: "unimportant-old", UserID: "user1", Date: older, ImportanceScore: &lowScore}))

	candidates, err := s.GetEmailsForCleanup(ctx, "user1", domain.CleanupCriteria{}, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, "unimportant-old", candidates[0].ID)
	assert.Equal(t, "unimportant-new", candidates[1].ID)
	assert.Equal(t, "important-old", candidates[2].ID)
}

func TestJobStatusTransitions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := domain.CleanupJob{
		Job: domain.Job{
			JobID:     "job-1",
			JobType:   "cleanup",
			Status:    domain.JobPending,
			Params:    map[string]interface{}{},
			CreatedAt: nowMs(),
			UpdatedAt: nowMs(),
			UserID:    "user1",
		},
		TriggeredBy: domain.TriggerUserRequest,
		Priority:    domain.PriorityNormal,
	}
	require.NoError(t, s.CreateCleanupJob(ctx, job))

	require.NoError(t, s.UpdateJobStatus(ctx, "job-1", domain.JobInProgress, 10, ""))
	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobInProgress, got.Status)
	require.NotNil(t, got.StartedAt)

	require.NoError(t, s.UpdateJobStatus(ctx, "job-1", domain.JobCompleted, 100, ""))
	got, err = s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	// Terminal statuses never transition again.
	err = s.UpdateJobStatus(ctx, "job-1", domain.JobInProgress, 50, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRecordAccess_IncrementsSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordAccess(ctx, "user1", "msg-1", domain.AccessView))
	require.NoError(t, s.RecordAccess(ctx, "user1", "msg-1", domain.AccessView))

	sm, err := s.GetAccessSummary(ctx, "user1", "msg-1")
	require.NoError(t, err)
	assert.Equal(t, 2, sm.AccessCount)
	assert.Greater(t, sm.AccessScore, 0.0)
}

func TestFileAccessControl_OwnerGetsAllPermissions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := domain.FileMetadata{
		ID:               "file-1",
		FilePath:         "/tmp/export.json",
		OriginalFilename: "export.json",
		FileType:         domain.FileTypeEmailExport,
		SizeBytes:        128,
		UserID:           "user1",
		CreatedAt:        nowMs(),
	}
	require.NoError(t, s.CreateFileMetadata(ctx, m))

	for _, p := range domain.AllPermissions {
		ok, err := s.CheckFileAccess(ctx, "file-1", "user1", p)
		require.NoError(t, err)
		assert.True(t, ok, "owner should have %s permission", p)
	}

	ok, err := s.CheckFileAccess(ctx, "file-1", "user2", domain.PermissionRead)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_GetAndDelete(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(dir, logging.New("error", "json"))

	s1, err := reg.Get("alice")
	require.NoError(t, err)
	require.NoError(t, s1.UpsertEmailIndex(context.Background(), domain.EmailIndex{ID: "x", UserID: "alice", Date: 1}))

	s2, err := reg.Get("alice")
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	assert.True(t, reg.Exists("alice"))
	require.NoError(t, reg.Delete("alice"))
	assert.False(t, reg.Exists("alice"))
}
