package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsentinel/core/internal/domain"
	"github.com/mailsentinel/core/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "user_test.db")
	s, err := store.Open(path, "user1", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleJob(jobID, userID string) domain.CleanupJob {
	j := domain.CleanupJob{}
	j.JobID = jobID
	j.JobType = "categorization"
	j.Status = domain.JobPending
	j.UserID = userID
	j.CreatedAt = time.Now().UnixMilli()
	j.UpdatedAt = j.CreatedAt
	return j
}

func TestJobStore_Get_RefusesCrossTenantRead(t *testing.T) {
	s := openTestStore(t)
	js := New(s, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, js.Create(ctx, sampleJob("job1", "user1")))

	_, err := js.Get(ctx, "job1", "user2")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := js.Get(ctx, "job1", "user1")
	require.NoError(t, err)
	assert.Equal(t, "job1", got.JobID)
}

func TestJobStore_Get_UnknownJobIsNotFound(t *testing.T) {
	s := openTestStore(t)
	js := New(s, zerolog.Nop())
	_, err := js.Get(context.Background(), "missing", "user1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobStore_Transition_RefusesCrossTenantWrite(t *testing.T) {
	s := openTestStore(t)
	js := New(s, zerolog.Nop())
	ctx := context.Background()
	require.NoError(t, js.Create(ctx, sampleJob("job1", "user1")))

	err := js.Transition(ctx, "job1", "user2", domain.JobInProgress, 0, "")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, js.Transition(ctx, "job1", "user1", domain.JobInProgress, 0, ""))
	got, err := js.Get(ctx, "job1", "user1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobInProgress, got.Status)
}

func TestJobStore_CleanupOldJobs_ScopesByUser(t *testing.T) {
	s := openTestStore(t)
	js := New(s, zerolog.Nop())
	ctx := context.Background()

	old := sampleJob("job-old", "user1")
	old.CreatedAt = time.Now().AddDate(0, 0, -100).UnixMilli()
	old.UpdatedAt = old.CreatedAt
	require.NoError(t, js.Create(ctx, old))
	require.NoError(t, js.Create(ctx, sampleJob("job-new", "user1")))

	deleted, err := js.CleanupOldJobs(ctx, 30, "user1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = js.Get(ctx, "job-old", "user1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = js.Get(ctx, "job-new", "user1")
	assert.NoError(t, err)
}
