package fileacl

import (
	"context"
	"os"
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

func TestControl_CreateFileMetadata_RejectsOversizeFile(t *testing.T) {
	s := openTestStore(t)
	policy := DefaultPolicy()
	policy.MaxFileSizeBytes = 10
	c := New(s, policy, zerolog.Nop())

	_, err := c.CreateFileMetadata(context.Background(), CreateRequest{
		UserID: "user1", FileType: domain.FileTypeEmailExport, SizeBytes: 100,
	})
	assert.Error(t, err)
}

func TestControl_CreateFileMetadata_RejectsDisallowedType(t *testing.T) {
	s := openTestStore(t)
	policy := DefaultPolicy()
	policy.AllowedFileTypes = []domain.FileType{domain.FileTypeEmailExport}
	c := New(s, policy, zerolog.Nop())

	_, err := c.CreateFileMetadata(context.Background(), CreateRequest{
		UserID: "user1", FileType: domain.FileTypeAttachment, SizeBytes: 1,
	})
	assert.Error(t, err)
}

func TestControl_CreateFileMetadata_RequiresEncryptionWhenPolicyDemandsIt(t *testing.T) {
	s := openTestStore(t)
	policy := DefaultPolicy()
	policy.RequireEncryption = true
	c := New(s, policy, zerolog.Nop())

	_, err := c.CreateFileMetadata(context.Background(), CreateRequest{
		UserID: "user1", FileType: domain.FileTypeEmailExport, SizeBytes: 1,
		EncryptionStatus: domain.EncryptionNone,
	})
	assert.Error(t, err)

	_, err = c.CreateFileMetadata(context.Background(), CreateRequest{
		UserID: "user1", FileType: domain.FileTypeEmailExport, SizeBytes: 1,
		EncryptionStatus: domain.EncryptionAES256,
	})
	assert.NoError(t, err)
}

func TestControl_CheckFileAccess_OwnerGetsAllPermissions(t *testing.T) {
	s := openTestStore(t)
	c := New(s, DefaultPolicy(), zerolog.Nop())
	ctx := context.Background()

	m, err := c.CreateFileMetadata(ctx, CreateRequest{
		UserID: "owner", FileType: domain.FileTypeEmailExport, SizeBytes: 1,
	})
	require.NoError(t, err)

	result, err := c.CheckFileAccess(ctx, AccessCheck{FileID: m.ID, UserID: "owner", PermissionType: domain.PermissionDelete})
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.ElementsMatch(t, domain.AllPermissions, result.EffectivePermissions)
}

func TestControl_CheckFileAccess_NonOwnerWithoutGrantIsDenied(t *testing.T) {
	s := openTestStore(t)
	c := New(s, DefaultPolicy(), zerolog.Nop())
	ctx := context.Background()

	m, err := c.CreateFileMetadata(ctx, CreateRequest{
		UserID: "owner", FileType: domain.FileTypeEmailExport, SizeBytes: 1,
	})
	require.NoError(t, err)

	result, err := c.CheckFileAccess(ctx, AccessCheck{FileID: m.ID, UserID: "stranger", PermissionType: domain.PermissionRead})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestControl_CheckFileAccess_UnknownFileIsDenied(t *testing.T) {
	s := openTestStore(t)
	c := New(s, DefaultPolicy(), zerolog.Nop())

	result, err := c.CheckFileAccess(context.Background(), AccessCheck{FileID: "missing", UserID: "user1", PermissionType: domain.PermissionRead})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, "file not found", result.Reason)
}

func TestControl_CheckFileAccess_ExpiredFileIsDenied(t *testing.T) {
	s := openTestStore(t)
	policy := DefaultPolicy()
	policy.DefaultExpirationDays = 0
	c := New(s, policy, zerolog.Nop())
	ctx := context.Background()

	past := time.Now().Add(-time.Hour).UnixMilli()
	m, err := c.CreateFileMetadata(ctx, CreateRequest{
		UserID: "owner", FileType: domain.FileTypeEmailExport, SizeBytes: 1, ExpiresAt: &past,
	})
	require.NoError(t, err)

	result, err := c.CheckFileAccess(ctx, AccessCheck{FileID: m.ID, UserID: "owner", PermissionType: domain.PermissionRead})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, "File has expired", result.Reason)
}

func TestControl_CleanupExpiredFiles_UnlinksAndDeletesRow(t *testing.T) {
	s := openTestStore(t)
	c := New(s, DefaultPolicy(), zerolog.Nop())
	ctx := context.Background()

	tmpFile := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(tmpFile, []byte("data"), 0o644))

	past := time.Now().Add(-time.Hour).UnixMilli()
	m, err := c.CreateFileMetadata(ctx, CreateRequest{
		UserID: "owner", FileType: domain.FileTypeEmailExport, SizeBytes: 4,
		FilePath: tmpFile, ExpiresAt: &past,
	})
	require.NoError(t, err)

	count, err := c.CleanupExpiredFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = os.Stat(tmpFile)
	assert.True(t, os.IsNotExist(err))

	_, err = s.GetFileMetadata(ctx, m.ID)
	assert.Error(t, err)
}
