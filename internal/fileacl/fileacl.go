// Package fileacl implements the FileAccessControl orchestration layer from
// spec.md §4.L: policy-checked file creation, the four-step access-check
// cascade, expired-file reaping, and best-effort audit logging. Grounded on
// detector.go's orchestration shape (validate inputs, delegate
// storage to a collaborator, always emit an audit trail) generalized from
// fraud-detection scoring onto file ACL enforcement.
package fileacl

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mailsentinel/core/internal/domain"
	"github.com/mailsentinel/core/internal/store"
)

// Policy is the configurable file-creation policy from spec.md §4.L.
type Policy struct {
	MaxFileSizeBytes         int64
	AllowedFileTypes         []domain.FileType
	RequireEncryption        bool
	DefaultExpirationDays    int
	AuditEnabled             bool
}

// DefaultPolicy mirrors spec.md §4.L's documented defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxFileSizeBytes: 100 * 1024 * 1024,
		AllowedFileTypes: []domain.FileType{
			domain.FileTypeEmailExport, domain.FileTypeArchiveBackup,
			domain.FileTypeSearchResult, domain.FileTypeAttachment, domain.FileTypeLogFile,
		},
		RequireEncryption:     false,
		DefaultExpirationDays: 30,
		AuditEnabled:          true,
	}
}

// CreateRequest is createFileMetadata's input, per spec.md §4.L.
type CreateRequest struct {
	FilePath         string
	OriginalFilename string
	FileType         domain.FileType
	SizeBytes        int64
	MimeType         string
	ChecksumSHA256   string
	EncryptionStatus domain.EncryptionStatus
	CompressionStatus domain.CompressionStatus
	UserID           string
	ExpiresAt        *int64
}

// AccessCheck is checkFileAccess's input.
type AccessCheck struct {
	FileID         string
	UserID         string
	PermissionType domain.PermissionType
}

// AccessResult is checkFileAccess's output, per spec.md §4.L.
type AccessResult struct {
	Allowed               bool
	Reason                string
	FileMetadata          *domain.FileMetadata
	EffectivePermissions  []domain.PermissionType
}

// Control is the FileAccessControl component.
type Control struct {
	store  *store.Store
	policy Policy
	log    zerolog.Logger
}

// New builds a Control over s with policy.
func New(s *store.Store, policy Policy, log zerolog.Logger) *Control {
	return &Control{store: s, policy: policy, log: log.With().Str("component", "file_access_control").Logger()}
}

// CreateFileMetadata validates request against policy, inserts the row and
// grants the owner every permission through Store.CreateFileMetadata, and
// emits a file_create audit entry. The insert and the grants commit in two
// separate transactions, so a failed grant step leaves the row without grants.
func (c *Control) CreateFileMetadata(ctx context.Context, req CreateRequest) (domain.FileMetadata, error) {
	if req.SizeBytes > c.policy.MaxFileSizeBytes {
		return domain.FileMetadata{}, fmt.Errorf("fileacl: size %d exceeds policy max %d", req.SizeBytes, c.policy.MaxFileSizeBytes)
	}
	if !allowedType(c.policy.AllowedFileTypes, req.FileType) {
		return domain.FileMetadata{}, fmt.Errorf("fileacl: file type %q not in allowed set", req.FileType)
	}
	if c.policy.RequireEncryption && req.EncryptionStatus == domain.EncryptionNone {
		return domain.FileMetadata{}, fmt.Errorf("fileacl: encryption required but status is %q", domain.EncryptionNone)
	}

	expiresAt := req.ExpiresAt
	if expiresAt == nil && c.policy.DefaultExpirationDays > 0 {
		exp := time.Now().AddDate(0, 0, c.policy.DefaultExpirationDays).UnixMilli()
		expiresAt = &exp
	}

	m := domain.FileMetadata{
		ID:                uuid.New().String(),
		FilePath:          req.FilePath,
		OriginalFilename:  req.OriginalFilename,
		FileType:          req.FileType,
		SizeBytes:         req.SizeBytes,
		MimeType:          req.MimeType,
		ChecksumSHA256:    req.ChecksumSHA256,
		EncryptionStatus:  req.EncryptionStatus,
		CompressionStatus: req.CompressionStatus,
		UserID:            req.UserID,
		CreatedAt:         time.Now().UnixMilli(),
		ExpiresAt:         expiresAt,
	}

	if err := c.store.CreateFileMetadata(ctx, m); err != nil {
		return domain.FileMetadata{}, fmt.Errorf("fileacl: create metadata: %w", err)
	}

	c.audit(ctx, req.UserID, domain.AuditFileCreate, domain.ResourceFile, m.ID, true, "")
	return m, nil
}

// CheckFileAccess runs the four-step rule cascade from spec.md §4.L.
func (c *Control) CheckFileAccess(ctx context.Context, req AccessCheck) (AccessResult, error) {
	meta, err := c.store.GetFileMetadata(ctx, req.FileID)
	if err != nil {
		return AccessResult{Allowed: false, Reason: "file not found"}, nil
	}

	if meta.ExpiresAt != nil && *meta.ExpiresAt <= time.Now().UnixMilli() {
		return AccessResult{Allowed: false, Reason: "File has expired", FileMetadata: &meta}, nil
	}

	if meta.UserID == req.UserID {
		if req.PermissionType == domain.PermissionRead {
			_ = c.store.TouchFileAccess(ctx, req.FileID)
		}
		return AccessResult{
			Allowed:              true,
			FileMetadata:         &meta,
			EffectivePermissions: domain.AllPermissions,
		}, nil
	}

	ok, err := c.store.CheckFileAccess(ctx, req.FileID, req.UserID, req.PermissionType)
	if err != nil {
		return AccessResult{}, fmt.Errorf("fileacl: check permission: %w", err)
	}
	if !ok {
		return AccessResult{Allowed: false, Reason: "no active grant for requested permission", FileMetadata: &meta}, nil
	}
	if req.PermissionType == domain.PermissionRead {
		_ = c.store.TouchFileAccess(ctx, req.FileID)
	}
	return AccessResult{
		Allowed:              true,
		FileMetadata:         &meta,
		EffectivePermissions: []domain.PermissionType{req.PermissionType},
	}, nil
}

// CleanupExpiredFiles unlinks the physical bytes (tolerating an already-
// missing file) and deletes the metadata row for every expired file, per
// spec.md §4.L. Returns the number of files cleaned up.
func (c *Control) CleanupExpiredFiles(ctx context.Context) (int, error) {
	expired, err := c.store.CleanupExpiredFiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("fileacl: list expired files: %w", err)
	}

	count := 0
	for _, m := range expired {
		if err := os.Remove(m.FilePath); err != nil && !os.IsNotExist(err) {
			c.log.Warn().Err(err).Str("file_id", m.ID).Msg("failed to unlink expired file")
			continue
		}
		if err := c.store.DeleteFileMetadata(ctx, m.ID); err != nil {
			c.log.Warn().Err(err).Str("file_id", m.ID).Msg("failed to delete expired file metadata")
			continue
		}
		c.audit(ctx, "", domain.AuditFileDelete, domain.ResourceFile, m.ID, true, "expired")
		count++
	}
	return count, nil
}

// AuditLog is a no-op when auditing is disabled; otherwise fire-and-forget
// from the caller's perspective — a write failure is logged, never returned.
func (c *Control) AuditLog(ctx context.Context, e domain.AuditLogEntry) {
	c.audit(ctx, e.UserID, e.Action, e.ResourceType, e.ResourceID, e.Success, e.ErrorMessage)
}

func (c *Control) audit(ctx context.Context, userID string, action domain.AuditAction, resourceType domain.AuditResourceType, resourceID string, success bool, errMsg string) {
	if !c.policy.AuditEnabled {
		return
	}
	entry := domain.AuditLogEntry{
		ID:           uuid.New().String(),
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Success:      success,
		ErrorMessage: errMsg,
		CreatedAt:    time.Now().UnixMilli(),
	}
	if err := c.store.WriteAuditLog(ctx, entry); err != nil {
		c.log.Warn().Err(err).Msg("failed to write audit log entry")
	}
}

func allowedType(allowed []domain.FileType, t domain.FileType) bool {
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}
