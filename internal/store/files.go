package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/mailsentinel/core/internal/domain"
)

// CreateFileMetadata inserts a file_metadata row and grants its owner every
// permission in domain.AllPermissions, per spec.md §4.G "createFileMetadata".
func (s *Store) CreateFileMetadata(ctx context.Context, m domain.FileMetadata) error {
	paramSets := [][]interface{}{{
		m.ID, m.FilePath, m.OriginalFilename, string(m.FileType), m.SizeBytes,
		nullIfEmpty(m.MimeType), nullIfEmpty(m.ChecksumSHA256), string(m.EncryptionStatus),
		string(m.CompressionStatus), m.UserID, m.CreatedAt, m.AccessedAt, m.ExpiresAt,
	}}
	_, err := s.ExecuteBatch(ctx, `
		INSERT INTO file_metadata (
			id, file_path, original_filename, file_type, size_bytes, mime_type,
			checksum_sha256, encryption_status, compression_status, user_id,
			created_at, accessed_at, expires_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`, paramSets)
	if err != nil {
		return fmt.Errorf("create file metadata: %w", err)
	}

	now := nowMs()
	grantSets := make([][]interface{}, 0, len(domain.AllPermissions))
	for _, p := range domain.AllPermissions {
		grantSets = append(grantSets, []interface{}{
			uuid.New().String(), m.ID, m.UserID, string(p), m.UserID, now, nil, true,
		})
	}
	_, err = s.ExecuteBatch(ctx, `
		INSERT INTO file_access_permissions (
			id, file_id, user_id, permission_type, granted_by, granted_at, expires_at, is_active
		) VALUES (?,?,?,?,?,?,?,?)`, grantSets)
	if err != nil {
		return fmt.Errorf("grant owner permissions: %w", err)
	}
	return nil
}

// GetFileMetadata fetches a file row by ID.
func (s *Store) GetFileMetadata(ctx context.Context, fileID string) (domain.FileMetadata, error) {
	var m domain.FileMetadata
	var fileType, encStatus, compStatus string
	var mimeType, checksum sql.NullString
	var accessedAt, expiresAt sql.NullInt64

	err := s.QueryRow(ctx, `
		SELECT id, file_path, original_filename, file_type, size_bytes, mime_type,
			checksum_sha256, encryption_status, compression_status, user_id,
			created_at, accessed_at, expires_at
		FROM file_metadata WHERE id = ?`, fileID).Scan(
		&m.ID, &m.FilePath, &m.OriginalFilename, &fileType, &m.SizeBytes, &mimeType,
		&checksum, &encStatus, &compStatus, &m.UserID, &m.CreatedAt, &accessedAt, &expiresAt,
	)
	if err != nil {
		return m, err
	}

	m.FileType = domain.FileType(fileType)
	m.EncryptionStatus = domain.EncryptionStatus(encStatus)
	m.CompressionStatus = domain.CompressionStatus(compStatus)
	if mimeType.Valid {
		m.MimeType = mimeType.String
	}
	if checksum.Valid {
		m.ChecksumSHA256 = checksum.String
	}
	if accessedAt.Valid {
		m.AccessedAt = &accessedAt.Int64
	}
	if expiresAt.Valid {
		m.ExpiresAt = &expiresAt.Int64
	}
	return m, nil
}

// CheckFileAccess reports whether userID holds an active, unexpired grant of
// permission p on fileID, per spec.md §4.G "checkFileAccess".
func (s *Store) CheckFileAccess(ctx context.Context, fileID, userID string, p domain.PermissionType) (bool, error) {
	var count int
	err := s.QueryRow(ctx, `
		SELECT COUNT(*) FROM file_access_permissions
		WHERE file_id = ? AND user_id = ? AND permission_type = ? AND is_active = 1
		AND (expires_at IS NULL OR expires_at > ?)`,
		fileID, userID, string(p), nowMs(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check file access: %w", err)
	}
	return count > 0, nil
}

// GrantFilePermission upserts an active grant, replacing an expired or
// revoked one for the same (file, user, permission) tuple.
func (s *Store) GrantFilePermission(ctx context.Context, perm domain.FileAccessPermission) error {
	_, err := s.Execute(ctx, `
		INSERT INTO file_access_permissions (id, file_id, user_id, permission_type, granted_by, granted_at, expires_at, is_active)
		VALUES (?,?,?,?,?,?,?,1)
		ON CONFLICT(file_id, user_id, permission_type) DO UPDATE SET
			granted_by = excluded.granted_by, granted_at = excluded.granted_at,
			expires_at = excluded.expires_at, is_active = 1`,
		perm.ID, perm.FileID, perm.UserID, string(perm.PermissionType), perm.GrantedBy, perm.GrantedAt, perm.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("grant file permission: %w", err)
	}
	return nil
}

// RevokeFilePermission marks a grant inactive rather than deleting it, so the
// audit trail in audit_log stays reconcilable against permission history.
func (s *Store) RevokeFilePermission(ctx context.Context, fileID, userID string, p domain.PermissionType) error {
	_, err := s.Execute(ctx,
		"UPDATE file_access_permissions SET is_active = 0 WHERE file_id = ? AND user_id = ? AND permission_type = ?",
		fileID, userID, string(p),
	)
	if err != nil {
		return fmt.Errorf("revoke file permission: %w", err)
	}
	return nil
}

// CleanupExpiredFiles returns the metadata rows whose expires_at has passed, for
// the caller to unlink from disk before deleting their rows, per spec.md
// §4.G "cleanupExpiredFiles".
func (s *Store) CleanupExpiredFiles(ctx context.Context) ([]domain.FileMetadata, error) {
	rows, err := s.Query(ctx, `
		SELECT id, file_path, original_filename, file_type, size_bytes, mime_type,
			checksum_sha256, encryption_status, compression_status, user_id,
			created_at, accessed_at, expires_at
		FROM file_metadata WHERE expires_at IS NOT NULL AND expires_at <= ?`, nowMs())
	if err != nil {
		return nil, fmt.Errorf("query expired files: %w", err)
	}
	defer rows.Close()

	var out []domain.FileMetadata
	for rows.Next() {
		var m domain.FileMetadata
		var fileType, encStatus, compStatus string
		var mimeType, checksum sql.NullString
		var accessedAt, expiresAt sql.NullInt64

		if err := rows.Scan(
			&m.ID, &m.FilePath, &m.OriginalFilename, &fileType, &m.SizeBytes, &mimeType,
			&checksum, &encStatus, &compStatus, &m.UserID, &m.CreatedAt, &accessedAt, &expiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan expired file: %w", err)
		}
		m.FileType = domain.FileType(fileType)
		m.EncryptionStatus = domain.EncryptionStatus(encStatus)
		m.CompressionStatus = domain.CompressionStatus(compStatus)
		if mimeType.Valid {
			m.MimeType = mimeType.String
		}
		if checksum.Valid {
			m.ChecksumSHA256 = checksum.String
		}
		if accessedAt.Valid {
			m.AccessedAt = &accessedAt.Int64
		}
		if expiresAt.Valid {
			m.ExpiresAt = &expiresAt.Int64
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TouchFileAccess records the current time as fileID's last access, per
// spec.md §4.L "on read, touch access-time".
func (s *Store) TouchFileAccess(ctx context.Context, fileID string) error {
	_, err := s.Execute(ctx, "UPDATE file_metadata SET accessed_at = ? WHERE id = ?", nowMs(), fileID)
	if err != nil {
		return fmt.Errorf("touch file access: %w", err)
	}
	return nil
}

// DeleteFileMetadata removes a file row after its on-disk bytes have been
// unlinked by the caller.
func (s *Store) DeleteFileMetadata(ctx context.Context, fileID string) error {
	_, err := s.Execute(ctx, "DELETE FROM file_metadata WHERE id = ?", fileID)
	if err != nil {
		return fmt.Errorf("delete file metadata: %w", err)
	}
	return nil
}

// WriteAuditLog appends one audit entry, never updated or deleted.
func (s *Store) WriteAuditLog(ctx context.Context, e domain.AuditLogEntry) error {
	_, err := s.Execute(ctx, `
		INSERT INTO audit_log (
			id, user_id, action, resource_type, resource_id, details, success,
			error_message, ip_address, user_agent, session_id, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.UserID, string(e.Action), string(e.ResourceType), e.ResourceID,
		nullIfEmpty(e.Details), e.Success, nullIfEmpty(e.ErrorMessage),
		nullIfEmpty(e.IPAddress), nullIfEmpty(e.UserAgent), nullIfEmpty(e.SessionID), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// ListAuditLog returns the most recent audit entries for userID.
func (s *Store) ListAuditLog(ctx context.Context, userID string, limit int) ([]domain.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Query(ctx, `
		SELECT id, user_id, action, resource_type, resource_id, details, success,
			error_message, ip_address, user_agent, session_id, created_at
		FROM audit_log WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditLogEntry
	for rows.Next() {
		var e domain.AuditLogEntry
		var action, resourceType string
		var resourceID, details, errMsg, ip, ua, sessionID sql.NullString

		if err := rows.Scan(&e.ID, &e.UserID, &action, &resourceType, &resourceID, &details,
			&e.Success, &errMsg, &ip, &ua, &sessionID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log row: %w", err)
		}
		e.Action = domain.AuditAction(action)
		e.ResourceType = domain.AuditResourceType(resourceType)
		e.ResourceID = resourceID.String
		e.Details = details.String
		e.ErrorMessage = errMsg.String
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		e.SessionID = sessionID.String
		out = append(out, e)
	}
	return out, rows.Err()
}
