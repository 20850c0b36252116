package domain

// FileType is FileMetadata.file_type from spec.md §3.
type FileType string

const (
	FileTypeEmailExport   FileType = "email_export"
	FileTypeArchiveBackup FileType = "archive_backup"
	FileTypeSearchResult  FileType = "search_result"
	FileTypeAttachment    FileType = "attachment"
	FileTypeLogFile       FileType = "log_file"
)

// EncryptionStatus is FileMetadata.encryption_status from spec.md §3.
type EncryptionStatus string

const (
	EncryptionNone  EncryptionStatus = "none"
	EncryptionAES256 EncryptionStatus = "aes256"
	EncryptionGPG   EncryptionStatus = "gpg"
)

// CompressionStatus is FileMetadata.compression_status from spec.md §3.
type CompressionStatus string

const (
	CompressionNone CompressionStatus = "none"
	CompressionGzip CompressionStatus = "gzip"
	CompressionZip  CompressionStatus = "zip"
)

// FileMetadata is the file table row from spec.md §3.
type FileMetadata struct {
	ID                string            `json:"id"`
	FilePath          string            `json:"file_path"`
	OriginalFilename  string            `json:"original_filename"`
	FileType          FileType          `json:"file_type"`
	SizeBytes         int64             `json:"size_bytes"`
	MimeType          string            `json:"mime_type"`
	ChecksumSHA256    string            `json:"checksum_sha256"`
	EncryptionStatus  EncryptionStatus  `json:"encryption_status"`
	CompressionStatus CompressionStatus `json:"compression_status"`
	UserID            string            `json:"user_id"`
	CreatedAt         int64             `json:"created_at"`
	AccessedAt        *int64            `json:"accessed_at,omitempty"`
	ExpiresAt         *int64            `json:"expires_at,omitempty"`
}

// PermissionType is FileAccessPermission.permission_type from spec.md §3.
type PermissionType string

const (
	PermissionRead   PermissionType = "read"
	PermissionWrite  PermissionType = "write"
	PermissionDelete PermissionType = "delete"
	PermissionShare  PermissionType = "share"
)

// AllPermissions is granted to a file's owner in one pass on creation.
var AllPermissions = []PermissionType{PermissionRead, PermissionWrite, PermissionDelete, PermissionShare}

// FileAccessPermission is the permission row from spec.md §3. The tuple
// (FileID, UserID, PermissionType) is unique.
type FileAccessPermission struct {
	ID             string         `json:"id"`
	FileID         string         `json:"file_id"`
	UserID         string         `json:"user_id"`
	PermissionType PermissionType `json:"permission_type"`
	GrantedBy      string         `json:"granted_by"`
	GrantedAt      int64          `json:"granted_at"`
	ExpiresAt      *int64         `json:"expires_at,omitempty"`
	IsActive       bool           `json:"is_active"`
}

// AuditAction is AuditLogEntry.action from spec.md §3.
type AuditAction string

const (
	AuditFileCreate       AuditAction = "file_create"
	AuditFileRead         AuditAction = "file_read"
	AuditFileWrite        AuditAction = "file_write"
	AuditFileDelete       AuditAction = "file_delete"
	AuditFileShare        AuditAction = "file_share"
	AuditPermissionGrant  AuditAction = "permission_grant"
	AuditPermissionRevoke AuditAction = "permission_revoke"
	AuditLogin            AuditAction = "login"
	AuditLogout           AuditAction = "logout"
)

// AuditResourceType is AuditLogEntry.resource_type from spec.md §3.
type AuditResourceType string

const (
	ResourceFile    AuditResourceType = "file"
	ResourceEmail   AuditResourceType = "email"
	ResourceArchive AuditResourceType = "archive"
	ResourceSearch  AuditResourceType = "search"
	ResourceSession AuditResourceType = "user_session"
)

// AuditLogEntry is the append-only audit row from spec.md §3.
type AuditLogEntry struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Action       AuditAction       `json:"action"`
	ResourceType AuditResourceType `json:"resource_type"`
	ResourceID   string            `json:"resource_id"`
	Details      string            `json:"details,omitempty"` // opaque JSON
	Success      bool              `json:"success"`
	ErrorMessage string            `json:"error_message,omitempty"`
	IPAddress    string            `json:"ip_address,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
	SessionID    string            `json:"session_id,omitempty"`
	CreatedAt    int64             `json:"created_at"`
}

// AccessKind distinguishes the access-pattern events written by search and
// ingest, consumed by the cleanup eligibility predicate (spec.md §3
// "AccessPattern").
type AccessKind string

const (
	AccessView   AccessKind = "view"
	AccessSearch AccessKind = "search"
)

// AccessSummary is the denormalized email_access_summary row from spec.md §3.
type AccessSummary struct {
	EmailID      string  `json:"email_id"`
	UserID       string  `json:"user_id"`
	AccessCount  int     `json:"access_count"`
	LastAccessAt int64   `json:"last_access_at"`
	AccessScore  float64 `json:"access_score"` // from access count only (1 - e^(-count/7)), in [0,1); access times do not affect it
}
