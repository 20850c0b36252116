package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// baseSchema creates every table from spec.md §3 except the analyzer result
// columns on email_index, which migrate() adds separately so repeated opens
// of an older database file pick them up idempotently (spec.md §4.A
// "Schema & migration").
//
// date/timestamps are stored as epoch milliseconds throughout — one
// canonical unit per table, per the Design Note in spec.md §9 "Date as
// number". age_days_min in getEmailsForCleanup is computed against this same
// column.
const baseSchema = `
CREATE TABLE IF NOT EXISTS email_index (
	id TEXT PRIMARY KEY,
	thread_id TEXT,
	user_id TEXT,
	subject TEXT,
	sender TEXT,
	recipients TEXT NOT NULL DEFAULT '[]',
	date INTEGER NOT NULL,
	year INTEGER,
	size INTEGER NOT NULL DEFAULT 0,
	has_attachments INTEGER NOT NULL DEFAULT 0,
	labels TEXT NOT NULL DEFAULT '[]',
	snippet TEXT,
	archived INTEGER NOT NULL DEFAULT 0,
	archive_date INTEGER,
	archive_location TEXT,
	category TEXT CHECK (category IN ('high','medium','low') OR category IS NULL)
);

CREATE INDEX IF NOT EXISTS idx_email_index_user_date ON email_index(user_id, date DESC);
CREATE INDEX IF NOT EXISTS idx_email_index_user_archived ON email_index(user_id, archived);
CREATE INDEX IF NOT EXISTS idx_email_index_user_category ON email_index(user_id, category);

CREATE TABLE IF NOT EXISTS job_statuses (
	job_id TEXT PRIMARY KEY,
	job_type TEXT NOT NULL,
	status TEXT NOT NULL,
	request_params TEXT NOT NULL DEFAULT '{}',
	progress INTEGER NOT NULL DEFAULT 0,
	results TEXT,
	error_details TEXT,
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	completed_at INTEGER,
	updated_at INTEGER NOT NULL,
	user_id TEXT,
	policy_id TEXT,
	triggered_by TEXT,
	priority TEXT,
	batch_size INTEGER,
	target_emails INTEGER,
	emails_analyzed INTEGER NOT NULL DEFAULT 0,
	emails_cleaned INTEGER NOT NULL DEFAULT 0,
	storage_freed INTEGER NOT NULL DEFAULT 0,
	errors_encountered INTEGER NOT NULL DEFAULT 0,
	current_batch INTEGER NOT NULL DEFAULT 0,
	total_batches INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_job_statuses_user ON job_statuses(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS archive_rules (
	id TEXT PRIMARY KEY,
	user_id TEXT,
	name TEXT NOT NULL,
	criteria TEXT NOT NULL,
	action TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archive_rules_user ON archive_rules(user_id);

CREATE TABLE IF NOT EXISTS archive_records (
	id TEXT PRIMARY KEY,
	user_id TEXT,
	file_path TEXT NOT NULL,
	email_ids TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archive_records_user ON archive_records(user_id);

CREATE TABLE IF NOT EXISTS saved_searches (
	id TEXT PRIMARY KEY,
	user_id TEXT,
	name TEXT NOT NULL,
	criteria TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_saved_searches_user ON saved_searches(user_id);

CREATE TABLE IF NOT EXISTS file_metadata (
	id TEXT PRIMARY KEY,
	file_path TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	file_type TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	mime_type TEXT,
	checksum_sha256 TEXT,
	encryption_status TEXT NOT NULL DEFAULT 'none',
	compression_status TEXT NOT NULL DEFAULT 'none',
	user_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	accessed_at INTEGER,
	expires_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_file_metadata_user ON file_metadata(user_id);
CREATE INDEX IF NOT EXISTS idx_file_metadata_expires ON file_metadata(expires_at);

CREATE TABLE IF NOT EXISTS file_access_permissions (
	id TEXT PRIMARY KEY,
	file_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	permission_type TEXT NOT NULL,
	granted_by TEXT,
	granted_at INTEGER NOT NULL,
	expires_at INTEGER,
	is_active INTEGER NOT NULL DEFAULT 1,
	UNIQUE(file_id, user_id, permission_type)
);
CREATE INDEX IF NOT EXISTS idx_file_permissions_file_user ON file_access_permissions(file_id, user_id);

CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	user_id TEXT,
	action TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT,
	details TEXT,
	success INTEGER NOT NULL,
	error_message TEXT,
	ip_address TEXT,
	user_agent TEXT,
	session_id TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_user ON audit_log(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS email_access_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	email_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_email_access_log_user_email ON email_access_log(user_id, email_id);

CREATE TABLE IF NOT EXISTS search_activity (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	query TEXT,
	email_ids TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS email_access_summary (
	email_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	last_access_at INTEGER,
	access_score REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (email_id, user_id)
);
`

// analyzerColumns are the EmailIndex analysis fields added by migrate().
// Presence of the first one (importance_score) is how migrate() detects
// whether this step has already run, per spec.md §4.A.
var analyzerColumns = []struct {
	name string
	ddl  string
}{
	{"importance_score", "ALTER TABLE email_index ADD COLUMN importance_score REAL"},
	{"importance_level", "ALTER TABLE email_index ADD COLUMN importance_level TEXT"},
	{"importance_matched_rules", "ALTER TABLE email_index ADD COLUMN importance_matched_rules TEXT"},
	{"importance_confidence", "ALTER TABLE email_index ADD COLUMN importance_confidence REAL"},
	{"age_category", "ALTER TABLE email_index ADD COLUMN age_category TEXT"},
	{"size_category", "ALTER TABLE email_index ADD COLUMN size_category TEXT"},
	{"recency_score", "ALTER TABLE email_index ADD COLUMN recency_score REAL"},
	{"size_penalty", "ALTER TABLE email_index ADD COLUMN size_penalty REAL"},
	{"gmail_category", "ALTER TABLE email_index ADD COLUMN gmail_category TEXT CHECK (gmail_category IN ('important','spam','promotions','social','primary','updates','forums') OR gmail_category IS NULL)"},
	{"spam_score", "ALTER TABLE email_index ADD COLUMN spam_score REAL"},
	{"promotional_score", "ALTER TABLE email_index ADD COLUMN promotional_score REAL"},
	{"social_score", "ALTER TABLE email_index ADD COLUMN social_score REAL"},
	{"spam_indicators", "ALTER TABLE email_index ADD COLUMN spam_indicators TEXT"},
	{"promotional_indicators", "ALTER TABLE email_index ADD COLUMN promotional_indicators TEXT"},
	{"social_indicators", "ALTER TABLE email_index ADD COLUMN social_indicators TEXT"},
	{"analysis_timestamp", "ALTER TABLE email_index ADD COLUMN analysis_timestamp INTEGER"},
	{"analysis_version", "ALTER TABLE email_index ADD COLUMN analysis_version TEXT"},
}

// migrate bootstraps the schema then idempotently adds the analyzer
// columns. Running it twice is a no-op: "duplicate column name" from a
// repeat ALTER TABLE is tolerated, per spec.md §4.A and the idempotence
// property in spec.md §8.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(baseSchema); err != nil {
		return fmt.Errorf("create base schema: %w", err)
	}

	if hasAnalyzerColumns(s.db) {
		return nil
	}

	for _, col := range analyzerColumns {
		if _, err := s.db.Exec(col.ddl); err != nil {
			if isDuplicateColumn(err) {
				continue
			}
			return fmt.Errorf("migrate column %s: %w", col.name, err)
		}
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_email_index_user_importance ON email_index(user_id, importance_level)",
		"CREATE INDEX IF NOT EXISTS idx_email_index_user_gmail_category ON email_index(user_id, gmail_category)",
		"CREATE INDEX IF NOT EXISTS idx_email_index_analysis_version ON email_index(analysis_version)",
	}
	for _, idx := range indices {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("create analyzer index: %w", err)
		}
	}
	return nil
}

// hasAnalyzerColumns detects whether migration has already run by checking
// for the first analyzer column, per spec.md §4.A "Migration is detected by
// presence of the first analyzer column."
func hasAnalyzerColumns(db *sql.DB) bool {
	rows, err := db.Query("PRAGMA table_info(email_index)")
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false
		}
		if name == "importance_score" {
			return true
		}
	}
	return false
}

func isDuplicateColumn(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
