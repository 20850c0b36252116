// Package ports defines the interfaces the core consumes but does not
// implement: the remote mail provider client and the user-context
// authentication adapter. The OAuth HTTP flow and the wire-level calls
// themselves are out of scope per spec.md §1 — only the shape a caller needs
// is described here, mirroring the ports.EmailProvider / ports.Storage
// split from the email-security domain this package was adapted from.
package ports

import (
	"context"

	"github.com/mailsentinel/core/internal/domain"
)

// RemoteMessage is the normalized shape returned by GetBatch — one remote
// message, already stripped of provider-specific wire format.
type RemoteMessage struct {
	ID             string
	ThreadID       string
	Subject        string
	Sender         string
	Recipients     []string
	Date           int64 // epoch ms
	Size           int64
	HasAttachments bool
	Labels         []string
	Snippet        string
}

// RemotePage is one page of a RemoteMailClient.ListPage call.
type RemotePage struct {
	MessageIDs    []string
	NextPageToken string
	Estimate      int
}

// RemoteMailClient is the consumed interface to a Gmail-compatible remote
// provider, per spec.md §6. BatchModify is the only mutation call and is
// all-or-nothing per batch.
type RemoteMailClient interface {
	ListPage(ctx context.Context, query string, pageToken string, maxResults int) (RemotePage, error)
	GetBatch(ctx context.Context, ids []string) ([]RemoteMessage, error)
	BatchModify(ctx context.Context, ids []string, addLabels, removeLabels []string) error
}

// UserContext is the (user_id, session_id, ...) tuple that authorizes and
// scopes every operation, per spec.md's GLOSSARY.
type UserContext struct {
	UserID    string
	SessionID string
	IP        string
	UserAgent string
	Roles     []string
	Perms     []string
}

// AuthErrorKind enumerates the UserContext adapter's error kinds from
// spec.md §4.C / §7.
type AuthErrorKind string

const (
	ErrUserIDMissing      AuthErrorKind = "UserIdMissing"
	ErrSessionIDMissing   AuthErrorKind = "SessionIdMissing"
	ErrSessionInvalid     AuthErrorKind = "SessionInvalid"
	ErrSessionUserMismatch AuthErrorKind = "SessionUserMismatch"
)

// AuthError carries one of the AuthErrorKind values; entry points switch on
// Kind rather than string-matching Error().
type AuthError struct {
	Kind AuthErrorKind
	Msg  string
}

func (e *AuthError) Error() string { return e.Msg }

// UserContextValidator validates a UserContext and yields a RemoteMailClient
// scoped to its session, per spec.md §4.C. The OAuth token exchange behind
// GetRemoteClient is a collaborator concern; only the interface is consumed
// here.
type UserContextValidator interface {
	Validate(ctx context.Context, uc UserContext) error
	GetRemoteClient(ctx context.Context, sessionID string) (RemoteMailClient, error)
}

// EmailFormatter is the export-method collaborator BulkMutator.archiveEmails
// consumes, per spec.md §4.J "export": the formatter registry itself (CSV,
// mbox, whatever concrete formats exist) is out of scope — only the shape a
// caller needs is described here.
type EmailFormatter interface {
	FormatEmails(emails []domain.EmailIndex) ([]byte, error)
	FileExtension() string
}
