// Package auth provides an in-process reference implementation of
// ports.UserContextValidator (spec.md §4.C). The OAuth token exchange and
// callback server that would normally populate a session are explicitly
// out of scope (spec.md §1) — this adapter only does the part the core
// actually consumes: validating a UserContext tuple against a registered
// session and vending the RemoteMailClient that session was issued with.
package auth

import (
	"context"
	"sync"

	"github.com/mailsentinel/core/internal/ports"
)

// Session is what getRemoteClient resolves — a session id bound to one
// user id and the RemoteMailClient that was minted for it.
type Session struct {
	UserID string
	Client ports.RemoteMailClient
}

// SessionStore is a concurrency-safe in-memory session table. Production
// deployments back this with whatever external session store the OAuth
// callback server populates; that wiring is out of scope here.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewSessionStore builds an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]Session)}
}

// Put registers (or replaces) the session for sessionID.
func (s *SessionStore) Put(sessionID string, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = sess
}

// Delete revokes a session.
func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

func (s *SessionStore) get(sessionID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}

// Validator implements ports.UserContextValidator over a SessionStore, per
// spec.md §4.C's four error kinds.
type Validator struct {
	Store *SessionStore
}

// NewValidator builds a Validator over store.
func NewValidator(store *SessionStore) *Validator {
	return &Validator{Store: store}
}

// Validate checks uc against the four error kinds spec.md §4.C names, in
// the order listed there: missing user id, missing session id, unknown
// session, then session/user mismatch.
func (v *Validator) Validate(ctx context.Context, uc ports.UserContext) error {
	if uc.UserID == "" {
		return &ports.AuthError{Kind: ports.ErrUserIDMissing, Msg: "user_id is required"}
	}
	if uc.SessionID == "" {
		return &ports.AuthError{Kind: ports.ErrSessionIDMissing, Msg: "session_id is required"}
	}
	sess, ok := v.Store.get(uc.SessionID)
	if !ok {
		return &ports.AuthError{Kind: ports.ErrSessionInvalid, Msg: "session is invalid or expired"}
	}
	if sess.UserID != uc.UserID {
		return &ports.AuthError{Kind: ports.ErrSessionUserMismatch, Msg: "session does not belong to user_id"}
	}
	return nil
}

// GetRemoteClient returns the RemoteMailClient bound to sessionID. Callers
// are expected to have already called Validate.
func (v *Validator) GetRemoteClient(ctx context.Context, sessionID string) (ports.RemoteMailClient, error) {
	sess, ok := v.Store.get(sessionID)
	if !ok {
		return nil, &ports.AuthError{Kind: ports.ErrSessionInvalid, Msg: "session is invalid or expired"}
	}
	return sess.Client, nil
}

var _ ports.UserContextValidator = (*Validator)(nil)
