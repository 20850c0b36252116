package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsentinel/core/internal/ports"
)

type stubRemote struct{}

func (stubRemote) ListPage(ctx context.Context, query, pageToken string, maxResults int) (ports.RemotePage, error) {
	return ports.RemotePage{}, nil
}
func (stubRemote) GetBatch(ctx context.Context, ids []string) ([]ports.RemoteMessage, error) {
	return nil, nil
}
func (stubRemote) BatchModify(ctx context.Context, ids []string, add, remove []string) error {
	return nil
}

func TestValidate_RejectsMissingUserID(t *testing.T) {
	v := NewValidator(NewSessionStore())
	err := v.Validate(context.Background(), ports.UserContext{SessionID: "s1"})
	require.Error(t, err)
	var ae *ports.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ports.ErrUserIDMissing, ae.Kind)
}

func TestValidate_RejectsMissingSessionID(t *testing.T) {
	v := NewValidator(NewSessionStore())
	err := v.Validate(context.Background(), ports.UserContext{UserID: "user1"})
	var ae *ports.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ports.ErrSessionIDMissing, ae.Kind)
}

func TestValidate_RejectsUnknownSession(t *testing.T) {
	v := NewValidator(NewSessionStore())
	err := v.Validate(context.Background(), ports.UserContext{UserID: "user1", SessionID: "s1"})
	var ae *ports.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ports.ErrSessionInvalid, ae.Kind)
}

func TestValidate_RejectsSessionUserMismatch(t *testing.T) {
	store := NewSessionStore()
	store.Put("s1", Session{UserID: "user2", Client: stubRemote{}})
	v := NewValidator(store)

	err := v.Validate(context.Background(), ports.UserContext{UserID: "user1", SessionID: "s1"})
	var ae *ports.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ports.ErrSessionUserMismatch, ae.Kind)
}

func TestValidate_AcceptsMatchingSession(t *testing.T) {
	store := NewSessionStore()
	store.Put("s1", Session{UserID: "user1", Client: stubRemote{}})
	v := NewValidator(store)

	err := v.Validate(context.Background(), ports.UserContext{UserID: "user1", SessionID: "s1"})
	assert.NoError(t, err)
}

func TestGetRemoteClient_ReturnsBoundClient(t *testing.T) {
	store := NewSessionStore()
	client := stubRemote{}
	store.Put("s1", Session{UserID: "user1", Client: client})
	v := NewValidator(store)

	got, err := v.GetRemoteClient(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, client, got)
}

func TestGetRemoteClient_UnknownSessionErrors(t *testing.T) {
	v := NewValidator(NewSessionStore())
	_, err := v.GetRemoteClient(context.Background(), "missing")
	var ae *ports.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ports.ErrSessionInvalid, ae.Kind)
}

func TestSessionStore_DeleteRevokesSession(t *testing.T) {
	store := NewSessionStore()
	store.Put("s1", Session{UserID: "user1", Client: stubRemote{}})
	store.Delete("s1")
	v := NewValidator(store)

	err := v.Validate(context.Background(), ports.UserContext{UserID: "user1", SessionID: "s1"})
	var ae *ports.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ports.ErrSessionInvalid, ae.Kind)
}
