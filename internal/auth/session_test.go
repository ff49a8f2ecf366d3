package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trademart/server/internal/model"
	"github.com/trademart/server/internal/repo"
)

func newTestSessionStore(ttl time.Duration) *SessionStore {
	return NewSessionStore(repo.NewMemorySessionRepo(), zap.NewNop(), "test-jwt-secret-at-least-32-characters", ttl)
}

func TestSessionIssueAndValidate(t *testing.T) {
	store := newTestSessionStore(time.Hour)
	ctx := context.Background()
	accountID := uuid.New()

	token, err := store.Issue(ctx, accountID, "vendor@x.com", model.RoleVendor)
	require.NoError(t, err)

	info, err := store.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, accountID, info.AccountID)
	assert.Equal(t, "vendor@x.com", info.Email)
	assert.Equal(t, model.RoleVendor, info.Role)
}

func TestSessionValidateRejectsGarbage(t *testing.T) {
	store := newTestSessionStore(time.Hour)
	ctx := context.Background()

	_, err := store.Validate(ctx, "definitely-not-a-token")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionValidateRejectsTamperedToken(t *testing.T) {
	store := newTestSessionStore(time.Hour)
	ctx := context.Background()

	token, err := store.Issue(ctx, uuid.New(), "admin@x.com", model.RoleAdmin)
	require.NoError(t, err)

	tampered := token[:len(token)-2] + "xx"
	_, err = store.Validate(ctx, tampered)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionValidateRejectsForeignSecret(t *testing.T) {
	store := newTestSessionStore(time.Hour)
	other := NewSessionStore(repo.NewMemorySessionRepo(), zap.NewNop(), "a-completely-different-signing-secret", time.Hour)
	ctx := context.Background()

	token, err := other.Issue(ctx, uuid.New(), "admin@x.com", model.RoleAdmin)
	require.NoError(t, err)

	_, err = store.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionExpiry(t *testing.T) {
	store := newTestSessionStore(-time.Minute) // issued already expired
	ctx := context.Background()

	token, err := store.Issue(ctx, uuid.New(), "vendor@x.com", model.RoleVendor)
	require.NoError(t, err)

	_, err = store.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestSessionRevokeIsIdempotent(t *testing.T) {
	store := newTestSessionStore(time.Hour)
	ctx := context.Background()

	token, err := store.Issue(ctx, uuid.New(), "vendor@x.com", model.RoleVendor)
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, token))
	require.NoError(t, store.Revoke(ctx, token))
	require.NoError(t, store.Revoke(ctx, "garbage"))

	_, err = store.Validate(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRevokeAllForAccount(t *testing.T) {
	store := newTestSessionStore(time.Hour)
	ctx := context.Background()
	accountID := uuid.New()

	t1, err := store.Issue(ctx, accountID, "admin@x.com", model.RoleAdmin)
	require.NoError(t, err)
	t2, err := store.Issue(ctx, accountID, "admin@x.com", model.RoleAdmin)
	require.NoError(t, err)
	other, err := store.Issue(ctx, uuid.New(), "vendor@x.com", model.RoleVendor)
	require.NoError(t, err)

	require.NoError(t, store.RevokeAllForAccount(ctx, accountID))

	_, err = store.Validate(ctx, t1)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Validate(ctx, t2)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Validate(ctx, other)
	assert.NoError(t, err, "other accounts' sessions stay live")
}
