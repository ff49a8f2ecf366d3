package repo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trademart/server/internal/model"
)

func TestMemoryAccountRepo_GetByEmailIsCaseInsensitive(t *testing.T) {
	r := NewMemoryAccountRepo()
	ctx := context.Background()

	account := &model.Account{Email: "Vendor@X.com", Role: model.RoleVendor}
	require.NoError(t, r.Create(ctx, account))

	got, err := r.GetByEmail(ctx, "vendor@x.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)
	assert.Equal(t, "Vendor@X.com", got.Email, "stored casing is preserved")

	got, err = r.GetByEmail(ctx, "VENDOR@x.COM")
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)
}

func TestMemoryPendingLoginRepo_CreateOrReplaceLastWriterWins(t *testing.T) {
	r := NewMemoryPendingLoginRepo()
	ctx := context.Background()
	accountID := uuid.New()

	first := &model.PendingLogin{AccountID: accountID, Email: "a@x.com", ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, r.CreateOrReplace(ctx, first))

	second := &model.PendingLogin{AccountID: accountID, Email: "a@x.com", ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, r.CreateOrReplace(ctx, second))

	_, err := r.Get(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound, "replaced pending login must be dead")

	got, err := r.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestMemoryPendingLoginRepo_ConsumeOnce(t *testing.T) {
	r := NewMemoryPendingLoginRepo()
	ctx := context.Background()

	p := &model.PendingLogin{AccountID: uuid.New(), ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, r.CreateOrReplace(ctx, p))

	const workers = 16
	var wg sync.WaitGroup
	consumed := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.Consume(ctx, p.ID)
			assert.NoError(t, err)
			consumed <- ok
		}()
	}
	wg.Wait()
	close(consumed)

	wins := 0
	for ok := range consumed {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one consume may win")
}

func TestMemoryPendingLoginRepo_CountRecent(t *testing.T) {
	r := NewMemoryPendingLoginRepo()
	ctx := context.Background()
	accountID := uuid.New()

	for i := 0; i < 3; i++ {
		p := &model.PendingLogin{AccountID: accountID, ExpiresAt: time.Now().Add(time.Minute)}
		require.NoError(t, r.CreateOrReplace(ctx, p))
	}

	count, err := r.CountRecentByAccount(ctx, accountID, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, count, "replaced rows still count toward the issue limit")

	count, err = r.CountRecentByAccount(ctx, accountID, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemorySessionRepo_RevokeUnknownIsNoop(t *testing.T) {
	r := NewMemorySessionRepo()
	ctx := context.Background()

	assert.NoError(t, r.Revoke(ctx, uuid.New()))

	s := &model.Session{AccountID: uuid.New(), ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, r.Create(ctx, s))
	require.NoError(t, r.Revoke(ctx, s.ID))
	require.NoError(t, r.Revoke(ctx, s.ID))

	got, err := r.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.RevokedAt)
}

func TestMemoryRepos_DeleteExpired(t *testing.T) {
	ctx := context.Background()

	pending := NewMemoryPendingLoginRepo()
	live := &model.PendingLogin{AccountID: uuid.New(), ExpiresAt: time.Now().Add(time.Hour)}
	dead := &model.PendingLogin{AccountID: uuid.New(), ExpiresAt: time.Now().Add(-time.Hour)}
	require.NoError(t, pending.CreateOrReplace(ctx, live))
	require.NoError(t, pending.CreateOrReplace(ctx, dead))

	n, err := pending.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	sessions := NewMemorySessionRepo()
	old := &model.Session{AccountID: uuid.New(), ExpiresAt: time.Now().Add(-time.Hour)}
	require.NoError(t, sessions.Create(ctx, old))
	n, err = sessions.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
