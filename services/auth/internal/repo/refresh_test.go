package repo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rca-academy/school_mis/services/auth/internal/domain"
)

func newRecord(userID uuid.UUID, sid string) domain.RefreshRecord {
	return domain.RefreshRecord{
		JTI:       uuid.NewString(),
		TokenHash: domain.Sha256Hex(uuid.NewString()),
		UserID:    userID,
		SessionID: sid,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestGormRepo_RotateRefreshToken(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	acc := createTeacher(t, r)

	first := newRecord(acc.ID, "sid-1")
	require.NoError(t, r.SaveRefreshToken(ctx, first))

	second := newRecord(acc.ID, "sid-1")
	require.NoError(t, r.RotateRefreshToken(ctx, first.JTI, second))

	old, err := r.FindRefreshToken(ctx, first.JTI)
	require.NoError(t, err)
	assert.True(t, old.Revoked)
	assert.Equal(t, second.JTI, old.ReplacedBy)

	cur, err := r.FindRefreshToken(ctx, second.JTI)
	require.NoError(t, err)
	assert.False(t, cur.Revoked)
	assert.NotEqual(t, first.TokenHash, cur.TokenHash)

	third := newRecord(acc.ID, "sid-1")
	err = r.RotateRefreshToken(ctx, first.JTI, third)
	require.ErrorIs(t, err, ErrRefreshReused)

	_, err = r.FindRefreshToken(ctx, third.JTI)
	require.ErrorIs(t, err, ErrNotFound, "reuse must not persist the new token")

	err = r.RotateRefreshToken(ctx, "missing", newRecord(acc.ID, "sid-1"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGormRepo_RotateRefreshToken_ConcurrentSingleWinner(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	acc := createTeacher(t, r)

	first := newRecord(acc.ID, "sid-1")
	require.NoError(t, r.SaveRefreshToken(ctx, first))

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.RotateRefreshToken(ctx, first.JTI, newRecord(acc.ID, "sid-1"))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrRefreshReused)
	}
	assert.Equal(t, 1, wins)
}

func TestGormRepo_RevokeSessionAndUser(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	acc := createTeacher(t, r)

	a := newRecord(acc.ID, "sid-a")
	b := newRecord(acc.ID, "sid-a")
	c := newRecord(acc.ID, "sid-c")
	for _, rec := range []domain.RefreshRecord{a, b, c} {
		require.NoError(t, r.SaveRefreshToken(ctx, rec))
	}

	n, err := r.RevokeSession(ctx, "sid-a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got, err := r.FindRefreshToken(ctx, c.JTI)
	require.NoError(t, err)
	assert.False(t, got.Revoked)

	n, err = r.RevokeSession(ctx, "sid-a")
	require.NoError(t, err)
	assert.Zero(t, n, "already revoked")

	_, err = r.RevokeSession(ctx, "")
	require.Error(t, err)
}

func TestGormRepo_DeleteExpiredRefreshTokens(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	acc := createTeacher(t, r)

	expired := newRecord(acc.ID, "s")
	expired.ExpiresAt = time.Now().Add(-time.Hour)
	live := newRecord(acc.ID, "s")
	require.NoError(t, r.SaveRefreshToken(ctx, expired))
	require.NoError(t, r.SaveRefreshToken(ctx, live))

	n, err := r.DeleteExpiredRefreshTokens(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = r.FindRefreshToken(ctx, live.JTI)
	require.NoError(t, err)
}
