package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rca-academy/school_mis/services/auth/internal/domain"
)

const testMaxAttempts = 3

func newReset(email, code, token string, ttl time.Duration) domain.ResetRecord {
	return domain.ResetRecord{
		Email:     email,
		CodeHash:  domain.Sha256Hex(code),
		TokenHash: domain.Sha256Hex(token),
		ExpiresAt: time.Now().Add(ttl),
	}
}

func TestGormRepo_ResetLifecycle(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	acc := createTeacher(t, r)
	require.NoError(t, r.SaveRefreshToken(ctx, newRecord(acc.ID, "sid")))

	require.NoError(t, r.CreateResetRecord(ctx, newReset("teacher@rca.ac.rw", "123456", "tok-1", 10*time.Minute)))

	rec, err := r.LatestPendingReset(ctx, "TEACHER@rca.ac.rw", time.Now(), testMaxAttempts)
	require.NoError(t, err)
	assert.Equal(t, domain.Sha256Hex("123456"), rec.CodeHash)

	_, err = r.CompleteReset(ctx, domain.Sha256Hex("tok-1"), "new-hash", time.Now())
	require.ErrorIs(t, err, ErrResetInvalid, "unverified record cannot reset")

	ok, err := r.MarkOTPVerified(ctx, rec.ID, time.Now(), testMaxAttempts)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.MarkOTPVerified(ctx, rec.ID, time.Now(), testMaxAttempts)
	require.NoError(t, err)
	assert.False(t, ok, "second verification loses")

	_, err = r.LatestPendingReset(ctx, "teacher@rca.ac.rw", time.Now(), testMaxAttempts)
	require.ErrorIs(t, err, ErrNotFound)

	id, err := r.CompleteReset(ctx, domain.Sha256Hex("tok-1"), "new-hash", time.Now())
	require.NoError(t, err)
	assert.Equal(t, acc.ID, id.ID)

	got, err := r.FindUserByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	require.NotNil(t, got.PasswordChangedAt)

	var active int64
	require.NoError(t, r.DB.Table("refresh_tokens").Where("user_id = ? AND revoked = ?", acc.ID, false).Count(&active).Error)
	assert.Zero(t, active, "reset already revoked sessions")

	_, err = r.CompleteReset(ctx, domain.Sha256Hex("tok-1"), "other", time.Now())
	require.ErrorIs(t, err, ErrResetInvalid, "single use")
}

func TestGormRepo_CreateResetRecordInvalidatesPrevious(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	createTeacher(t, r)

	require.NoError(t, r.CreateResetRecord(ctx, newReset("teacher@rca.ac.rw", "111111", "tok-a", 10*time.Minute)))
	require.NoError(t, r.CreateResetRecord(ctx, newReset("teacher@rca.ac.rw", "222222", "tok-b", 10*time.Minute)))

	rec, err := r.LatestPendingReset(ctx, "teacher@rca.ac.rw", time.Now(), testMaxAttempts)
	require.NoError(t, err)
	assert.Equal(t, domain.Sha256Hex("222222"), rec.CodeHash)

	var pending int64
	require.NoError(t, r.DB.Table("otp_records").Where("invalidated_at IS NULL").Count(&pending).Error)
	assert.EqualValues(t, 1, pending)
}

func TestGormRepo_ResetExpiry(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	createTeacher(t, r)

	require.NoError(t, r.CreateResetRecord(ctx, newReset("teacher@rca.ac.rw", "123456", "tok", time.Minute)))
	rec, err := r.LatestPendingReset(ctx, "teacher@rca.ac.rw", time.Now(), testMaxAttempts)
	require.NoError(t, err)

	later := time.Now().Add(2 * time.Minute)
	_, err = r.LatestPendingReset(ctx, "teacher@rca.ac.rw", later, testMaxAttempts)
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := r.MarkOTPVerified(ctx, rec.ID, later, testMaxAttempts)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.MarkOTPVerified(ctx, rec.ID, time.Now(), testMaxAttempts)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = r.CompleteReset(ctx, domain.Sha256Hex("tok"), "h", later)
	require.ErrorIs(t, err, ErrResetInvalid)
}

func TestGormRepo_RecordOTPFailureBurns(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	createTeacher(t, r)

	require.NoError(t, r.CreateResetRecord(ctx, newReset("teacher@rca.ac.rw", "123456", "tok", time.Minute)))
	rec, err := r.LatestPendingReset(ctx, "teacher@rca.ac.rw", time.Now(), testMaxAttempts)
	require.NoError(t, err)

	for i := 1; i < 3; i++ {
		burnt, err := r.RecordOTPFailure(ctx, rec.ID, testMaxAttempts)
		require.NoError(t, err)
		assert.False(t, burnt, "attempt %d", i)
	}
	burnt, err := r.RecordOTPFailure(ctx, rec.ID, testMaxAttempts)
	require.NoError(t, err)
	assert.True(t, burnt)

	ok, err := r.MarkOTPVerified(ctx, rec.ID, time.Now(), testMaxAttempts)
	require.NoError(t, err)
	assert.False(t, ok, "burnt record cannot be verified")
}

func TestGormRepo_CompleteReset_InactiveAccount(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	acc := createTeacher(t, r)

	require.NoError(t, r.CreateResetRecord(ctx, newReset("teacher@rca.ac.rw", "123456", "tok", time.Minute)))
	rec, err := r.LatestPendingReset(ctx, "teacher@rca.ac.rw", time.Now(), testMaxAttempts)
	require.NoError(t, err)
	ok, err := r.MarkOTPVerified(ctx, rec.ID, time.Now(), testMaxAttempts)
	require.NoError(t, err)
	require.True(t, ok)

	setStatus(t, r, acc.ID, string(domain.StatusLocked))
	_, err = r.CompleteReset(ctx, domain.Sha256Hex("tok"), "h", time.Now())
	require.ErrorIs(t, err, ErrResetInvalid)
}

func TestGormRepo_AttemptCapBlocksVerification(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	createTeacher(t, r)

	require.NoError(t, r.CreateResetRecord(ctx, newReset("teacher@rca.ac.rw", "123456", "tok", time.Minute)))
	rec, err := r.LatestPendingReset(ctx, "teacher@rca.ac.rw", time.Now(), testMaxAttempts)
	require.NoError(t, err)

	// Counter at the cap without a burn, as left by racing wrong guesses.
	require.NoError(t, r.DB.Table("otp_records").Where("id = ?", rec.ID).Update("attempts", testMaxAttempts).Error)

	_, err = r.LatestPendingReset(ctx, "teacher@rca.ac.rw", time.Now(), testMaxAttempts)
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := r.MarkOTPVerified(ctx, rec.ID, time.Now(), testMaxAttempts)
	require.NoError(t, err)
	assert.False(t, ok)

	burnt, err := r.RecordOTPFailure(ctx, rec.ID, testMaxAttempts)
	require.NoError(t, err)
	assert.True(t, burnt)
}

func TestGormRepo_RecordOTPFailureAfterBurnIsNoop(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	createTeacher(t, r)

	require.NoError(t, r.CreateResetRecord(ctx, newReset("teacher@rca.ac.rw", "123456", "tok", time.Minute)))
	rec, err := r.LatestPendingReset(ctx, "teacher@rca.ac.rw", time.Now(), 1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		burnt, err := r.RecordOTPFailure(ctx, rec.ID, 1)
		require.NoError(t, err)
		assert.True(t, burnt)
	}

	var attempts int
	require.NoError(t, r.DB.Table("otp_records").Select("attempts").Where("id = ?", rec.ID).Scan(&attempts).Error)
	assert.Equal(t, 1, attempts)

	_, err = r.RecordOTPFailure(ctx, 9999, 1)
	require.ErrorIs(t, err, ErrNotFound)
}
