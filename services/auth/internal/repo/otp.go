package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/rca-academy/school_mis/services/auth/internal/domain"
	"github.com/rca-academy/school_mis/services/auth/internal/models"
)

func toResetRecord(m *models.OTPRecord) *domain.ResetRecord {
	return &domain.ResetRecord{
		ID:            m.ID,
		Email:         m.Email,
		CodeHash:      m.CodeHash,
		TokenHash:     m.TokenHash,
		ExpiresAt:     m.ExpiresAt,
		Attempts:      m.Attempts,
		VerifiedAt:    m.VerifiedAt,
		UsedAt:        m.UsedAt,
		InvalidatedAt: m.InvalidatedAt,
	}
}

// CreateResetRecord invalidates every unfinished record for the email and
// stores the new one.
func (r *GormRepo) CreateResetRecord(ctx context.Context, rec domain.ResetRecord) error {
	now := time.Now().UTC()
	email := domain.NormalizeEmail(rec.Email)
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.OTPRecord{}).
			Where("email = ? AND used_at IS NULL AND invalidated_at IS NULL", email).
			Update("invalidated_at", now).Error
		if err != nil {
			return fmt.Errorf("invalidate pending: %w", err)
		}
		m := models.OTPRecord{
			Email:     email,
			CodeHash:  rec.CodeHash,
			TokenHash: rec.TokenHash,
			ExpiresAt: rec.ExpiresAt.UTC(),
		}
		return tx.Create(&m).Error
	})
}

// LatestPendingReset returns the newest record for email that still accepts
// an OTP.
func (r *GormRepo) LatestPendingReset(ctx context.Context, email string, now time.Time, maxAttempts int) (*domain.ResetRecord, error) {
	var m models.OTPRecord
	err := r.DB.WithContext(ctx).
		Where("email = ?", domain.NormalizeEmail(email)).
		Where("verified_at IS NULL AND used_at IS NULL AND invalidated_at IS NULL").
		Where("expires_at > ? AND attempts < ?", now.UTC(), maxAttempts).
		Order("id DESC").
		First(&m).Error
	if err != nil {
		return nil, notFound(err)
	}
	return toResetRecord(&m), nil
}

// RecordOTPFailure counts a wrong code and burns the record once maxAttempts
// is reached. The count and the burn happen in one statement so parallel
// guesses cannot read a stale count. It reports whether the record is burnt.
func (r *GormRepo) RecordOTPFailure(ctx context.Context, id uint, maxAttempts int) (bool, error) {
	now := time.Now().UTC()
	db := r.DB.WithContext(ctx)
	res := db.Model(&models.OTPRecord{}).
		Where("id = ? AND used_at IS NULL AND invalidated_at IS NULL", id).
		Updates(map[string]any{
			"attempts":       gorm.Expr("attempts + 1"),
			"invalidated_at": gorm.Expr("CASE WHEN attempts + 1 >= ? THEN ? ELSE invalidated_at END", maxAttempts, now),
		})
	if res.Error != nil {
		return false, fmt.Errorf("record otp failure: %w", res.Error)
	}

	var m models.OTPRecord
	if err := db.First(&m, id).Error; err != nil {
		return false, notFound(err)
	}
	return m.InvalidatedAt != nil || m.Attempts >= maxAttempts, nil
}

// MarkOTPVerified consumes the code. False means another caller got there first
// or the record is no longer usable.
func (r *GormRepo) MarkOTPVerified(ctx context.Context, id uint, now time.Time, maxAttempts int) (bool, error) {
	now = now.UTC()
	res := r.DB.WithContext(ctx).Model(&models.OTPRecord{}).
		Where("id = ? AND verified_at IS NULL AND used_at IS NULL AND invalidated_at IS NULL", id).
		Where("expires_at > ? AND attempts < ?", now, maxAttempts).
		Update("verified_at", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CompleteReset finishes a verified recovery: the record is marked used, the
// account gets the new hash, and its refresh tokens are revoked. Any record
// that is unverified, expired, burnt or used yields ErrResetInvalid.
func (r *GormRepo) CompleteReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*domain.Identity, error) {
	now = now.UTC()
	var identity *domain.Identity
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.OTPRecord
		err := tx.Where("token_hash = ?", tokenHash).First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrResetInvalid
		}
		if err != nil {
			return err
		}
		if m.VerifiedAt == nil || m.UsedAt != nil || m.InvalidatedAt != nil || !now.Before(m.ExpiresAt) {
			return ErrResetInvalid
		}

		var user models.User
		err = tx.Preload("Roles").Where("LOWER(email) = ?", m.Email).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrResetInvalid
		}
		if err != nil {
			return err
		}
		if !accountStatus(user.Status).CanLogin() {
			return ErrResetInvalid
		}

		res := tx.Model(&models.OTPRecord{}).
			Where("id = ? AND used_at IS NULL", m.ID).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrResetInvalid
		}

		if err := setPassword(tx, user.ID, passwordHash, now); err != nil {
			return err
		}
		identity = &toAccount(&user).Identity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return identity, nil
}
