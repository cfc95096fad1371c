package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/rca-academy/school_mis/services/auth/internal/domain"
	"github.com/rca-academy/school_mis/services/auth/internal/models"
)

func toRefreshModel(rec domain.RefreshRecord) models.RefreshToken {
	return models.RefreshToken{
		JTI:        rec.JTI,
		TokenHash:  rec.TokenHash,
		UserID:     rec.UserID,
		SessionID:  rec.SessionID,
		ExpiresAt:  rec.ExpiresAt.UTC(),
		Revoked:    rec.Revoked,
		ReplacedBy: rec.ReplacedBy,
	}
}

func toRefreshRecord(m *models.RefreshToken) *domain.RefreshRecord {
	return &domain.RefreshRecord{
		JTI:        m.JTI,
		TokenHash:  m.TokenHash,
		UserID:     m.UserID,
		SessionID:  m.SessionID,
		ExpiresAt:  m.ExpiresAt,
		Revoked:    m.Revoked,
		ReplacedBy: m.ReplacedBy,
	}
}

func (r *GormRepo) SaveRefreshToken(ctx context.Context, rec domain.RefreshRecord) error {
	m := toRefreshModel(rec)
	return r.DB.WithContext(ctx).Create(&m).Error
}

func (r *GormRepo) FindRefreshToken(ctx context.Context, jti string) (*domain.RefreshRecord, error) {
	var token models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("jti = ?", jti).First(&token).Error; err != nil {
		return nil, notFound(err)
	}
	return toRefreshRecord(&token), nil
}

func markAsUsed(tx *gorm.DB, oldJTI, replacedBy string, at time.Time) (int64, error) {
	res := tx.Model(&models.RefreshToken{}).
		Where("jti = ? AND revoked = ?", oldJTI, false).
		Updates(map[string]any{
			"revoked":     true,
			"revoked_at":  at,
			"replaced_by": replacedBy,
		})
	return res.RowsAffected, res.Error
}

// RotateRefreshToken retires oldJTI and stores next atomically. A token that
// was already retired yields ErrRefreshReused and nothing is written.
func (r *GormRepo) RotateRefreshToken(ctx context.Context, oldJTI string, next domain.RefreshRecord) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := markAsUsed(tx, oldJTI, next.JTI, time.Now().UTC())
		if err != nil {
			return err
		}
		if n == 0 {
			var count int64
			if err := tx.Model(&models.RefreshToken{}).Where("jti = ?", oldJTI).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrRefreshReused
		}

		m := toRefreshModel(next)
		return tx.Create(&m).Error
	})
}

func revokeRefresh(tx *gorm.DB, query string, arg any, at time.Time) (int64, error) {
	res := tx.Model(&models.RefreshToken{}).
		Where(query, arg).
		Where("revoked = ?", false).
		Updates(map[string]any{"revoked": true, "revoked_at": at})
	return res.RowsAffected, res.Error
}

// RevokeSession revokes every refresh token minted for one login.
func (r *GormRepo) RevokeSession(ctx context.Context, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, errors.New("empty session id")
	}
	return revokeRefresh(r.DB.WithContext(ctx), "session_id = ?", sessionID, time.Now().UTC())
}

// DeleteExpiredRefreshTokens drops records that can no longer be presented.
func (r *GormRepo) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}
