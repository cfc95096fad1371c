package revocation

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rca-academy/school_mis/services/auth/internal/models"
)

// GormStore keeps the denylist in the revoked_tokens table. Used when no
// Redis is configured.
type GormStore struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db, now: time.Now}
}

func (s *GormStore) Revoke(ctx context.Context, jti string, until time.Time) error {
	if !until.After(s.now()) {
		return nil
	}
	rec := models.RevokedToken{JTI: jti, ExpiresAt: until.UTC()}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("db revoke: %w", err)
	}
	return nil
}

func (s *GormStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.RevokedToken{}).
		Where("jti = ? AND expires_at > ?", jti, s.now().UTC()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("db is revoked: %w", err)
	}
	return count > 0, nil
}

// Purge removes entries whose tokens have expired anyway.
func (s *GormStore) Purge(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("expires_at <= ?", s.now().UTC()).
		Delete(&models.RevokedToken{})
	return res.RowsAffected, res.Error
}
