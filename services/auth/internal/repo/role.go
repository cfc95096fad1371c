package repo

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/rca-academy/school_mis/services/auth/internal/domain"
	"github.com/rca-academy/school_mis/services/auth/internal/models"
)

func (r *GormRepo) FindRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	var role models.Role
	if err := r.DB.WithContext(ctx).Where("name = ?", name).First(&role).Error; err != nil {
		return nil, notFound(err)
	}
	out := toRole(role)
	return &out, nil
}

// UpsertRole creates the role or replaces its description and permissions.
func (r *GormRepo) UpsertRole(ctx context.Context, name, description string, permissions []string) error {
	role := models.Role{Name: name, Description: description, Permissions: permissions}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "permissions"}),
	}).Create(&role).Error
}

func (r *GormRepo) ListRoles(ctx context.Context) ([]domain.Role, error) {
	var roles []models.Role
	if err := r.DB.WithContext(ctx).Order("name").Find(&roles).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Role, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRole(role))
	}
	return out, nil
}
