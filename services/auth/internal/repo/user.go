package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rca-academy/school_mis/services/auth/internal/domain"
	"github.com/rca-academy/school_mis/services/auth/internal/models"
)

func toRole(r models.Role) domain.Role {
	return domain.Role{Name: r.Name, Permissions: append([]string(nil), r.Permissions...)}
}

// accountStatus maps an unknown stored status to INACTIVE so it never logs in.
func accountStatus(s string) domain.Status {
	st, err := domain.ParseStatus(s)
	if err != nil {
		return domain.StatusInactive
	}
	return st
}

func toAccount(u *models.User) *domain.Account {
	roles := make([]domain.Role, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, toRole(r))
	}
	return &domain.Account{
		Identity: domain.Identity{
			ID:                u.ID,
			Email:             u.Email,
			Status:            accountStatus(u.Status),
			Roles:             roles,
			PasswordChangedAt: u.PasswordChangedAt,
		},
		PasswordHash: u.PasswordHash,
	}
}

func toProfile(u *models.User) *domain.Profile {
	p := &domain.Profile{
		ID:        u.ID,
		Email:     u.Email,
		Status:    accountStatus(u.Status),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		Roles:     make([]string, 0, len(u.Roles)),
	}
	for _, r := range u.Roles {
		p.Roles = append(p.Roles, r.Name)
	}
	if pr := u.Profile; pr != nil {
		p.FirstName = pr.FirstName
		p.LastName = pr.LastName
		p.Phone = pr.Phone
		p.Address = pr.Address
		p.ProfilePicture = pr.ProfilePicture
		p.DateOfBirth = pr.DateOfBirth
		p.Gender = domain.Gender(pr.Gender)
		if pr.UpdatedAt.After(p.UpdatedAt) {
			p.UpdatedAt = pr.UpdatedAt
		}
	}
	return p
}

func applyProfile(p *models.UserProfile, upd domain.ProfileUpdate) {
	if upd.FirstName != nil {
		p.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		p.LastName = *upd.LastName
	}
	if upd.Phone != nil {
		p.Phone = *upd.Phone
	}
	if upd.Address != nil {
		p.Address = *upd.Address
	}
	if upd.ProfilePicture != nil {
		p.ProfilePicture = *upd.ProfilePicture
	}
	if upd.DateOfBirth != nil {
		dob := *upd.DateOfBirth
		p.DateOfBirth = &dob
	}
	if upd.Gender != nil {
		p.Gender = string(*upd.Gender)
	}
}

func (r *GormRepo) findUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	err := r.DB.WithContext(ctx).
		Preload("Roles").
		Preload("Profile").
		Where(query, arg).
		First(&user).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// FindUserByEmail matches case-insensitively.
func (r *GormRepo) FindUserByEmail(ctx context.Context, email string) (*domain.Account, error) {
	user, err := r.findUser(ctx, "LOWER(email) = ?", domain.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return toAccount(user), nil
}

func (r *GormRepo) FindUserByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	user, err := r.findUser(ctx, "id = ?", id)
	if err != nil {
		return nil, err
	}
	return toAccount(user), nil
}

// CreateUser inserts the account, its profile and role links in one transaction.
func (r *GormRepo) CreateUser(ctx context.Context, in domain.NewAccount) (*domain.Account, error) {
	email := domain.NormalizeEmail(in.Email)
	status := in.Status
	if status == "" {
		status = domain.StatusActive
	}

	user := models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: in.PasswordHash,
		Status:       string(status),
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var roles []models.Role
		if len(in.RoleNames) > 0 {
			if err := tx.Where("name IN ?", in.RoleNames).Find(&roles).Error; err != nil {
				return err
			}
			if len(roles) != len(uniq(in.RoleNames)) {
				return ErrRoleNotFound
			}
		}
		user.Roles = roles

		var count int64
		if err := tx.Model(&models.User{}).Where("LOWER(email) = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUserAlreadyExist
		}
		if err := tx.Omit("Roles.*").Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrUserAlreadyExist
			}
			return err
		}

		profile := models.UserProfile{UserID: user.ID}
		applyProfile(&profile, in.Profile)
		if err := tx.Create(&profile).Error; err != nil {
			return err
		}
		user.Profile = &profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toAccount(&user), nil
}

func uniq(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

// SetPassword stores a new hash, stamps PasswordChangedAt and revokes every
// refresh token of the account.
func (r *GormRepo) SetPassword(ctx context.Context, id uuid.UUID, passwordHash string, changedAt time.Time) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return setPassword(tx, id, passwordHash, changedAt)
	})
}

func setPassword(tx *gorm.DB, id uuid.UUID, passwordHash string, changedAt time.Time) error {
	res := tx.Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"password_hash":       passwordHash,
			"password_changed_at": changedAt.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	if _, err := revokeRefresh(tx, "user_id = ?", id, changedAt); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

func (r *GormRepo) GetProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	user, err := r.findUser(ctx, "id = ?", id)
	if err != nil {
		return nil, err
	}
	return toProfile(user), nil
}

// UpdateProfile changes only the fields set in upd.
func (r *GormRepo) UpdateProfile(ctx context.Context, id uuid.UUID, upd domain.ProfileUpdate) (*domain.Profile, error) {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.UserProfile
		err := tx.Where("user_id = ?", id).
			First(&profile).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			var count int64
			if err := tx.Model(&models.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			profile = models.UserProfile{UserID: id}
		case err != nil:
			return err
		}
		applyProfile(&profile, upd)
		return tx.Save(&profile).Error
	})
	if err != nil {
		return nil, err
	}
	return r.GetProfile(ctx, id)
}
