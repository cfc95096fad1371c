package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rca-academy/school_mis/pkg/logging"
	"github.com/rca-academy/school_mis/services/auth/internal/domain"
	"github.com/rca-academy/school_mis/services/auth/internal/repo"
)

// ProfileInput is a partial update; nil fields are left alone.
type ProfileInput struct {
	FirstName      *string
	LastName       *string
	Phone          *string
	Address        *string
	ProfilePicture *string
	DateOfBirth    *string
	Gender         *string
}

func (in ProfileInput) toUpdate() (domain.ProfileUpdate, error) {
	var upd domain.ProfileUpdate
	fields := map[string]string{}

	name := func(field string, v *string) *string {
		if v == nil {
			return nil
		}
		s := strings.TrimSpace(*v)
		switch {
		case s == "":
			fields[field] = "must not be blank"
		case len([]rune(s)) > 100:
			fields[field] = "must be at most 100 characters"
		}
		return &s
	}
	upd.FirstName = name("firstName", in.FirstName)
	upd.LastName = name("lastName", in.LastName)
	upd.Phone = in.Phone
	upd.Address = in.Address
	upd.ProfilePicture = in.ProfilePicture

	if in.Gender != nil {
		g, err := domain.ParseGender(*in.Gender)
		if err != nil {
			fields["gender"] = "must be one of MALE, FEMALE, OTHER, PREFER_NOT_TO_SAY"
		} else {
			upd.Gender = &g
		}
	}
	if in.DateOfBirth != nil {
		dob, err := time.Parse(domain.DateLayout, *in.DateOfBirth)
		if err != nil {
			fields["dateOfBirth"] = "must be a date in YYYY-MM-DD format"
		} else {
			upd.DateOfBirth = &dob
		}
	}

	if len(fields) > 0 {
		return upd, &ValidationError{Fields: fields}
	}
	return upd, nil
}

func (s *AuthService) GetProfile(ctx context.Context, id *domain.Identity) (*domain.Profile, error) {
	if id == nil {
		return nil, ErrInvalidToken
	}
	p, err := s.Store.GetProfile(ctx, id.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		logging.FromContext(ctx).Error("get_profile_failed", "user_id", id.ID, "error", err)
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, id *domain.Identity, in ProfileInput) (*domain.Profile, error) {
	if id == nil {
		return nil, ErrInvalidToken
	}
	l := logging.FromContext(ctx).With("svc", "auth.update_profile", "user_id", id.ID)

	upd, err := in.toUpdate()
	if err != nil {
		return nil, err
	}
	p, err := s.Store.UpdateProfile(ctx, id.ID, upd)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		l.Error("update_profile_failed", "error", err)
		return nil, fmt.Errorf("update profile: %w", err)
	}
	l.Info("profile_updated")
	return p, nil
}

// ListRoles returns the role catalogue with its permissions.
func (s *AuthService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.Store.ListRoles(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("list_roles_failed", "error", err)
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}
