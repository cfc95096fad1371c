package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rca-academy/school_mis/pkg/logging"
	"github.com/rca-academy/school_mis/services/auth/internal/domain"
	"github.com/rca-academy/school_mis/services/auth/internal/notify"
	"github.com/rca-academy/school_mis/services/auth/internal/repo"
)

type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Role        string
	Phone       string
	Address     string
	DateOfBirth string
	Gender      string
}

func (in RegisterInput) validate() (*domain.ProfileUpdate, error) {
	fields := map[string]string{}
	if domain.NormalizeEmail(in.Email) == "" {
		fields["email"] = "is required"
	}
	if strings.TrimSpace(in.FirstName) == "" {
		fields["firstName"] = "is required"
	}
	if strings.TrimSpace(in.LastName) == "" {
		fields["lastName"] = "is required"
	}
	if strings.TrimSpace(in.Role) == "" {
		fields["role"] = "is required"
	}
	if err := CheckPasswordPolicy("password", in.Password); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			fields["password"] = ve.Fields["password"]
		}
	}

	first, last := strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName)
	phone, address := strings.TrimSpace(in.Phone), strings.TrimSpace(in.Address)
	upd := &domain.ProfileUpdate{FirstName: &first, LastName: &last}
	if phone != "" {
		upd.Phone = &phone
	}
	if address != "" {
		upd.Address = &address
	}
	if in.Gender != "" {
		g, err := domain.ParseGender(in.Gender)
		if err != nil {
			fields["gender"] = "must be one of MALE, FEMALE, OTHER, PREFER_NOT_TO_SAY"
		} else {
			upd.Gender = &g
		}
	}
	if in.DateOfBirth != "" {
		dob, err := time.Parse(domain.DateLayout, in.DateOfBirth)
		if err != nil {
			fields["dateOfBirth"] = "must be a date in YYYY-MM-DD format"
		} else {
			upd.DateOfBirth = &dob
		}
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return upd, nil
}

// Register creates an ACTIVE account with one self-assignable role and logs
// it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := domain.NormalizeEmail(in.Email)
	l := logging.FromContext(ctx).With("svc", "auth.register", "email", email)

	profile, err := in.validate()
	if err != nil {
		l.Warn("register_failed", "reason", err.Error())
		return nil, err
	}

	role := strings.ToUpper(strings.TrimSpace(in.Role))
	if !slices.Contains(s.Settings.SelfRegistrationRoles, role) {
		l.Warn("register_failed", "reason", "role not self-assignable", "role", role)
		return nil, invalidField("role", "cannot be self-assigned")
	}
	if _, err := s.Store.FindRoleByName(ctx, role); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, invalidField("role", "does not exist")
		}
		l.Error("register_failed", "error", err)
		return nil, fmt.Errorf("find role: %w", err)
	}

	pwHash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		l.Error("register_failed", "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	acc, err := s.Store.CreateUser(ctx, domain.NewAccount{
		Email:        email,
		PasswordHash: pwHash,
		Status:       domain.StatusActive,
		RoleNames:    []string{role},
		Profile:      *profile,
	})
	switch {
	case errors.Is(err, repo.ErrUserAlreadyExist):
		l.Warn("register_failed", "reason", "email taken")
		return nil, ErrConflict
	case errors.Is(err, repo.ErrRoleNotFound):
		return nil, invalidField("role", "does not exist")
	case err != nil:
		l.Error("register_failed", "error", err)
		return nil, fmt.Errorf("create account: %w", err)
	}

	res, err := s.startSession(ctx, &acc.Identity)
	if err != nil {
		l.Error("register_failed", "error", err)
		return nil, err
	}

	l.Info("register_successful", "user_id", acc.ID, "role", role)
	s.publish(ctx, s.Settings.UserEventsTopic, notify.EventUserRegistered, acc.Email, notify.UserEvent{
		UserID: acc.ID.String(),
		Email:  acc.Email,
		Roles:  res.Roles,
	})
	return res, nil
}
