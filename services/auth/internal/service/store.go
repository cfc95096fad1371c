package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rca-academy/school_mis/services/auth/internal/domain"
)

type AccountStore interface {
	FindUserByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	CreateUser(ctx context.Context, in domain.NewAccount) (*domain.Account, error)
	FindRoleByName(ctx context.Context, name string) (*domain.Role, error)
	ListRoles(ctx context.Context) ([]domain.Role, error)
	SetPassword(ctx context.Context, id uuid.UUID, passwordHash string, changedAt time.Time) error
	GetProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, upd domain.ProfileUpdate) (*domain.Profile, error)
}

type SessionStore interface {
	SaveRefreshToken(ctx context.Context, rec domain.RefreshRecord) error
	FindRefreshToken(ctx context.Context, jti string) (*domain.RefreshRecord, error)
	RotateRefreshToken(ctx context.Context, oldJTI string, next domain.RefreshRecord) error
	RevokeSession(ctx context.Context, sessionID string) (int64, error)
}

type RecoveryStore interface {
	CreateResetRecord(ctx context.Context, rec domain.ResetRecord) error
	LatestPendingReset(ctx context.Context, email string, now time.Time, maxAttempts int) (*domain.ResetRecord, error)
	RecordOTPFailure(ctx context.Context, id uint, maxAttempts int) (bool, error)
	MarkOTPVerified(ctx context.Context, id uint, now time.Time, maxAttempts int) (bool, error)
	CompleteReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*domain.Identity, error)
}

// Store is everything the auth service persists. repo.GormRepo implements it.
type Store interface {
	AccountStore
	SessionStore
	RecoveryStore
}
