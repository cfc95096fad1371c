package domain

import (
	"time"

	"github.com/google/uuid"
)

// RefreshRecord is the persisted side of an issued refresh token.
type RefreshRecord struct {
	JTI        string
	TokenHash  string
	UserID     uuid.UUID
	SessionID  string
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy string
}

// ResetRecord is one password recovery attempt.
type ResetRecord struct {
	ID            uint
	Email         string
	CodeHash      string
	TokenHash     string
	ExpiresAt     time.Time
	Attempts      int
	VerifiedAt    *time.Time
	UsedAt        *time.Time
	InvalidatedAt *time.Time
}

// NewAccount is the input for creating an account with its profile.
type NewAccount struct {
	Email        string
	PasswordHash string
	Status       Status
	RoleNames    []string
	Profile      ProfileUpdate
}
