package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Role struct {
	Name        string
	Permissions []string
}

// Identity is the read-only view of an account the auth core works on.
type Identity struct {
	ID                uuid.UUID
	Email             string
	Status            Status
	Roles             []Role
	PasswordChangedAt *time.Time
}

// Account is an Identity plus the stored credential.
type Account struct {
	Identity
	PasswordHash string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
