package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	Access  TokenType = "ACCESS"
	Refresh TokenType = "REFRESH"
)

func (t TokenType) Valid() bool {
	return t == Access || t == Refresh
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrWrongType    = errors.New("unexpected token type")
	ErrWeakSecret   = errors.New("signing secret must be at least 32 bytes")
)

// Claims is the payload of every token the codec issues.
// Subject is the account email, SessionID ties an access/refresh pair to one login.
type Claims struct {
	Type      TokenType `json:"type"`
	SessionID string    `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Expiry() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}

func (c *Claims) Issued() time.Time {
	if c.RegisteredClaims.IssuedAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.IssuedAt.Time
}
