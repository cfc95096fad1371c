package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID                uuid.UUID    `gorm:"type:varchar(36);primaryKey"        json:"id"`
	Email             string       `gorm:"size:255;uniqueIndex;not null"      json:"email"`
	PasswordHash      string       `gorm:"not null"                           json:"-"`
	Status            string       `gorm:"size:32;not null;default:ACTIVE"    json:"status"`
	PasswordChangedAt *time.Time   `                                          json:"password_changed_at,omitempty"`
	Roles             []Role       `gorm:"many2many:user_roles;"              json:"roles"`
	Profile           *UserProfile `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"profile,omitempty"`
	CreatedAt         time.Time    `                                          json:"created_at"`
	UpdatedAt         time.Time    `                                          json:"updated_at"`
}

type Role struct {
	ID          uint     `gorm:"primaryKey"                json:"id"`
	Name        string   `gorm:"size:64;uniqueIndex;not null" json:"name"`
	Description string   `gorm:"size:255"                  json:"description"`
	Permissions []string `gorm:"serializer:json"           json:"permissions"`
}

type UserProfile struct {
	ID             uint       `gorm:"primaryKey"                        json:"id"`
	UserID         uuid.UUID  `gorm:"type:varchar(36);uniqueIndex;not null" json:"user_id"`
	FirstName      string     `gorm:"size:100"                          json:"first_name"`
	LastName       string     `gorm:"size:100"                          json:"last_name"`
	Phone          string     `gorm:"size:32"                           json:"phone"`
	Address        string     `gorm:"size:255"                          json:"address"`
	ProfilePicture string     `gorm:"size:512"                          json:"profile_picture"`
	DateOfBirth    *time.Time `                                         json:"date_of_birth,omitempty"`
	Gender         string     `gorm:"size:32"                           json:"gender"`
	CreatedAt      time.Time  `                                         json:"created_at"`
	UpdatedAt      time.Time  `                                         json:"updated_at"`
}

// RefreshToken is one issued refresh token. Tokens minted by the same login
// share SessionID; rotation links them through ReplacedBy.
type RefreshToken struct {
	ID         uint       `gorm:"primaryKey"                      json:"id"`
	JTI        string     `gorm:"size:64;uniqueIndex;not null"    json:"jti"`
	TokenHash  string     `gorm:"size:64;uniqueIndex;not null"    json:"-"`
	UserID     uuid.UUID  `gorm:"type:varchar(36);index;not null" json:"user_id"`
	SessionID  string     `gorm:"size:64;index;not null"          json:"session_id"`
	ExpiresAt  time.Time  `gorm:"not null"                        json:"expires_at"`
	Revoked    bool       `gorm:"not null;default:false"          json:"revoked"`
	RevokedAt  *time.Time `                                       json:"revoked_at,omitempty"`
	ReplacedBy string     `gorm:"size:64"                         json:"replaced_by,omitempty"`
	CreatedAt  time.Time  `                                       json:"created_at"`
}

// OTPRecord backs one password-reset attempt. Code and token are stored hashed.
type OTPRecord struct {
	ID            uint       `gorm:"primaryKey"                   json:"id"`
	Email         string     `gorm:"size:255;index;not null"      json:"email"`
	CodeHash      string     `gorm:"size:64;not null"             json:"-"`
	TokenHash     string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	ExpiresAt     time.Time  `gorm:"not null"                     json:"expires_at"`
	Attempts      int        `gorm:"not null;default:0"           json:"attempts"`
	VerifiedAt    *time.Time `                                    json:"verified_at,omitempty"`
	UsedAt        *time.Time `                                    json:"used_at,omitempty"`
	InvalidatedAt *time.Time `                                    json:"invalidated_at,omitempty"`
	CreatedAt     time.Time  `                                    json:"created_at"`
}

// RevokedToken is a denylisted access token jti, kept until the token would
// have expired anyway.
type RevokedToken struct {
	JTI       string    `gorm:"size:64;primaryKey" json:"jti"`
	ExpiresAt time.Time `gorm:"index;not null"     json:"expires_at"`
	CreatedAt time.Time `                          json:"created_at"`
}

func All() []any {
	return []any{&Role{}, &User{}, &UserProfile{}, &RefreshToken{}, &OTPRecord{}, &RevokedToken{}}
}
