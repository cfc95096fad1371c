package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Gender string

const (
	GenderMale           Gender = "MALE"
	GenderFemale         Gender = "FEMALE"
	GenderOther          Gender = "OTHER"
	GenderPreferNotToSay Gender = "PREFER_NOT_TO_SAY"
)

// ParseGender is case-insensitive. Empty input yields an empty Gender.
func ParseGender(s string) (Gender, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	g := Gender(strings.ToUpper(s))
	switch g {
	case GenderMale, GenderFemale, GenderOther, GenderPreferNotToSay:
		return g, nil
	}
	return "", fmt.Errorf("unknown gender %q", s)
}

const DateLayout = "2006-01-02"

type Profile struct {
	ID             uuid.UUID
	Email          string
	FirstName      string
	LastName       string
	Phone          string
	Address        string
	ProfilePicture string
	DateOfBirth    *time.Time
	Gender         Gender
	Roles          []string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// ProfileUpdate carries only the fields the caller wants changed.
type ProfileUpdate struct {
	FirstName      *string
	LastName       *string
	Phone          *string
	Address        *string
	ProfilePicture *string
	DateOfBirth    *time.Time
	Gender         *Gender
}
