package service

import (
	"strings"
	"unicode"
)

const (
	MinPasswordLen = 8
	// bcrypt ignores everything past 72 bytes
	MaxPasswordBytes = 72
)

// CheckPasswordPolicy returns a *ValidationError for field when password is
// too weak.
func CheckPasswordPolicy(field, password string) error {
	if len([]rune(password)) < MinPasswordLen {
		return invalidField(field, "must be at least 8 characters")
	}
	if len(password) > MaxPasswordBytes {
		return invalidField(field, "must be at most 72 bytes")
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsSpace(r):
		default:
			special = true
		}
	}

	var missing []string
	if !upper {
		missing = append(missing, "an uppercase letter")
	}
	if !lower {
		missing = append(missing, "a lowercase letter")
	}
	if !digit {
		missing = append(missing, "a digit")
	}
	if !special {
		missing = append(missing, "a special character")
	}
	if len(missing) > 0 {
		return invalidField(field, "must contain "+strings.Join(missing, ", "))
	}
	return nil
}
