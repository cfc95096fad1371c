package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrAuthenticationFailed = errors.New("invalid email or password")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrInvalidResetToken    = errors.New("invalid or expired reset token")
	ErrValidation           = errors.New("validation failed")
	ErrConflict             = errors.New("account already exists")
	ErrRateLimited          = errors.New("too many attempts")
)

// ValidationError lists offending fields. errors.Is(err, ErrValidation) holds.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalidField(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
