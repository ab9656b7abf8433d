// Package social holds what the social graph engines share: the error
// taxonomy, the acting-user checks, and the lock and row-lock helpers.
package social

import (
	"errors"
	"strings"
)

var (
	// ErrSelfReference means an action targets the acting user.
	ErrSelfReference = errors.New("action targets the acting user")
	// ErrNotAuthorized means a role or ownership check failed.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrNotFound means a referenced entity is absent.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists means the entity being created already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict means the entity is not in a state that allows the action.
	ErrConflict = errors.New("conflict")
	// ErrBlocked means a blacklist entry vetoes the action.
	ErrBlocked = errors.New("blocked")
	// ErrInvalidArgument means an input failed validation.
	ErrInvalidArgument = errors.New("invalid argument")
)

// IsUniqueViolation detects duplicate-key errors from the supported drivers.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
