package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrPersistence    = errors.New("persistence failure")
	ErrValidation     = errors.New("validation failed")
	ErrInvalidFormat  = fmt.Errorf("%w: invalid display name format", ErrValidation)
	ErrNameTaken      = fmt.Errorf("%w: display name already taken", ErrValidation)
	ErrWeakPassword   = fmt.Errorf("%w: password does not meet requirements", ErrValidation)
	ErrInvalidAvatar  = fmt.Errorf("%w: invalid avatar", ErrValidation)
	ErrInvalidScore   = fmt.Errorf("%w: invalid score value", ErrValidation)
	ErrAuth           = errors.New("invalid credentials")
	ErrUserNotFound   = errors.New("user not found")
	ErrGameNotFound   = errors.New("game not found")
	ErrDoorLocked     = errors.New("door cannot be opened yet")
	ErrInvalidDoor    = fmt.Errorf("%w: invalid door number", ErrValidation)
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalError  = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrGameNotFound)
}

// IsValidationError checks if an error was raised before any write happened
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// Persistence wraps a storage failure so callers can match ErrPersistence
// while keeping the cause.
func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
