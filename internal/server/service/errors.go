package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for the service layer.
var (
	ErrValidation       = errors.New("invalid upload")
	ErrNotFound         = errors.New("file not found")
	ErrPasswordRequired = errors.New("password required")
	ErrDenied           = errors.New("invalid password")
	ErrFileTooLarge     = errors.New("file exceeds maximum allowed size")
)

// ValidationError describes a rejected upload field. It matches
// ErrValidation.
type ValidationError struct {
	Field string
	Cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Cause)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
