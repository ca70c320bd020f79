package usecase

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned for unknown accounts and wrong
	// passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrStudentNotFound is returned when the authenticated student no longer
	// exists or was deactivated.
	ErrStudentNotFound = errors.New("student not found")
)

// ValidationError reports input the use case refused before touching state.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
