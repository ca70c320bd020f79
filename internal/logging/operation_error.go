package logging

import (
	"errors"
	"fmt"
)

// OperationError annotates an infrastructure failure with the operation that
// produced it and the request it belonged to.
type OperationError struct {
	Operation string
	RequestID string
	Err       error
}

func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s (request_id=%s): %v", e.Operation, e.RequestID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps err; a nil err stays nil. An err that already
// carries an OperationError for the same operation is returned unchanged.
func NewOperationError(operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	var existing *OperationError
	if errors.As(err, &existing) && existing.Operation == operation {
		return err
	}
	return &OperationError{Operation: operation, RequestID: requestID, Err: err}
}

// OperationOf reports the outermost operation recorded on err, or "" when
// err was never wrapped.
func OperationOf(err error) string {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Operation
	}
	return ""
}
