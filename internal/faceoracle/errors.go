package faceoracle

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoFace             = errors.New("no face detected")
	ErrMalformedReference = errors.New("malformed face reference")
	ErrMalformedResponse  = errors.New("malformed provider response")
	ErrUnsupportedSample  = errors.New("sample does not match reference kind")
	ErrProviderDisabled   = errors.New("face provider not configured")
)

// VerificationError reports that a similarity could not be produced. The
// detail stays server side; clients only ever see "verification failed".
type VerificationError struct {
	Strategy string
	Err      error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed (%s): %v", e.Strategy, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// NewVerificationError wraps err for strategy. Context deadlines are kept so
// callers can still tell a timeout apart with errors.Is.
func NewVerificationError(strategy string, err error) error {
	if err == nil {
		return nil
	}
	var existing *VerificationError
	if errors.As(err, &existing) {
		return err
	}
	return &VerificationError{Strategy: strategy, Err: err}
}

// IsTimeout reports whether a verification failed because it ran out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
