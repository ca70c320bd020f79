package attendance

import "errors"

var (
	// ErrNotFound is returned by stores when an entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating an entity whose identifier
	// is taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrDuplicateRecord is returned by a Ledger when a record for the same
	// student, course and day was committed first.
	ErrDuplicateRecord = errors.New("attendance already recorded for this day")
)

// Reason explains why a submission was rejected. Its text is safe to show to
// clients.
type Reason string

const (
	ReasonNotEnrolled        Reason = "not enrolled"
	ReasonCourseNotFound     Reason = "course not found"
	ReasonAlreadyMarked      Reason = "already marked today"
	ReasonNotRegistered      Reason = "not registered"
	ReasonVerificationFailed Reason = "verification failed"
)

// Rejection is the expected, user-recoverable outcome of a submission that
// failed a policy or verification gate. Err keeps server-side detail.
type Rejection struct {
	Reason Reason
	Err    error
}

func (r *Rejection) Error() string { return string(r.Reason) }

func (r *Rejection) Unwrap() error { return r.Err }

func reject(reason Reason, err error) error {
	return &Rejection{Reason: reason, Err: err}
}

// ReasonOf returns the rejection reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}
