// Package notify delivers late-arrival notices. Delivery is best effort:
// callers log failures and never let them affect a committed attendance
// record.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LateArrival describes a committed attendance record classified as late.
type LateArrival struct {
	RecordID     string
	StudentID    string
	StudentName  string
	StudentEmail string
	CourseCode   string
	CourseName   string
	LateMinutes  int
	Timestamp    time.Time
}

// Sink receives late-arrival notices.
type Sink interface {
	NotifyLate(ctx context.Context, arrival LateArrival) error
}

// Message renders the human readable text shared by every sink.
func (a LateArrival) Message() string {
	course := a.CourseCode
	if a.CourseName != "" {
		course = fmt.Sprintf("%s (%s)", a.CourseCode, a.CourseName)
	}
	return fmt.Sprintf("You were marked late for %s by %d minutes at %s.",
		course, a.LateMinutes, a.Timestamp.Format("15:04"))
}

// Multi fans a notice out to every sink and joins their errors.
type Multi []Sink

func (m Multi) NotifyLate(ctx context.Context, arrival LateArrival) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.NotifyLate(ctx, arrival); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
