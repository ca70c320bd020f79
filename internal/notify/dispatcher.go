package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Recorder counts delivery outcomes.
type Recorder interface {
	RecordNotification(result string)
}

// Dispatcher delivers notices in the background so a slow sink never delays
// the attendance response. Errors are logged and dropped.
type Dispatcher struct {
	next     Sink
	timeout  time.Duration
	logger   *zap.Logger
	recorder Recorder
	wg       sync.WaitGroup
}

// NewDispatcher wraps next. recorder may be nil.
func NewDispatcher(next Sink, timeout time.Duration, logger *zap.Logger, recorder Recorder) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		next:     next,
		timeout:  timeout,
		logger:   logger.Named("notify"),
		recorder: recorder,
	}
}

// NotifyLate schedules delivery and returns immediately. The request
// context's cancellation is detached; its values are kept.
func (d *Dispatcher) NotifyLate(ctx context.Context, arrival LateArrival) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		result := "sent"
		if err := d.next.NotifyLate(ctx, arrival); err != nil {
			result = "failed"
			d.logger.Warn("late notification failed",
				zap.Error(err),
				zap.String("student_id", arrival.StudentID),
				zap.String("course_code", arrival.CourseCode),
				zap.String("attendance_id", arrival.RecordID),
			)
		}
		if d.recorder != nil {
			d.recorder.RecordNotification(result)
		}
	}()
	return nil
}

// Wait blocks until every scheduled delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
