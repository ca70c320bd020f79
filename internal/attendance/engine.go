package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/face-attendance/internal/clock"
	"github.com/example/face-attendance/internal/faceoracle"
	"github.com/example/face-attendance/internal/logging"
	"github.com/example/face-attendance/internal/notify"
)

// DefaultOracleTimeout bounds a single similarity check.
const DefaultOracleTimeout = 15 * time.Second

// CourseFinder resolves a course by normalized code. It returns ErrNotFound
// for unknown codes.
type CourseFinder interface {
	FindCourse(ctx context.Context, code string) (*Course, error)
}

// Ledger is the attendance record store. Commit must fail with
// ErrDuplicateRecord when a record with the same DayKey already exists; that
// check is the only serialization point between concurrent submissions.
type Ledger interface {
	Exists(ctx context.Context, key DayKey) (bool, error)
	Commit(ctx context.Context, rec *Record) error
}

// Recorder counts decisions by outcome and reason.
type Recorder interface {
	RecordDecision(outcome, reason string)
}

// Submission is one check-in attempt.
type Submission struct {
	RequestID  string
	Student    *Student
	CourseCode string
	Sample     faceoracle.Sample
	Location   *Location
	Notes      string
}

// Engine decides whether a check-in is accepted and commits it.
type Engine struct {
	courses       CourseFinder
	ledger        Ledger
	oracle        faceoracle.Oracle
	notifier      notify.Sink
	clock         clock.Clock
	location      *time.Location
	policy        Policy
	oracleTimeout time.Duration
	recorder      Recorder
	logger        *zap.Logger
}

// NewEngine builds an Engine. notifier may be nil.
func NewEngine(courses CourseFinder, ledger Ledger, oracle faceoracle.Oracle, notifier notify.Sink, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		courses:       courses,
		ledger:        ledger,
		oracle:        oracle,
		notifier:      notifier,
		clock:         clock.Real(),
		location:      time.Local,
		policy:        DefaultPolicy(),
		oracleTimeout: DefaultOracleTimeout,
		logger:        logger.Named("attendance_engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the engine's current time in the server location.
func (e *Engine) Now() time.Time {
	return e.clock.Now().In(e.location)
}

// DateKey returns the calendar date key for t in the server location.
func (e *Engine) DateKey(t time.Time) string {
	return t.In(e.location).Format(DateLayout)
}

// Mark runs a submission through the gates in order: enrollment, course,
// duplicate, identity. The oracle is only reached when every cheaper gate
// passed. Rejections are returned as *Rejection; anything else is an
// infrastructure failure.
func (e *Engine) Mark(ctx context.Context, sub Submission) (*Record, error) {
	rec, err := e.mark(ctx, sub)
	e.record(rec, err)
	return rec, err
}

func (e *Engine) mark(ctx context.Context, sub Submission) (*Record, error) {
	opLogger := logging.WithOperation(e.logger, "attendance.mark", sub.RequestID)
	student := sub.Student
	code := NormalizeCourseCode(sub.CourseCode)
	now := e.Now()

	if !student.EnrolledIn(code) {
		return nil, reject(ReasonNotEnrolled, nil)
	}

	course, err := e.courses.FindCourse(ctx, code)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, reject(ReasonCourseNotFound, err)
	case err != nil:
		return nil, logging.NewOperationError("attendance.find_course", sub.RequestID, err)
	case !course.Active:
		return nil, reject(ReasonCourseNotFound, nil)
	}

	key := DayKey{StudentID: student.ID, CourseCode: code, Date: e.DateKey(now)}
	exists, err := e.ledger.Exists(ctx, key)
	if err != nil {
		return nil, logging.NewOperationError("attendance.ledger_exists", sub.RequestID, err)
	}
	if exists {
		return nil, reject(ReasonAlreadyMarked, nil)
	}

	if !student.Reference.Registered() {
		return nil, reject(ReasonNotRegistered, nil)
	}

	score, err := e.verify(ctx, student.Reference, sub.Sample)
	if err != nil {
		opLogger.Warn("face verification error",
			zap.Error(err),
			zap.String("student_id", student.ID),
			zap.String("reference_kind", string(student.Reference.Kind())),
		)
		return nil, reject(ReasonVerificationFailed, err)
	}
	if !e.policy.Accepts(score) {
		opLogger.Info("face similarity below threshold",
			zap.String("student_id", student.ID),
			zap.Float64("similarity", score),
			zap.Float64("threshold", e.policy.Threshold),
		)
		return nil, reject(ReasonVerificationFailed, nil)
	}

	class := e.policy.Classify(now)
	rec := &Record{
		ID:              uuid.NewString(),
		StudentID:       student.ID,
		CourseCode:      code,
		Date:            key.Date,
		Status:          class.Status,
		ConfidenceScore: score,
		Timestamp:       now,
		IsLate:          class.IsLate,
		LateMinutes:     class.LateMinutes,
		Location:        sub.Location,
		Notes:           sub.Notes,
	}

	if err := e.ledger.Commit(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateRecord) {
			opLogger.Info("lost commit race", zap.String("student_id", student.ID), zap.String("course_code", code))
			return nil, reject(ReasonAlreadyMarked, err)
		}
		return nil, logging.NewOperationError("attendance.ledger_commit", sub.RequestID, err)
	}

	if rec.IsLate {
		e.notifyLate(ctx, opLogger, student, course, rec)
	}
	return rec, nil
}

func (e *Engine) verify(ctx context.Context, ref faceoracle.Reference, sample faceoracle.Sample) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	defer cancel()

	score, err := e.oracle.Verify(ctx, ref, sample)
	if err != nil {
		return 0, faceoracle.NewVerificationError("oracle", err)
	}
	if score < 0 || score > 1 {
		return 0, faceoracle.NewVerificationError("oracle", faceoracle.ErrMalformedResponse)
	}
	return score, nil
}

func (e *Engine) notifyLate(ctx context.Context, opLogger *zap.Logger, student *Student, course *Course, rec *Record) {
	if e.notifier == nil {
		return
	}
	err := e.notifier.NotifyLate(ctx, notify.LateArrival{
		RecordID:     rec.ID,
		StudentID:    student.ID,
		StudentName:  student.Name,
		StudentEmail: student.Email,
		CourseCode:   rec.CourseCode,
		CourseName:   course.Name,
		LateMinutes:  rec.LateMinutes,
		Timestamp:    rec.Timestamp,
	})
	if err != nil {
		opLogger.Warn("late notification dropped", zap.Error(err), zap.String("attendance_id", rec.ID))
	}
}

func (e *Engine) record(rec *Record, err error) {
	if e.recorder == nil {
		return
	}
	switch {
	case err == nil:
		e.recorder.RecordDecision("accepted", string(rec.Status))
	default:
		if reason, ok := ReasonOf(err); ok {
			e.recorder.RecordDecision("rejected", string(reason))
			return
		}
		e.recorder.RecordDecision("error", "internal")
	}
}
