// Package usecase implements the application flows behind the HTTP API:
// check-in, face registration, admin management, login and notifications.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/face-attendance/internal/attendance"
	"github.com/example/face-attendance/internal/cache"
	"github.com/example/face-attendance/internal/faceoracle"
	"github.com/example/face-attendance/internal/logging"
)

const (
	recordCachePrefix = "attendance:record:"
	recordCacheTTL    = 10 * time.Minute

	// DashboardRecentLimit caps the records returned with a dashboard.
	DashboardRecentLimit = 50
)

// StudentStore is the student persistence used by the attendance flows.
type StudentStore interface {
	FindStudent(ctx context.Context, id string) (*attendance.Student, error)
	SaveFaceReference(ctx context.Context, studentID string, ref faceoracle.Reference) error
}

// RecordStore reads committed attendance records.
type RecordStore interface {
	FindRecord(ctx context.Context, id string) (*attendance.Record, error)
	ListByStudent(ctx context.Context, studentID string) ([]*attendance.Record, error)
}

// Marker is the decision engine.
type Marker interface {
	Mark(ctx context.Context, sub attendance.Submission) (*attendance.Record, error)
}

// AttendanceStore combines the stores AttendanceUseCase reads.
type AttendanceStore interface {
	StudentStore
	RecordStore
	attendance.CourseFinder
}

// MarkRequest is a check-in carrying either an embedding or an image.
type MarkRequest struct {
	CourseCode string
	Embedding  []float64
	Image      []byte
	Location   *attendance.Location
	Notes      string
}

// Dashboard is a student's profile with their latest records.
type Dashboard struct {
	Student          *attendance.Student
	RecentAttendance []*attendance.Record
}

// AttendanceUseCase runs check-ins and face registration for students.
type AttendanceUseCase struct {
	store        AttendanceStore
	engine       Marker
	enroller     faceoracle.Enroller
	cache        cache.Cache
	embeddingDim int
	logger       *zap.Logger
}

// NewAttendanceUseCase builds the use case. enroller may be nil when no remote
// provider is configured; embeddingDim of 0 accepts any vector length.
func NewAttendanceUseCase(store AttendanceStore, engine Marker, enroller faceoracle.Enroller, c cache.Cache, embeddingDim int, logger *zap.Logger) *AttendanceUseCase {
	if c == nil {
		c = cache.Noop{}
	}
	return &AttendanceUseCase{
		store:        store,
		engine:       engine,
		enroller:     enroller,
		cache:        c,
		embeddingDim: embeddingDim,
		logger:       logger.Named("attendance_usecase"),
	}
}

// Mark submits a check-in for studentID.
func (uc *AttendanceUseCase) Mark(ctx context.Context, studentID string, req MarkRequest) (*attendance.Record, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.mark_attendance", requestID)

	sample := faceoracle.Sample{Image: req.Image}
	if len(req.Image) == 0 {
		if err := uc.checkEmbedding(req.Embedding); err != nil {
			return nil, err
		}
		sample = faceoracle.Sample{Embedding: req.Embedding}
	}

	student, err := uc.loadStudent(ctx, requestID, studentID)
	if err != nil {
		return nil, err
	}

	rec, err := uc.engine.Mark(ctx, attendance.Submission{
		RequestID:  requestID,
		Student:    student,
		CourseCode: req.CourseCode,
		Sample:     sample,
		Location:   req.Location,
		Notes:      req.Notes,
	})
	if err != nil {
		if reason, ok := attendance.ReasonOf(err); ok {
			opLogger.Info("attendance rejected", zap.String("student_id", studentID), zap.String("reason", string(reason)))
		} else {
			opLogger.Error("attendance failed", zap.Error(err))
		}
		return nil, err
	}

	opLogger.Info("attendance accepted",
		zap.String("student_id", studentID),
		zap.String("course_code", rec.CourseCode),
		zap.String("status", string(rec.Status)),
		zap.Int("late_minutes", rec.LateMinutes),
	)
	uc.cacheRecord(ctx, opLogger, rec)
	return rec, nil
}

// RegisterEmbedding stores vec as the student's face reference.
func (uc *AttendanceUseCase) RegisterEmbedding(ctx context.Context, studentID string, vec []float64) error {
	if err := uc.checkEmbedding(vec); err != nil {
		return err
	}
	if _, err := uc.loadStudent(ctx, "", studentID); err != nil {
		return err
	}
	return uc.saveReference(ctx, studentID, faceoracle.EmbeddingReference(vec))
}

// RegisterImage enrolls image with the remote provider and stores the
// returned token as the student's face reference.
func (uc *AttendanceUseCase) RegisterImage(ctx context.Context, studentID string, image []byte) error {
	if uc.enroller == nil {
		return faceoracle.NewVerificationError("remote", faceoracle.ErrProviderDisabled)
	}
	if _, err := uc.loadStudent(ctx, "", studentID); err != nil {
		return err
	}

	token, err := uc.enroller.Enroll(ctx, image)
	if err != nil {
		uc.logger.Warn("face enrollment failed", zap.String("student_id", studentID), zap.Error(err))
		return faceoracle.NewVerificationError("remote", err)
	}
	return uc.saveReference(ctx, studentID, faceoracle.TokenReference(token))
}

// History returns the student's records, newest first.
func (uc *AttendanceUseCase) History(ctx context.Context, studentID string) ([]*attendance.Record, error) {
	return uc.store.ListByStudent(ctx, studentID)
}

// Dashboard returns the student with up to DashboardRecentLimit records,
// newest first.
func (uc *AttendanceUseCase) Dashboard(ctx context.Context, studentID string) (*Dashboard, error) {
	student, err := uc.loadStudent(ctx, "", studentID)
	if err != nil {
		return nil, err
	}
	records, err := uc.store.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(records) > DashboardRecentLimit {
		records = records[:DashboardRecentLimit]
	}
	return &Dashboard{Student: student, RecentAttendance: records}, nil
}

// GetRecord returns one of the student's records, consulting the cache
// before the store.
func (uc *AttendanceUseCase) GetRecord(ctx context.Context, studentID, recordID string) (*attendance.Record, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_record", recordID)

	rec, err := uc.lookupCached(ctx, recordID)
	switch {
	case err == nil:
	case cache.IsMiss(err):
		rec = nil
	default:
		opLogger.Warn("failed to read cache", zap.Error(err))
		rec = nil
	}

	if rec == nil {
		rec, err = uc.store.FindRecord(ctx, recordID)
		if err != nil {
			return nil, err
		}
		uc.cacheRecord(ctx, opLogger, rec)
	}

	if rec.StudentID != studentID {
		return nil, attendance.ErrNotFound
	}
	return rec, nil
}

// Courses returns the active courses the student is enrolled in.
func (uc *AttendanceUseCase) Courses(ctx context.Context, studentID string) ([]*attendance.Course, error) {
	student, err := uc.loadStudent(ctx, "", studentID)
	if err != nil {
		return nil, err
	}
	out := make([]*attendance.Course, 0, len(student.Courses))
	for _, code := range student.Courses {
		course, err := uc.store.FindCourse(ctx, code)
		if errors.Is(err, attendance.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if course.Active {
			out = append(out, course)
		}
	}
	return out, nil
}

func (uc *AttendanceUseCase) loadStudent(ctx context.Context, requestID, studentID string) (*attendance.Student, error) {
	student, err := uc.store.FindStudent(ctx, studentID)
	if errors.Is(err, attendance.ErrNotFound) {
		return nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, logging.NewOperationError("usecase.load_student", requestID, err)
	}
	if !student.Active {
		return nil, ErrStudentNotFound
	}
	return student, nil
}

func (uc *AttendanceUseCase) saveReference(ctx context.Context, studentID string, ref faceoracle.Reference) error {
	if err := uc.store.SaveFaceReference(ctx, studentID, ref); err != nil {
		if errors.Is(err, attendance.ErrNotFound) {
			return ErrStudentNotFound
		}
		return err
	}
	uc.logger.Info("face reference registered", zap.String("student_id", studentID), zap.String("kind", string(ref.Kind())))
	return nil
}

func (uc *AttendanceUseCase) checkEmbedding(vec []float64) error {
	if len(vec) == 0 {
		return invalid("faceData", "must not be empty")
	}
	if uc.embeddingDim > 0 && len(vec) != uc.embeddingDim {
		return invalid("faceData", "must have %d values, got %d", uc.embeddingDim, len(vec))
	}
	return nil
}

type cachedRecord struct {
	ID              string               `json:"id"`
	StudentID       string               `json:"student_id"`
	CourseCode      string               `json:"course_code"`
	Date            string               `json:"date"`
	Status          attendance.Status    `json:"status"`
	ConfidenceScore float64              `json:"confidence_score"`
	Timestamp       time.Time            `json:"timestamp"`
	IsLate          bool                 `json:"is_late"`
	LateMinutes     int                  `json:"late_minutes"`
	Location        *attendance.Location `json:"location,omitempty"`
	Notes           string               `json:"notes,omitempty"`
}

func (uc *AttendanceUseCase) cacheRecord(ctx context.Context, opLogger *zap.Logger, rec *attendance.Record) {
	serialized, err := json.Marshal(cachedRecord(*rec))
	if err != nil {
		opLogger.Error("failed to serialize record", zap.Error(err))
		return
	}
	if err := uc.cache.Set(ctx, recordCachePrefix+rec.ID, string(serialized), recordCacheTTL); err != nil {
		opLogger.Warn("failed to cache record", zap.Error(err))
	}
}

func (uc *AttendanceUseCase) lookupCached(ctx context.Context, recordID string) (*attendance.Record, error) {
	raw, err := uc.cache.Get(ctx, recordCachePrefix+recordID)
	if err != nil {
		return nil, err
	}
	var payload cachedRecord
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, err
	}
	rec := attendance.Record(payload)
	return &rec, nil
}
