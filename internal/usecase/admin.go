package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/face-attendance/internal/attendance"
	"github.com/example/face-attendance/internal/clock"
	"github.com/example/face-attendance/internal/faceoracle"
)

// AdminStore is the persistence used by admin management flows.
type AdminStore interface {
	attendance.CourseFinder
	CreateCourse(ctx context.Context, c *attendance.Course) error
	ListCourses(ctx context.Context, activeOnly bool) ([]*attendance.Course, error)
	DeactivateCourse(ctx context.Context, code string) error

	FindStudent(ctx context.Context, id string) (*attendance.Student, error)
	CreateStudent(ctx context.Context, s *attendance.Student) error
	ListStudents(ctx context.Context, activeOnly bool) ([]*attendance.Student, error)
	DeactivateStudent(ctx context.Context, id string) error

	ListByCourseDate(ctx context.Context, courseCode, date string) ([]*attendance.Record, error)
}

// CourseInput describes a course to create.
type CourseInput struct {
	Code        string
	Name        string
	Instructor  string
	Department  string
	Credits     int
	Description string
	Schedule    attendance.Schedule
}

// StudentInput describes a student to create. FaceImage, when set, is
// enrolled with the remote provider before the student is stored.
type StudentInput struct {
	ID        string
	Name      string
	Email     string
	Courses   []string
	FaceImage []byte
}

// AdminUseCase manages courses, students and attendance reports.
type AdminUseCase struct {
	store    AdminStore
	enroller faceoracle.Enroller
	clock    clock.Clock
	logger   *zap.Logger
}

// NewAdminUseCase builds the use case. enroller may be nil when no remote
// provider is configured.
func NewAdminUseCase(store AdminStore, enroller faceoracle.Enroller, clk clock.Clock, logger *zap.Logger) *AdminUseCase {
	if clk == nil {
		clk = clock.Real()
	}
	return &AdminUseCase{store: store, enroller: enroller, clock: clk, logger: logger.Named("admin_usecase")}
}

// CreateCourse adds an active course.
func (uc *AdminUseCase) CreateCourse(ctx context.Context, in CourseInput) (*attendance.Course, error) {
	code := attendance.NormalizeCourseCode(in.Code)
	if code == "" {
		return nil, invalid("courseCode", "is required")
	}
	course := &attendance.Course{
		Code:        code,
		Name:        strings.TrimSpace(in.Name),
		Instructor:  strings.TrimSpace(in.Instructor),
		Department:  strings.TrimSpace(in.Department),
		Credits:     in.Credits,
		Description: in.Description,
		Schedule:    in.Schedule,
		Active:      true,
		CreatedAt:   uc.clock.Now().UTC(),
	}
	if err := uc.store.CreateCourse(ctx, course); err != nil {
		return nil, err
	}
	uc.logger.Info("course created", zap.String("course_code", code))
	return course, nil
}

// ListCourses returns every course, including deactivated ones.
func (uc *AdminUseCase) ListCourses(ctx context.Context) ([]*attendance.Course, error) {
	return uc.store.ListCourses(ctx, false)
}

// DeactivateCourse hides a course from check-ins without deleting history.
func (uc *AdminUseCase) DeactivateCourse(ctx context.Context, code string) error {
	if err := uc.store.DeactivateCourse(ctx, code); err != nil {
		return err
	}
	uc.logger.Info("course deactivated", zap.String("course_code", attendance.NormalizeCourseCode(code)))
	return nil
}

// CreateStudent adds an active student enrolled in existing courses. Without
// a face image the reference is registered later by the student.
func (uc *AdminUseCase) CreateStudent(ctx context.Context, in StudentInput) (*attendance.Student, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil, invalid("studentId", "is required")
	}
	if len(in.FaceImage) > 0 && uc.enroller == nil {
		return nil, faceoracle.NewVerificationError("remote", faceoracle.ErrProviderDisabled)
	}

	seen := make(map[string]struct{}, len(in.Courses))
	courses := make([]string, 0, len(in.Courses))
	for _, c := range in.Courses {
		code := attendance.NormalizeCourseCode(c)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		if _, err := uc.store.FindCourse(ctx, code); err != nil {
			if errors.Is(err, attendance.ErrNotFound) {
				return nil, invalid("enrolledCourses", "unknown course %s", code)
			}
			return nil, err
		}
		seen[code] = struct{}{}
		courses = append(courses, code)
	}

	student := &attendance.Student{
		ID:        id,
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.TrimSpace(in.Email),
		Courses:   courses,
		Active:    true,
		CreatedAt: uc.clock.Now().UTC(),
	}
	if len(in.FaceImage) > 0 {
		ref, err := uc.enroll(ctx, id, in.FaceImage)
		if err != nil {
			return nil, err
		}
		student.Reference = ref
	}
	if err := uc.store.CreateStudent(ctx, student); err != nil {
		return nil, err
	}
	uc.logger.Info("student created",
		zap.String("student_id", id),
		zap.Strings("courses", courses),
		zap.Bool("face_registered", student.Reference.Registered()),
	)
	return student, nil
}

// enroll registers image with the provider. The id is checked first so a
// duplicate student never costs a provider enrollment.
func (uc *AdminUseCase) enroll(ctx context.Context, id string, image []byte) (faceoracle.Reference, error) {
	_, err := uc.store.FindStudent(ctx, id)
	switch {
	case err == nil:
		return faceoracle.Reference{}, attendance.ErrAlreadyExists
	case !errors.Is(err, attendance.ErrNotFound):
		return faceoracle.Reference{}, err
	}
	token, err := uc.enroller.Enroll(ctx, image)
	if err != nil {
		uc.logger.Warn("face enrollment failed", zap.String("student_id", id), zap.Error(err))
		return faceoracle.Reference{}, faceoracle.NewVerificationError("remote", err)
	}
	return faceoracle.TokenReference(token), nil
}

// ListStudents returns the active students. Deactivated students stay in
// storage with their history.
func (uc *AdminUseCase) ListStudents(ctx context.Context) ([]*attendance.Student, error) {
	return uc.store.ListStudents(ctx, true)
}

// DeactivateStudent removes a student from rosters and blocks their login
// and check-ins. Records are kept.
func (uc *AdminUseCase) DeactivateStudent(ctx context.Context, id string) error {
	if err := uc.store.DeactivateStudent(ctx, strings.TrimSpace(id)); err != nil {
		if errors.Is(err, attendance.ErrNotFound) {
			return ErrStudentNotFound
		}
		return err
	}
	uc.logger.Info("student deactivated", zap.String("student_id", id))
	return nil
}

// ListAttendance returns the records of a course, optionally for one date
// (YYYY-MM-DD).
func (uc *AdminUseCase) ListAttendance(ctx context.Context, courseCode, date string) ([]*attendance.Record, error) {
	code := attendance.NormalizeCourseCode(courseCode)
	if code == "" {
		return nil, invalid("courseCode", "is required")
	}
	if date != "" {
		if _, err := time.Parse(attendance.DateLayout, date); err != nil {
			return nil, invalid("date", "must be YYYY-MM-DD")
		}
	}
	return uc.store.ListByCourseDate(ctx, code, date)
}
