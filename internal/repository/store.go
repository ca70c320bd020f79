// Package repository persists students, courses, admins, attendance records
// and notifications. GormStore backs production with Postgres; MemoryStore
// serves tests and single-process deployments.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/face-attendance/internal/attendance"
	"github.com/example/face-attendance/internal/faceoracle"
	"github.com/example/face-attendance/internal/logging"
	"github.com/example/face-attendance/internal/notify"
	"github.com/example/face-attendance/internal/retry"
)

const uniqueViolation = "23505"

// Store is everything the service persists.
type Store interface {
	attendance.Ledger
	attendance.CourseFinder
	notify.Store

	FindRecord(ctx context.Context, id string) (*attendance.Record, error)
	ListByStudent(ctx context.Context, studentID string) ([]*attendance.Record, error)
	ListByCourseDate(ctx context.Context, courseCode, date string) ([]*attendance.Record, error)

	FindStudent(ctx context.Context, id string) (*attendance.Student, error)
	CreateStudent(ctx context.Context, s *attendance.Student) error
	ListStudents(ctx context.Context, activeOnly bool) ([]*attendance.Student, error)
	DeactivateStudent(ctx context.Context, id string) error
	SaveFaceReference(ctx context.Context, studentID string, ref faceoracle.Reference) error

	CreateCourse(ctx context.Context, c *attendance.Course) error
	ListCourses(ctx context.Context, activeOnly bool) ([]*attendance.Course, error)
	DeactivateCourse(ctx context.Context, code string) error

	CreateAdmin(ctx context.Context, a *attendance.Admin) error
	FindAdmin(ctx context.Context, uniqueID string) (*attendance.Admin, error)

	ListNotifications(ctx context.Context, to notify.Recipient) ([]*notify.Notification, error)
	MarkNotificationRead(ctx context.Context, to notify.Recipient, id string) error
}

// Open connects to Postgres and configures the pool. Driver errors are
// translated so unique violations surface as gorm.ErrDuplicatedKey.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, logging.NewOperationError("repository.open", "", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, logging.NewOperationError("repository.open", "", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, logging.NewOperationError("repository.ping", "", err)
	}
	logger.Info("database connected")
	return db, nil
}

// GormStore provides persistence APIs backed by gorm.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a new store instance with the default retry policy.
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	return &GormStore{
		db:     db,
		logger: logger.Named("repository"),
		policy: retry.DefaultPolicy(),
	}
}

// AutoMigrate ensures the schema is available.
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	return s.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return s.db.WithContext(ctx).AutoMigrate(
			&StudentModel{},
			&CourseModel{},
			&AttendanceModel{},
			&AdminModel{},
			&NotificationModel{},
		)
	})
}

// Exists reports whether a record for key is already stored.
func (s *GormStore) Exists(ctx context.Context, key attendance.DayKey) (bool, error) {
	var count int64
	err := s.executeWithRetry(ctx, "repository.exists", key.String(), func() error {
		return s.db.WithContext(ctx).Model(&AttendanceModel{}).
			Where("student_id = ? AND course_code = ? AND date_key = ?", key.StudentID, key.CourseCode, key.Date).
			Count(&count).Error
	})
	return count > 0, err
}

// Commit inserts rec once. A unique index violation is reported as
// attendance.ErrDuplicateRecord and never retried.
func (s *GormStore) Commit(ctx context.Context, rec *attendance.Record) error {
	err := s.db.WithContext(ctx).Create(recordToModel(rec)).Error
	if isDuplicate(err) {
		return attendance.ErrDuplicateRecord
	}
	return logging.NewOperationError("repository.commit", rec.ID, err)
}

// FindRecord loads a record by id.
func (s *GormStore) FindRecord(ctx context.Context, id string) (*attendance.Record, error) {
	var m AttendanceModel
	if err := s.first(ctx, "repository.find_record", id, &m, "attendance_id = ?", id); err != nil {
		return nil, err
	}
	return recordFromModel(&m), nil
}

// ListByStudent returns a student's history, newest first.
func (s *GormStore) ListByStudent(ctx context.Context, studentID string) ([]*attendance.Record, error) {
	var rows []AttendanceModel
	err := s.executeWithRetry(ctx, "repository.list_by_student", studentID, func() error {
		return s.db.WithContext(ctx).Where("student_id = ?", studentID).Order("timestamp DESC").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return recordsFromModels(rows), nil
}

// ListByCourseDate returns the records of a course, optionally limited to one
// date key.
func (s *GormStore) ListByCourseDate(ctx context.Context, courseCode, date string) ([]*attendance.Record, error) {
	var rows []AttendanceModel
	err := s.executeWithRetry(ctx, "repository.list_by_course_date", courseCode, func() error {
		q := s.db.WithContext(ctx).Where("course_code = ?", attendance.NormalizeCourseCode(courseCode))
		if date != "" {
			q = q.Where("date_key = ?", date)
		}
		return q.Order("timestamp DESC").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return recordsFromModels(rows), nil
}

// FindStudent loads a student by id.
func (s *GormStore) FindStudent(ctx context.Context, id string) (*attendance.Student, error) {
	var m StudentModel
	if err := s.first(ctx, "repository.find_student", id, &m, "student_id = ?", id); err != nil {
		return nil, err
	}
	return studentFromModel(&m), nil
}

// CreateStudent inserts a student, failing with attendance.ErrAlreadyExists
// when the id is taken.
func (s *GormStore) CreateStudent(ctx context.Context, st *attendance.Student) error {
	return s.create(ctx, "repository.create_student", st.ID, studentToModel(st))
}

// ListStudents returns students ordered by id.
func (s *GormStore) ListStudents(ctx context.Context, activeOnly bool) ([]*attendance.Student, error) {
	var rows []StudentModel
	err := s.executeWithRetry(ctx, "repository.list_students", "", func() error {
		q := s.db.WithContext(ctx).Order("student_id")
		if activeOnly {
			q = q.Where("active = ?", true)
		}
		return q.Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]*attendance.Student, 0, len(rows))
	for i := range rows {
		out = append(out, studentFromModel(&rows[i]))
	}
	return out, nil
}

// DeactivateStudent marks a student inactive. Attendance history is kept.
func (s *GormStore) DeactivateStudent(ctx context.Context, id string) error {
	return s.update(ctx, "repository.deactivate_student", id, func(db *gorm.DB) *gorm.DB {
		return db.Model(&StudentModel{}).Where("student_id = ?", id).Updates(map[string]interface{}{
			"active":     false,
			"updated_at": time.Now().UTC(),
		})
	})
}

// SaveFaceReference replaces the student's reference and clears the other
// kind.
func (s *GormStore) SaveFaceReference(ctx context.Context, studentID string, ref faceoracle.Reference) error {
	values := &StudentModel{
		Embedding: ref.Embedding,
		FaceToken: ref.Token,
		UpdatedAt: time.Now().UTC(),
	}
	return s.update(ctx, "repository.save_face_reference", studentID, func(db *gorm.DB) *gorm.DB {
		return db.Model(&StudentModel{}).Where("student_id = ?", studentID).
			Select("embedding", "face_token", "updated_at").Updates(values)
	})
}

// FindCourse loads a course by code.
func (s *GormStore) FindCourse(ctx context.Context, code string) (*attendance.Course, error) {
	code = attendance.NormalizeCourseCode(code)
	var m CourseModel
	if err := s.first(ctx, "repository.find_course", code, &m, "course_code = ?", code); err != nil {
		return nil, err
	}
	return courseFromModel(&m), nil
}

// CreateCourse inserts a course, failing with attendance.ErrAlreadyExists when
// the code is taken.
func (s *GormStore) CreateCourse(ctx context.Context, c *attendance.Course) error {
	return s.create(ctx, "repository.create_course", c.Code, courseToModel(c))
}

// ListCourses returns courses ordered by code.
func (s *GormStore) ListCourses(ctx context.Context, activeOnly bool) ([]*attendance.Course, error) {
	var rows []CourseModel
	err := s.executeWithRetry(ctx, "repository.list_courses", "", func() error {
		q := s.db.WithContext(ctx).Order("course_code")
		if activeOnly {
			q = q.Where("is_active = ?", true)
		}
		return q.Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]*attendance.Course, 0, len(rows))
	for i := range rows {
		out = append(out, courseFromModel(&rows[i]))
	}
	return out, nil
}

// DeactivateCourse marks a course inactive. Rows are never deleted.
func (s *GormStore) DeactivateCourse(ctx context.Context, code string) error {
	code = attendance.NormalizeCourseCode(code)
	return s.update(ctx, "repository.deactivate_course", code, func(db *gorm.DB) *gorm.DB {
		return db.Model(&CourseModel{}).Where("course_code = ?", code).Updates(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		})
	})
}

// CreateAdmin inserts an admin account.
func (s *GormStore) CreateAdmin(ctx context.Context, a *attendance.Admin) error {
	return s.create(ctx, "repository.create_admin", a.UniqueID, &AdminModel{
		UniqueID:     a.UniqueID,
		Name:         a.Name,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Level:        a.Level,
		CreatedAt:    a.CreatedAt,
	})
}

// FindAdmin loads an admin by unique id.
func (s *GormStore) FindAdmin(ctx context.Context, uniqueID string) (*attendance.Admin, error) {
	var m AdminModel
	if err := s.first(ctx, "repository.find_admin", uniqueID, &m, "unique_id = ?", uniqueID); err != nil {
		return nil, err
	}
	return adminFromModel(&m), nil
}

// SaveNotification persists an in-app notification.
func (s *GormStore) SaveNotification(ctx context.Context, n *notify.Notification) error {
	return s.create(ctx, "repository.save_notification", n.ID, &NotificationModel{
		ID:            n.ID,
		RecipientRole: n.RecipientRole,
		RecipientID:   n.RecipientID,
		Kind:          n.Kind,
		Title:         n.Title,
		Message:       n.Message,
		Read:          n.Read,
		CreatedAt:     n.CreatedAt,
	})
}

// ListNotifications returns a recipient's notifications, newest first.
func (s *GormStore) ListNotifications(ctx context.Context, to notify.Recipient) ([]*notify.Notification, error) {
	var rows []NotificationModel
	err := s.executeWithRetry(ctx, "repository.list_notifications", to.ID, func() error {
		return s.db.WithContext(ctx).
			Where("recipient_role = ? AND recipient_id = ?", to.Role, to.ID).
			Order("created_at DESC").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]*notify.Notification, 0, len(rows))
	for i := range rows {
		out = append(out, notificationFromModel(&rows[i]))
	}
	return out, nil
}

// MarkNotificationRead flags one of the recipient's notifications as read.
func (s *GormStore) MarkNotificationRead(ctx context.Context, to notify.Recipient, id string) error {
	return s.update(ctx, "repository.mark_notification_read", id, func(db *gorm.DB) *gorm.DB {
		return db.Model(&NotificationModel{}).
			Where("id = ? AND recipient_role = ? AND recipient_id = ?", id, to.Role, to.ID).
			Update("is_read", true)
	})
}

func (s *GormStore) first(ctx context.Context, operation, requestID string, dest interface{}, query string, args ...interface{}) error {
	err := s.executeWithRetry(ctx, operation, requestID, func() error {
		return s.db.WithContext(ctx).Where(query, args...).First(dest).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return attendance.ErrNotFound
	}
	return err
}

func (s *GormStore) create(ctx context.Context, operation, requestID string, value interface{}) error {
	err := s.executeWithRetry(ctx, operation, requestID, func() error {
		return s.db.WithContext(ctx).Create(value).Error
	})
	if isDuplicate(err) {
		return attendance.ErrAlreadyExists
	}
	return err
}

// update runs an UPDATE built by apply and maps zero affected rows to
// attendance.ErrNotFound.
func (s *GormStore) update(ctx context.Context, operation, id string, apply func(*gorm.DB) *gorm.DB) error {
	var affected int64
	err := s.executeWithRetry(ctx, operation, id, func() error {
		res := apply(s.db.WithContext(ctx))
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

func (s *GormStore) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	return retry.Do(ctx, s.logger, s.policy, operation, requestID, fn)
}

func recordsFromModels(rows []AttendanceModel) []*attendance.Record {
	out := make([]*attendance.Record, 0, len(rows))
	for i := range rows {
		out = append(out, recordFromModel(&rows[i]))
	}
	return out
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

