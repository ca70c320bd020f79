package repository

import (
	"time"

	"github.com/example/face-attendance/internal/attendance"
	"github.com/example/face-attendance/internal/faceoracle"
	"github.com/example/face-attendance/internal/notify"
)

// StudentModel is the persisted student row. At most one of Embedding and
// FaceToken is set.
type StudentModel struct {
	StudentID string    `gorm:"column:student_id;primaryKey;size:64"`
	Name      string    `gorm:"column:name;size:255"`
	Email     string    `gorm:"column:email;size:255"`
	Courses   []string  `gorm:"column:courses;type:jsonb;serializer:json"`
	Embedding []float64 `gorm:"column:embedding;type:jsonb;serializer:json"`
	FaceToken string    `gorm:"column:face_token;size:255"`
	Active    bool      `gorm:"column:active"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (StudentModel) TableName() string {
	return "students"
}

// CourseModel is the persisted course row.
type CourseModel struct {
	Code        string              `gorm:"column:course_code;primaryKey;size:32"`
	Name        string              `gorm:"column:course_name;size:255"`
	Instructor  string              `gorm:"column:instructor;size:255"`
	Department  string              `gorm:"column:department;size:255"`
	Credits     int                 `gorm:"column:credits"`
	Description string              `gorm:"column:description;type:text"`
	Schedule    attendance.Schedule `gorm:"column:schedule;type:jsonb;serializer:json"`
	Active      bool                `gorm:"column:is_active"`
	CreatedAt   time.Time           `gorm:"column:created_at"`
	UpdatedAt   time.Time           `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (CourseModel) TableName() string {
	return "courses"
}

// AttendanceModel is the persisted attendance row. The composite unique index
// enforces one record per student, course and day.
type AttendanceModel struct {
	ID              string    `gorm:"column:attendance_id;primaryKey;size:64"`
	StudentID       string    `gorm:"column:student_id;size:64;uniqueIndex:idx_attendance_day,priority:1;index:idx_attendance_student"`
	CourseCode      string    `gorm:"column:course_code;size:32;uniqueIndex:idx_attendance_day,priority:2;index:idx_attendance_course_date,priority:1"`
	DateKey         string    `gorm:"column:date_key;size:10;uniqueIndex:idx_attendance_day,priority:3;index:idx_attendance_course_date,priority:2"`
	Status          string    `gorm:"column:status;size:16"`
	ConfidenceScore float64   `gorm:"column:confidence_score"`
	Timestamp       time.Time `gorm:"column:timestamp"`
	IsLate          bool      `gorm:"column:is_late"`
	LateMinutes     int       `gorm:"column:late_minutes"`
	Latitude        *float64  `gorm:"column:latitude"`
	Longitude       *float64  `gorm:"column:longitude"`
	Notes           string    `gorm:"column:notes;type:text"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (AttendanceModel) TableName() string {
	return "attendance"
}

// AdminModel is the persisted admin account.
type AdminModel struct {
	UniqueID     string    `gorm:"column:unique_id;primaryKey;size:64"`
	Name         string    `gorm:"column:name;size:255"`
	Email        string    `gorm:"column:email;size:255"`
	PasswordHash string    `gorm:"column:password_hash;size:255"`
	Level        string    `gorm:"column:level;size:32"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (AdminModel) TableName() string {
	return "admins"
}

// NotificationModel is the persisted in-app notification.
type NotificationModel struct {
	ID            string    `gorm:"column:id;primaryKey;size:64"`
	RecipientRole string    `gorm:"column:recipient_role;size:16;index:idx_notification_recipient"`
	RecipientID   string    `gorm:"column:recipient_id;size:64;index:idx_notification_recipient"`
	Kind          string    `gorm:"column:kind;size:32"`
	Title         string    `gorm:"column:title;size:255"`
	Message       string    `gorm:"column:message;type:text"`
	Read          bool      `gorm:"column:is_read"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (NotificationModel) TableName() string {
	return "notifications"
}

func studentFromModel(m *StudentModel) *attendance.Student {
	s := &attendance.Student{
		ID:        m.StudentID,
		Name:      m.Name,
		Email:     m.Email,
		Courses:   append([]string(nil), m.Courses...),
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
	}
	switch {
	case len(m.Embedding) > 0:
		s.Reference = faceoracle.EmbeddingReference(append([]float64(nil), m.Embedding...))
	case m.FaceToken != "":
		s.Reference = faceoracle.TokenReference(m.FaceToken)
	}
	return s
}

func studentToModel(s *attendance.Student) *StudentModel {
	courses := make([]string, 0, len(s.Courses))
	for _, c := range s.Courses {
		courses = append(courses, attendance.NormalizeCourseCode(c))
	}
	return &StudentModel{
		StudentID: s.ID,
		Name:      s.Name,
		Email:     s.Email,
		Courses:   courses,
		Embedding: append([]float64(nil), s.Reference.Embedding...),
		FaceToken: s.Reference.Token,
		Active:    s.Active,
		CreatedAt: s.CreatedAt,
	}
}

func courseFromModel(m *CourseModel) *attendance.Course {
	return &attendance.Course{
		Code:        m.Code,
		Name:        m.Name,
		Instructor:  m.Instructor,
		Department:  m.Department,
		Credits:     m.Credits,
		Description: m.Description,
		Schedule:    m.Schedule,
		Active:      m.Active,
		CreatedAt:   m.CreatedAt,
	}
}

func courseToModel(c *attendance.Course) *CourseModel {
	return &CourseModel{
		Code:        attendance.NormalizeCourseCode(c.Code),
		Name:        c.Name,
		Instructor:  c.Instructor,
		Department:  c.Department,
		Credits:     c.Credits,
		Description: c.Description,
		Schedule:    c.Schedule,
		Active:      c.Active,
		CreatedAt:   c.CreatedAt,
	}
}

func recordFromModel(m *AttendanceModel) *attendance.Record {
	rec := &attendance.Record{
		ID:              m.ID,
		StudentID:       m.StudentID,
		CourseCode:      m.CourseCode,
		Date:            m.DateKey,
		Status:          attendance.Status(m.Status),
		ConfidenceScore: m.ConfidenceScore,
		Timestamp:       m.Timestamp,
		IsLate:          m.IsLate,
		LateMinutes:     m.LateMinutes,
		Notes:           m.Notes,
	}
	if m.Latitude != nil && m.Longitude != nil {
		rec.Location = &attendance.Location{Latitude: *m.Latitude, Longitude: *m.Longitude}
	}
	return rec
}

func recordToModel(r *attendance.Record) *AttendanceModel {
	m := &AttendanceModel{
		ID:              r.ID,
		StudentID:       r.StudentID,
		CourseCode:      r.CourseCode,
		DateKey:         r.Date,
		Status:          string(r.Status),
		ConfidenceScore: r.ConfidenceScore,
		Timestamp:       r.Timestamp,
		IsLate:          r.IsLate,
		LateMinutes:     r.LateMinutes,
		Notes:           r.Notes,
	}
	if r.Location != nil {
		lat, lng := r.Location.Latitude, r.Location.Longitude
		m.Latitude = &lat
		m.Longitude = &lng
	}
	return m
}

func adminFromModel(m *AdminModel) *attendance.Admin {
	return &attendance.Admin{
		UniqueID:     m.UniqueID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Level:        m.Level,
		CreatedAt:    m.CreatedAt,
	}
}

func notificationFromModel(m *NotificationModel) *notify.Notification {
	return &notify.Notification{
		ID:            m.ID,
		RecipientRole: m.RecipientRole,
		RecipientID:   m.RecipientID,
		Kind:          m.Kind,
		Title:         m.Title,
		Message:       m.Message,
		Read:          m.Read,
		CreatedAt:     m.CreatedAt,
	}
}
