package handlers

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/example/face-attendance/internal/attendance"
	"github.com/example/face-attendance/internal/auth"
	"github.com/example/face-attendance/internal/faceoracle"
	"github.com/example/face-attendance/internal/usecase"
)

type locationPayload struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

func (l *locationPayload) toDomain() *attendance.Location {
	if l == nil {
		return nil
	}
	return &attendance.Location{Latitude: l.Latitude, Longitude: l.Longitude}
}

type markRequest struct {
	CourseCode string           `json:"courseCode" validate:"required,coursecode"`
	FaceData   []float64        `json:"faceData" validate:"required,min=1"`
	Location   *locationPayload `json:"location" validate:"omitempty"`
	Notes      string           `json:"notes" validate:"max=500"`
}

type markImageRequest struct {
	CourseCode  string           `json:"courseCode" form:"courseCode" validate:"required,coursecode"`
	ImageBase64 string           `json:"imageBase64" form:"-"`
	Location    *locationPayload `json:"location" form:"-" validate:"omitempty"`
	Notes       string           `json:"notes" form:"notes" validate:"max=500"`
}

type faceRequest struct {
	FaceData []float64 `json:"faceData" validate:"required,min=1"`
}

type faceImageRequest struct {
	ImageBase64 string `json:"imageBase64" validate:"required"`
}

// flexInt decodes a JSON number or a numeric string such as "3". An empty
// string is zero.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
		if raw == "" {
			*n = 0
			return nil
		}
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return &json.UnmarshalTypeError{Value: string(data), Type: reflect.TypeOf(0)}
	}
	*n = flexInt(v)
	return nil
}

type courseRequest struct {
	CourseCode  string              `json:"courseCode" validate:"required,coursecode"`
	CourseName  string              `json:"courseName" validate:"required,max=255"`
	Instructor  string              `json:"instructor" validate:"max=255"`
	Department  string              `json:"department" validate:"max=255"`
	Credits     flexInt             `json:"credits" validate:"gte=0,lte=30"`
	Description string              `json:"description" validate:"max=2000"`
	Schedule    attendance.Schedule `json:"schedule"`
}

type studentRequest struct {
	StudentID       string   `json:"studentId" validate:"required,max=64"`
	StudentName     string   `json:"studentName" validate:"required,max=255"`
	Email           string   `json:"email" validate:"omitempty,email"`
	EnrolledCourses []string `json:"enrolledCourses" validate:"dive,coursecode"`
	// FaceImage is optional base64 or a data URI.
	FaceImage string `json:"faceImage"`
}

type adminRegisterRequest struct {
	UniqueID   string `json:"uniqueId" validate:"required,max=64"`
	AdminName  string `json:"adminName" validate:"required,max=255"`
	Email      string `json:"email" validate:"omitempty,email"`
	Password   string `json:"password" validate:"required,min=6,max=72"`
	AdminLevel string `json:"adminLevel" validate:"omitempty,oneof=admin super"`
}

type adminLoginRequest struct {
	UniqueID string `json:"uniqueId" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type studentLoginRequest struct {
	StudentID string `json:"studentId" validate:"required"`
}

type recordResponse struct {
	AttendanceID    string               `json:"attendanceId"`
	StudentID       string               `json:"studentId"`
	CourseCode      string               `json:"courseCode"`
	Date            string               `json:"date"`
	Timestamp       time.Time            `json:"timestamp"`
	Status          attendance.Status    `json:"status"`
	ConfidenceScore float64              `json:"confidenceScore"`
	IsLate          bool                 `json:"isLate"`
	LateMinutes     int                  `json:"lateMinutes"`
	Location        *attendance.Location `json:"location,omitempty"`
	Notes           string               `json:"notes,omitempty"`
}

func newRecordResponse(r *attendance.Record) recordResponse {
	return recordResponse{
		AttendanceID:    r.ID,
		StudentID:       r.StudentID,
		CourseCode:      r.CourseCode,
		Date:            r.Date,
		Timestamp:       r.Timestamp,
		Status:          r.Status,
		ConfidenceScore: r.ConfidenceScore,
		IsLate:          r.IsLate,
		LateMinutes:     r.LateMinutes,
		Location:        r.Location,
		Notes:           r.Notes,
	}
}

func newRecordResponses(records []*attendance.Record) []recordResponse {
	out := make([]recordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, newRecordResponse(r))
	}
	return out
}

type courseResponse struct {
	CourseCode  string              `json:"courseCode"`
	CourseName  string              `json:"courseName"`
	Instructor  string              `json:"instructor"`
	Department  string              `json:"department"`
	Credits     int                 `json:"credits"`
	Description string              `json:"description"`
	Schedule    attendance.Schedule `json:"schedule"`
	IsActive    bool                `json:"isActive"`
	CreatedAt   time.Time           `json:"createdAt"`
}

func newCourseResponses(courses []*attendance.Course) []courseResponse {
	out := make([]courseResponse, 0, len(courses))
	for _, c := range courses {
		out = append(out, newCourseResponse(c))
	}
	return out
}

func newCourseResponse(c *attendance.Course) courseResponse {
	return courseResponse{
		CourseCode:  c.Code,
		CourseName:  c.Name,
		Instructor:  c.Instructor,
		Department:  c.Department,
		Credits:     c.Credits,
		Description: c.Description,
		Schedule:    c.Schedule,
		IsActive:    c.Active,
		CreatedAt:   c.CreatedAt,
	}
}

type studentResponse struct {
	StudentID       string          `json:"studentId"`
	StudentName     string          `json:"studentName"`
	Email           string          `json:"email"`
	EnrolledCourses []string        `json:"enrolledCourses"`
	FaceRegistered  bool            `json:"faceRegistered"`
	FaceKind        faceoracle.Kind `json:"faceKind,omitempty"`
	IsActive        bool            `json:"isActive"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func newStudentResponse(s *attendance.Student) studentResponse {
	courses := s.Courses
	if courses == nil {
		courses = []string{}
	}
	return studentResponse{
		StudentID:       s.ID,
		StudentName:     s.Name,
		Email:           s.Email,
		EnrolledCourses: courses,
		FaceRegistered:  s.Reference.Registered(),
		FaceKind:        s.Reference.Kind(),
		IsActive:        s.Active,
		CreatedAt:       s.CreatedAt,
	}
}

// userResponse carries generic fields plus the role-specific names the
// mobile client reads (studentName or adminName).
type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`

	StudentID       string   `json:"studentId,omitempty"`
	StudentName     string   `json:"studentName,omitempty"`
	EnrolledCourses []string `json:"enrolledCourses,omitempty"`

	UniqueID   string `json:"uniqueId,omitempty"`
	AdminName  string `json:"adminName,omitempty"`
	AdminLevel string `json:"adminLevel,omitempty"`
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

func newSessionResponse(s *usecase.Session) sessionResponse {
	user := userResponse{
		ID:    s.UserID,
		Name:  s.Name,
		Email: s.Email,
		Role:  string(s.Role),
	}
	switch s.Role {
	case auth.RoleStudent:
		user.StudentID = s.UserID
		user.StudentName = s.Name
		user.EnrolledCourses = s.Courses
	case auth.RoleAdmin:
		user.UniqueID = s.UserID
		user.AdminName = s.Name
		user.AdminLevel = s.Level
	}
	return sessionResponse{Token: s.Token, ExpiresAt: s.ExpiresAt, User: user}
}

type dashboardResponse struct {
	Student          studentResponse  `json:"student"`
	RecentAttendance []recordResponse `json:"recentAttendance"`
}

func newDashboardResponse(d *usecase.Dashboard) dashboardResponse {
	return dashboardResponse{
		Student:          newStudentResponse(d.Student),
		RecentAttendance: newRecordResponses(d.RecentAttendance),
	}
}
