// Package attendance holds the attendance domain model and the decision
// engine that accepts or rejects face-verified check-ins.
package attendance

import (
	"strings"
	"time"

	"github.com/example/face-attendance/internal/faceoracle"
)

// Status is the classification stored on an accepted record.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
)

// DateLayout formats calendar date keys.
const DateLayout = "2006-01-02"

// NormalizeCourseCode uppercases and trims a course identifier.
func NormalizeCourseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Student is the subset of a student's profile the engine needs.
type Student struct {
	ID        string
	Name      string
	Email     string
	Courses   []string
	Reference faceoracle.Reference
	Active    bool
	CreatedAt time.Time
}

// EnrolledIn reports whether code is in the student's enrollment set.
func (s *Student) EnrolledIn(code string) bool {
	code = NormalizeCourseCode(code)
	for _, c := range s.Courses {
		if NormalizeCourseCode(c) == code {
			return true
		}
	}
	return false
}

// Schedule is the nominal timetable of a course. Lateness does not read it.
type Schedule struct {
	Days []string `json:"days"`
	Time string   `json:"time"`
	Room string   `json:"room"`
}

// Course is an admin-created course.
type Course struct {
	Code        string
	Name        string
	Instructor  string
	Department  string
	Credits     int
	Description string
	Schedule    Schedule
	Active      bool
	CreatedAt   time.Time
}

// Location is an optional GPS fix sent with a check-in.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DayKey identifies the single record a student may hold for a course on a
// calendar day.
type DayKey struct {
	StudentID  string
	CourseCode string
	Date       string
}

// String renders the key for cache lookups.
func (k DayKey) String() string {
	return k.StudentID + ":" + k.CourseCode + ":" + k.Date
}

// Record is an immutable attendance entry.
type Record struct {
	ID              string
	StudentID       string
	CourseCode      string
	Date            string
	Status          Status
	ConfidenceScore float64
	Timestamp       time.Time
	IsLate          bool
	LateMinutes     int
	Location        *Location
	Notes           string
}

// Key returns the uniqueness key of r.
func (r *Record) Key() DayKey {
	return DayKey{StudentID: r.StudentID, CourseCode: r.CourseCode, Date: r.Date}
}

// Admin is a staff account allowed to manage courses and students.
type Admin struct {
	UniqueID     string
	Name         string
	Email        string
	PasswordHash string
	Level        string
	CreatedAt    time.Time
}
