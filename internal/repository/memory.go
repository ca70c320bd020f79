package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/example/face-attendance/internal/attendance"
	"github.com/example/face-attendance/internal/faceoracle"
	"github.com/example/face-attendance/internal/notify"
)

// MemoryStore keeps everything in process. Commit checks and inserts under
// one lock, which gives the same one-record-per-day guarantee as the unique
// index.
type MemoryStore struct {
	mu            sync.RWMutex
	students      map[string]*attendance.Student
	courses       map[string]*attendance.Course
	admins        map[string]*attendance.Admin
	records       map[string]*attendance.Record
	days          map[attendance.DayKey]string
	notifications map[string]*notify.Notification
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		students:      make(map[string]*attendance.Student),
		courses:       make(map[string]*attendance.Course),
		admins:        make(map[string]*attendance.Admin),
		records:       make(map[string]*attendance.Record),
		days:          make(map[attendance.DayKey]string),
		notifications: make(map[string]*notify.Notification),
	}
}

func (m *MemoryStore) Exists(ctx context.Context, key attendance.DayKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.days[key]
	return ok, nil
}

func (m *MemoryStore) Commit(ctx context.Context, rec *attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rec.Key()
	if _, ok := m.days[key]; ok {
		return attendance.ErrDuplicateRecord
	}
	stored := copyRecord(rec)
	m.records[rec.ID] = stored
	m.days[key] = rec.ID
	return nil
}

func (m *MemoryStore) FindRecord(ctx context.Context, id string) (*attendance.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, attendance.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (m *MemoryStore) ListByStudent(ctx context.Context, studentID string) ([]*attendance.Record, error) {
	return m.filterRecords(func(r *attendance.Record) bool { return r.StudentID == studentID }), nil
}

func (m *MemoryStore) ListByCourseDate(ctx context.Context, courseCode, date string) ([]*attendance.Record, error) {
	code := attendance.NormalizeCourseCode(courseCode)
	return m.filterRecords(func(r *attendance.Record) bool {
		return r.CourseCode == code && (date == "" || r.Date == date)
	}), nil
}

func (m *MemoryStore) FindStudent(ctx context.Context, id string) (*attendance.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, attendance.ErrNotFound
	}
	return copyStudent(s), nil
}

func (m *MemoryStore) CreateStudent(ctx context.Context, s *attendance.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[s.ID]; ok {
		return attendance.ErrAlreadyExists
	}
	stored := copyStudent(s)
	for i, c := range stored.Courses {
		stored.Courses[i] = attendance.NormalizeCourseCode(c)
	}
	m.students[s.ID] = stored
	return nil
}

func (m *MemoryStore) ListStudents(ctx context.Context, activeOnly bool) ([]*attendance.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*attendance.Student, 0, len(m.students))
	for _, s := range m.students {
		if activeOnly && !s.Active {
			continue
		}
		out = append(out, copyStudent(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DeactivateStudent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return attendance.ErrNotFound
	}
	s.Active = false
	return nil
}

func (m *MemoryStore) SaveFaceReference(ctx context.Context, studentID string, ref faceoracle.Reference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[studentID]
	if !ok {
		return attendance.ErrNotFound
	}
	s.Reference = faceoracle.Reference{
		Embedding: append([]float64(nil), ref.Embedding...),
		Token:     ref.Token,
	}
	return nil
}

func (m *MemoryStore) FindCourse(ctx context.Context, code string) (*attendance.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[attendance.NormalizeCourseCode(code)]
	if !ok {
		return nil, attendance.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) CreateCourse(ctx context.Context, c *attendance.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	code := attendance.NormalizeCourseCode(c.Code)
	if _, ok := m.courses[code]; ok {
		return attendance.ErrAlreadyExists
	}
	cp := *c
	cp.Code = code
	m.courses[code] = &cp
	return nil
}

func (m *MemoryStore) ListCourses(ctx context.Context, activeOnly bool) ([]*attendance.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*attendance.Course, 0, len(m.courses))
	for _, c := range m.courses {
		if activeOnly && !c.Active {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryStore) DeactivateCourse(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[attendance.NormalizeCourseCode(code)]
	if !ok {
		return attendance.ErrNotFound
	}
	c.Active = false
	return nil
}

func (m *MemoryStore) CreateAdmin(ctx context.Context, a *attendance.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[a.UniqueID]; ok {
		return attendance.ErrAlreadyExists
	}
	cp := *a
	m.admins[a.UniqueID] = &cp
	return nil
}

func (m *MemoryStore) FindAdmin(ctx context.Context, uniqueID string) (*attendance.Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.admins[uniqueID]
	if !ok {
		return nil, attendance.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) SaveNotification(ctx context.Context, n *notify.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notifications[n.ID]; ok {
		return attendance.ErrAlreadyExists
	}
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *MemoryStore) ListNotifications(ctx context.Context, to notify.Recipient) ([]*notify.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*notify.Notification
	for _, n := range m.notifications {
		if n.Recipient() == to {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) MarkNotificationRead(ctx context.Context, to notify.Recipient, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.Recipient() != to {
		return attendance.ErrNotFound
	}
	n.Read = true
	return nil
}

func (m *MemoryStore) filterRecords(keep func(*attendance.Record) bool) []*attendance.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*attendance.Record
	for _, r := range m.records {
		if keep(r) {
			out = append(out, copyRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func copyRecord(r *attendance.Record) *attendance.Record {
	cp := *r
	if r.Location != nil {
		loc := *r.Location
		cp.Location = &loc
	}
	return &cp
}

func copyStudent(s *attendance.Student) *attendance.Student {
	cp := *s
	cp.Courses = append([]string(nil), s.Courses...)
	cp.Reference = faceoracle.Reference{
		Embedding: append([]float64(nil), s.Reference.Embedding...),
		Token:     s.Reference.Token,
	}
	return &cp
}
