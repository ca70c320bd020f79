package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/face-attendance/internal/attendance"
	"github.com/example/face-attendance/internal/auth"
	"github.com/example/face-attendance/internal/clock"
	"github.com/example/face-attendance/internal/faceoracle"
	"github.com/example/face-attendance/internal/notify"
	"github.com/example/face-attendance/internal/repository"
	"github.com/example/face-attendance/internal/usecase"
)

const testJWTSecret = "test-secret"

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	textBytes = []byte("definitely not an image")
)

type stubOracle struct {
	mu    sync.Mutex
	score float64
	err   error
	calls int
}

func (s *stubOracle) Verify(ctx context.Context, ref faceoracle.Reference, sample faceoracle.Sample) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.score, s.err
}

type stubEnroller struct{}

func (stubEnroller) Enroll(ctx context.Context, image []byte) (string, error) {
	return "tok-from-provider", nil
}

type recordingObserver struct {
	mu     sync.Mutex
	routes []string
}

func (r *recordingObserver) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, method+" "+route)
}

type testEnv struct {
	router   *gin.Engine
	store    *repository.MemoryStore
	clock    *clock.Fake
	oracle   *stubOracle
	issuer   *auth.Issuer
	observer *recordingObserver
}

type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields"`
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	store := repository.NewMemoryStore()
	_ = store.CreateCourse(ctx, &attendance.Course{Code: "CS101", Name: "Intro to CS", Active: true})
	_ = store.CreateCourse(ctx, &attendance.Course{Code: "HIS200", Name: "History", Active: false})
	_ = store.CreateStudent(ctx, &attendance.Student{
		ID:        "S1",
		Name:      "Ada",
		Courses:   []string{"CS101", "HIS200", "GHOST1"},
		Reference: faceoracle.EmbeddingReference([]float64{1, 0, 0}),
		Active:    true,
	})
	_ = store.CreateStudent(ctx, &attendance.Student{ID: "S2", Name: "Bo", Courses: []string{"CS101"}, Active: true})

	fake := clock.NewFake(time.Date(2024, 3, 4, 9, 10, 0, 0, time.UTC))
	oracle := &stubOracle{score: 0.9}
	engine := attendance.NewEngine(store, store, oracle, notify.NewStoreSink(store), zap.NewNop(),
		attendance.WithClock(fake), attendance.WithLocation(time.UTC))

	issuer, err := auth.NewIssuer(testJWTSecret, "", time.Hour, clock.Real())
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	observer := &recordingObserver{}
	router := gin.New()
	router.Use(Metrics(observer), LimitBody(MaxRequestBody))
	RegisterRoutes(router, Dependencies{
		Attendance:    usecase.NewAttendanceUseCase(store, engine, stubEnroller{}, nil, 3, zap.NewNop()),
		Admin:         usecase.NewAdminUseCase(store, stubEnroller{}, fake, zap.NewNop()),
		Auth:          usecase.NewAuthUseCase(store, issuer, fake, zap.NewNop()),
		Notifications: usecase.NewNotificationUseCase(store),
		Logger:        zap.NewNop(),
	}, auth.JWTMiddleware(testJWTSecret, ""))

	return &testEnv{router: router, store: store, clock: fake, oracle: oracle, issuer: issuer, observer: observer}
}

func (e *testEnv) token(t *testing.T, subject string, role auth.Role) string {
	t.Helper()
	token, _, err := e.issuer.Issue(subject, role)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.serve(t, req)
}

func (e *testEnv) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	var env envelope
	if resp.Body.Len() > 0 {
		if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
			t.Fatalf("response is not JSON: %s", resp.Body.String())
		}
	}
	return resp, env
}

func markBody(code string) map[string]interface{} {
	return map[string]interface{}{"courseCode": code, "faceData": []float64{1, 0, 0}}
}

func TestMarkAttendanceAcceptsThenRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "S1", auth.RoleStudent)

	resp, body := env.do(t, http.MethodPost, "/api/student/attendance", token, markBody("cs101"))
	if resp.Code != http.StatusCreated || !body.Success {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var rec recordResponse
	if err := json.Unmarshal(body.Data, &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.CourseCode != "CS101" || rec.Status != attendance.StatusPresent || rec.IsLate || rec.ConfidenceScore != 0.9 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	resp, body = env.do(t, http.MethodPost, "/api/student/attendance", token, markBody("CS101"))
	if resp.Code != http.StatusBadRequest || body.Error != "already marked today" {
		t.Fatalf("expected duplicate rejection, got %d: %s", resp.Code, resp.Body.String())
	}

	resp, body = env.do(t, http.MethodGet, "/api/student/attendance/"+rec.AttendanceID, token, nil)
	if resp.Code != http.StatusOK || !body.Success {
		t.Fatalf("expected record lookup, got %d: %s", resp.Code, resp.Body.String())
	}

	other := env.token(t, "S2", auth.RoleStudent)
	if resp, _ := env.do(t, http.MethodGet, "/api/student/attendance/"+rec.AttendanceID, other, nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected other student to get 404, got %d", resp.Code)
	}
}

func TestMarkAttendanceStatusMapping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	s1 := env.token(t, "S1", auth.RoleStudent)
	s2 := env.token(t, "S2", auth.RoleStudent)

	cases := []struct {
		name   string
		token  string
		body   interface{}
		status int
		errMsg string
	}{
		{"not enrolled", s1, markBody("MA300"), http.StatusBadRequest, "not enrolled"},
		{"inactive course", s1, markBody("HIS200"), http.StatusNotFound, "course not found"},
		{"missing course", s1, markBody("GHOST1"), http.StatusNotFound, "course not found"},
		{"not registered", s2, markBody("CS101"), http.StatusBadRequest, "not registered"},
		{"wrong dimension", s1, map[string]interface{}{"courseCode": "CS101", "faceData": []float64{1}}, http.StatusBadRequest, ""},
		{"missing course code", s1, map[string]interface{}{"faceData": []float64{1, 0, 0}}, http.StatusBadRequest, "validation failed"},
	}
	for _, tc := range cases {
		resp, body := env.do(t, http.MethodPost, "/api/student/attendance", tc.token, tc.body)
		if resp.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.status, resp.Code, resp.Body.String())
		}
		if body.Success {
			t.Fatalf("%s: expected success=false", tc.name)
		}
		if tc.errMsg != "" && body.Error != tc.errMsg {
			t.Fatalf("%s: expected error %q, got %q", tc.name, tc.errMsg, body.Error)
		}
	}
	if env.oracle.calls != 0 {
		t.Fatalf("oracle must not run for gated submissions, got %d calls", env.oracle.calls)
	}

	_, body := env.do(t, http.MethodPost, "/api/student/attendance", s1, map[string]interface{}{"faceData": []float64{1, 0, 0}})
	if body.Fields["courseCode"] != "courseCode is required" {
		t.Fatalf("expected translated field error, got %v", body.Fields)
	}

	env.oracle.score = 0.5
	resp, body := env.do(t, http.MethodPost, "/api/student/attendance", s1, markBody("CS101"))
	if resp.Code != http.StatusBadRequest || body.Error != "verification failed" {
		t.Fatalf("expected verification failure, got %d: %s", resp.Code, resp.Body.String())
	}
	if exists, _ := env.store.Exists(ctx, attendance.DayKey{StudentID: "S1", CourseCode: "CS101", Date: "2024-03-04"}); exists {
		t.Fatal("rejected submission must not be stored")
	}
}

func TestLateArrivalCreatesNotification(t *testing.T) {
	env := newTestEnv(t)
	env.clock.Set(time.Date(2024, 3, 4, 9, 40, 30, 0, time.UTC))
	token := env.token(t, "S1", auth.RoleStudent)

	resp, body := env.do(t, http.MethodPost, "/api/student/attendance", token, markBody("CS101"))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var rec recordResponse
	_ = json.Unmarshal(body.Data, &rec)
	if !rec.IsLate || rec.LateMinutes != 40 || rec.Status != attendance.StatusLate {
		t.Fatalf("unexpected lateness: %+v", rec)
	}

	resp, body = env.do(t, http.MethodGet, "/api/notifications", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var inbox usecase.Inbox
	_ = json.Unmarshal(body.Data, &inbox)
	if inbox.UnreadCount != 1 || len(inbox.Notifications) != 1 {
		t.Fatalf("unexpected inbox: %+v", inbox)
	}

	id := inbox.Notifications[0].ID
	if resp, _ := env.do(t, http.MethodPut, "/api/notifications/"+id+"/read", token, nil); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	_, body = env.do(t, http.MethodGet, "/api/notifications", token, nil)
	_ = json.Unmarshal(body.Data, &inbox)
	if inbox.UnreadCount != 0 {
		t.Fatalf("expected no unread notifications, got %d", inbox.UnreadCount)
	}
}

func TestMarkAttendanceImage(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "S2", auth.RoleStudent)

	resp, _ := env.do(t, http.MethodPost, "/api/student/face-image", token, map[string]string{
		"imageBase64": "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes),
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected enrollment to succeed, got %d: %s", resp.Code, resp.Body.String())
	}
	s, _ := env.store.FindStudent(context.Background(), "S2")
	if s.Reference.Token != "tok-from-provider" {
		t.Fatalf("expected token reference, got %+v", s.Reference)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/student/attendance-image", token, map[string]string{
		"courseCode":  "CS101",
		"imageBase64": base64.StdEncoding.EncodeToString(textBytes),
	})
	if resp.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", resp.Code)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/student/attendance-image", token, map[string]string{
		"courseCode":  "CS101",
		"imageBase64": "%%%",
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad base64, got %d", resp.Code)
	}

	resp, body := env.do(t, http.MethodPost, "/api/student/attendance-image", token, map[string]string{
		"courseCode":  "CS101",
		"imageBase64": base64.StdEncoding.EncodeToString(pngBytes),
	})
	if resp.Code != http.StatusCreated || !body.Success {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestMarkAttendanceImageMultipart(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "S1", auth.RoleStudent)

	body, contentType := buildMultipartBody(t, map[string]string{"courseCode": "CS101"}, pngBytes)
	req := httptest.NewRequest(http.MethodPost, "/api/student/attendance-image", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, env2 := env.serve(t, req)
	if resp.Code != http.StatusCreated || !env2.Success {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestRejectsLargeImage(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "S1", auth.RoleStudent)

	big := append(append([]byte{}, pngBytes...), bytes.Repeat([]byte("a"), MaxUploadSize)...)
	resp, _ := env.do(t, http.MethodPost, "/api/student/attendance-image", token, map[string]string{
		"courseCode":  "CS101",
		"imageBase64": base64.StdEncoding.EncodeToString(big),
	})
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, resp.Code)
	}
}

func TestAdminFlow(t *testing.T) {
	env := newTestEnv(t)

	// RegistrationScreen's adminData as the mobile client posts it.
	resp, body := env.do(t, http.MethodPost, "/api/auth/admin/register", "", map[string]string{
		"adminName":   "Grace",
		"uniqueId":    "ADM1",
		"password":    "longenough",
		"email":       "grace@example.com",
		"phoneNumber": "+15550100",
		"adminLevel":  "admin",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp, body = env.do(t, http.MethodPost, "/api/auth/admin/login", "", map[string]string{
		"uniqueId": "ADM1", "password": "wrong-password",
	})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	resp, body = env.do(t, http.MethodPost, "/api/auth/admin/login", "", map[string]string{
		"uniqueId": "ADM1", "password": "longenough",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var session sessionResponse
	_ = json.Unmarshal(body.Data, &session)
	if session.User.Role != "admin" || session.Token == "" {
		t.Fatalf("unexpected session: %+v", session)
	}
	if session.User.AdminName != "Grace" || session.User.AdminLevel != "admin" || session.User.UniqueID != "ADM1" {
		t.Fatalf("unexpected admin user: %+v", session.User)
	}
	token := session.Token

	// CreateCourseScreen sends credits and maxCapacity as strings.
	resp, body = env.do(t, http.MethodPost, "/api/admin/courses", token, map[string]interface{}{
		"courseCode":  "ma300",
		"courseName":  "Algebra",
		"instructor":  "Dr. Noether",
		"department":  "Mathematics",
		"credits":     "3",
		"description": "",
		"schedule":    map[string]interface{}{"days": []string{}, "time": "", "room": ""},
		"maxCapacity": "50",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var course courseResponse
	_ = json.Unmarshal(body.Data, &course)
	if course.CourseCode != "MA300" || course.Credits != 3 {
		t.Fatalf("unexpected course: %+v", course)
	}
	resp, _ = env.do(t, http.MethodPost, "/api/admin/courses", token, map[string]interface{}{
		"courseCode": "MA300", "courseName": "Algebra again",
	})
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}

	resp, body = env.do(t, http.MethodPost, "/api/admin/students", token, map[string]interface{}{
		"studentId": "S9", "studentName": "Cy", "email": "not-an-email",
	})
	if resp.Code != http.StatusBadRequest || body.Fields["email"] == "" {
		t.Fatalf("expected email validation error, got %d: %s", resp.Code, resp.Body.String())
	}

	resp, _ = env.do(t, http.MethodDelete, "/api/admin/courses/ma300", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	c, _ := env.store.FindCourse(context.Background(), "MA300")
	if c == nil || c.Active {
		t.Fatalf("expected course to be kept inactive, got %+v", c)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/admin/attendance?courseCode=CS101&date=2024-03-04", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	student := env.token(t, "S1", auth.RoleStudent)
	if resp, _ := env.do(t, http.MethodGet, "/api/admin/courses", student, nil); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for students, got %d", resp.Code)
	}
	if resp, _ := env.do(t, http.MethodPost, "/api/student/attendance", token, markBody("CS101")); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for admins, got %d", resp.Code)
	}
}

func TestCourseCreditsAcceptNumbersAndStrings(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "ADM1", auth.RoleAdmin)

	cases := []struct {
		code    string
		credits interface{}
		want    int
	}{
		{"NUM100", 4, 4},
		{"STR100", "3", 3},
		{"EMP100", "", 0},
	}
	for _, tc := range cases {
		resp, body := env.do(t, http.MethodPost, "/api/admin/courses", token, map[string]interface{}{
			"courseCode": tc.code, "courseName": "Course", "credits": tc.credits,
		})
		if resp.Code != http.StatusCreated {
			t.Fatalf("%s: expected 201, got %d: %s", tc.code, resp.Code, resp.Body.String())
		}
		var course courseResponse
		_ = json.Unmarshal(body.Data, &course)
		if course.Credits != tc.want {
			t.Fatalf("%s: expected %d credits, got %d", tc.code, tc.want, course.Credits)
		}
	}

	resp, body := env.do(t, http.MethodPost, "/api/admin/courses", token, map[string]interface{}{
		"courseCode": "BAD100", "courseName": "Course", "credits": "three",
	})
	if resp.Code != http.StatusBadRequest || body.Fields["credits"] == "" {
		t.Fatalf("expected credits field error, got %d: %s", resp.Code, resp.Body.String())
	}
	resp, body = env.do(t, http.MethodPost, "/api/admin/courses", token, map[string]interface{}{
		"courseCode": "BIG100", "courseName": "Course", "credits": "31",
	})
	if resp.Code != http.StatusBadRequest || body.Fields["credits"] == "" {
		t.Fatalf("expected credits range error, got %d: %s", resp.Code, resp.Body.String())
	}
}

// createStudentPayload mirrors CreateStudentScreen: the form state spread
// into the body plus faceImage.
func createStudentPayload(id, name string, faceImage interface{}) map[string]interface{} {
	return map[string]interface{}{
		"studentName":     name,
		"studentId":       id,
		"dateOfBirth":     "2004-05-06",
		"email":           "",
		"phoneNumber":     "",
		"address":         "",
		"academicYear":    "2",
		"semester":        "1",
		"enrolledCourses": []string{"CS101"},
		"emergencyContact": map[string]string{
			"name": "", "phone": "", "relationship": "",
		},
		"faceImage": faceImage,
	}
}

func TestCreateStudentWithClientPayloadThenLogin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "ADM1", auth.RoleAdmin)

	resp, body := env.do(t, http.MethodPost, "/api/admin/students", admin, createStudentPayload("S9", "Cy", nil))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created studentResponse
	_ = json.Unmarshal(body.Data, &created)
	if created.StudentName != "Cy" || len(created.EnrolledCourses) != 1 || created.EnrolledCourses[0] != "CS101" || created.FaceRegistered {
		t.Fatalf("unexpected student: %+v", created)
	}

	resp, body = env.do(t, http.MethodGet, "/api/admin/students", admin, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var raw []map[string]interface{}
	_ = json.Unmarshal(body.Data, &raw)
	if len(raw) != 3 || raw[2]["studentName"] != "Cy" || raw[2]["studentId"] != "S9" {
		t.Fatalf("unexpected student list: %v", raw)
	}

	resp, body = env.do(t, http.MethodPost, "/api/auth/student/login", "", map[string]string{"studentId": "S9"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var data struct {
		User map[string]interface{} `json:"user"`
	}
	_ = json.Unmarshal(body.Data, &data)
	if data.User["studentName"] != "Cy" || data.User["studentId"] != "S9" || data.User["role"] != "student" {
		t.Fatalf("unexpected user: %v", data.User)
	}
}

func TestCreateStudentWithFaceImage(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "ADM1", auth.RoleAdmin)

	encoded := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	resp, body := env.do(t, http.MethodPost, "/api/admin/students", admin, createStudentPayload("S9", "Cy", encoded))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created studentResponse
	_ = json.Unmarshal(body.Data, &created)
	if !created.FaceRegistered || created.FaceKind != faceoracle.KindToken {
		t.Fatalf("expected enrolled token reference, got %+v", created)
	}
	stored, _ := env.store.FindStudent(context.Background(), "S9")
	if stored.Reference.Token != "tok-from-provider" {
		t.Fatalf("unexpected stored reference: %+v", stored.Reference)
	}

	resp, body = env.do(t, http.MethodPost, "/api/admin/students", admin,
		createStudentPayload("S10", "Di", "file:///data/user/0/host.exp.exponent/cache/ImagePicker/face.jpg"))
	if resp.Code != http.StatusBadRequest || body.Fields["faceImage"] == "" {
		t.Fatalf("expected faceImage field error for device URI, got %d: %s", resp.Code, resp.Body.String())
	}
	if _, err := env.store.FindStudent(context.Background(), "S10"); err == nil {
		t.Fatal("student must not be created with an unreadable face image")
	}
}

func TestDeactivateStudent(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "ADM1", auth.RoleAdmin)

	resp, body := env.do(t, http.MethodDelete, "/api/admin/students/S2", admin, nil)
	if resp.Code != http.StatusOK || !body.Success {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	_, body = env.do(t, http.MethodGet, "/api/admin/students", admin, nil)
	var list []studentResponse
	_ = json.Unmarshal(body.Data, &list)
	if len(list) != 1 || list[0].StudentID != "S1" {
		t.Fatalf("deactivated student should be hidden: %+v", list)
	}

	if resp, _ := env.do(t, http.MethodPost, "/api/auth/student/login", "", map[string]string{"studentId": "S2"}); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected deactivated student login to fail, got %d", resp.Code)
	}
	stale := env.token(t, "S2", auth.RoleStudent)
	if resp, _ := env.do(t, http.MethodPost, "/api/student/attendance", stale, markBody("CS101")); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for deactivated student check-in, got %d", resp.Code)
	}
	if resp, _ := env.do(t, http.MethodDelete, "/api/admin/students/S404", admin, nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown student, got %d", resp.Code)
	}
	if resp, _ := env.do(t, http.MethodDelete, "/api/admin/students/S1", stale, nil); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for students, got %d", resp.Code)
	}
}

func TestStudentDashboard(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "S1", auth.RoleStudent)

	if resp, _ := env.do(t, http.MethodPost, "/api/student/attendance", token, markBody("CS101")); resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	resp, body := env.do(t, http.MethodGet, "/api/student/dashboard", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var d dashboardResponse
	if err := json.Unmarshal(body.Data, &d); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if d.Student.StudentID != "S1" || d.Student.StudentName != "Ada" {
		t.Fatalf("unexpected student: %+v", d.Student)
	}
	if len(d.RecentAttendance) != 1 || d.RecentAttendance[0].CourseCode != "CS101" || d.RecentAttendance[0].Status != attendance.StatusPresent {
		t.Fatalf("unexpected recent attendance: %+v", d.RecentAttendance)
	}

	other := env.token(t, "S2", auth.RoleStudent)
	_, body = env.do(t, http.MethodGet, "/api/student/dashboard", other, nil)
	var empty map[string]json.RawMessage
	_ = json.Unmarshal(body.Data, &empty)
	if string(empty["recentAttendance"]) != "[]" {
		t.Fatalf("expected empty list, got %s", empty["recentAttendance"])
	}
}

func TestNotificationsAreKeyedByRole(t *testing.T) {
	env := newTestEnv(t)
	env.clock.Set(time.Date(2024, 3, 4, 9, 40, 0, 0, time.UTC))
	student := env.token(t, "S1", auth.RoleStudent)
	if resp, _ := env.do(t, http.MethodPost, "/api/student/attendance", student, markBody("CS101")); resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}

	_, body := env.do(t, http.MethodGet, "/api/notifications", student, nil)
	var inbox usecase.Inbox
	_ = json.Unmarshal(body.Data, &inbox)
	if len(inbox.Notifications) != 1 {
		t.Fatalf("expected one student notification, got %+v", inbox)
	}
	id := inbox.Notifications[0].ID

	// An admin whose unique id collides with the student's id.
	admin := env.token(t, "S1", auth.RoleAdmin)
	resp, body := env.do(t, http.MethodGet, "/api/notifications", admin, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var adminInbox usecase.Inbox
	_ = json.Unmarshal(body.Data, &adminInbox)
	if len(adminInbox.Notifications) != 0 || adminInbox.UnreadCount != 0 {
		t.Fatalf("admin must not see the student's inbox: %+v", adminInbox)
	}
	if resp, _ := env.do(t, http.MethodPut, "/api/notifications/"+id+"/read", admin, nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for admin marking a student notification, got %d", resp.Code)
	}
}

func TestStudentLoginAndCourses(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/auth/student/login", "", map[string]string{"studentId": "S1"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var session sessionResponse
	_ = json.Unmarshal(body.Data, &session)
	if session.User.StudentName != "Ada" || session.User.StudentID != "S1" {
		t.Fatalf("unexpected student user: %+v", session.User)
	}

	resp, body = env.do(t, http.MethodGet, "/api/student/courses", session.Token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var courses []courseResponse
	_ = json.Unmarshal(body.Data, &courses)
	if len(courses) != 1 || courses[0].CourseCode != "CS101" {
		t.Fatalf("unexpected courses: %+v", courses)
	}

	if resp, _ := env.do(t, http.MethodPost, "/api/auth/student/login", "", map[string]string{"studentId": "nobody"}); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if resp, _ := env.do(t, http.MethodGet, "/api/student/courses", "", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "S1", auth.RoleStudent)

	env.do(t, http.MethodGet, "/api/student/attendance/abc", token, nil)
	env.do(t, http.MethodGet, "/nope", "", nil)

	joined := strings.Join(env.observer.routes, ",")
	if !strings.Contains(joined, "GET /api/student/attendance/:id") || !strings.Contains(joined, "GET unmatched") {
		t.Fatalf("unexpected observed routes: %v", env.observer.routes)
	}
}

func buildMultipartBody(t *testing.T, fields map[string]string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="upload"`)
	header.Set("Content-Type", "application/octet-stream")

	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router, Dependencies{
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("attendance_api_decisions_total 1\n"))
		}),
	}, auth.JWTMiddleware(testJWTSecret, ""))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "decisions_total") {
		t.Fatalf("unexpected metrics response %d %s", resp.Code, resp.Body.String())
	}
}
