// Package handlers exposes the attendance API over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/face-attendance/internal/auth"
	"github.com/example/face-attendance/internal/notify"
	"github.com/example/face-attendance/internal/usecase"
)

// Dependencies are the use cases and collaborators served by the router.
type Dependencies struct {
	Attendance    *usecase.AttendanceUseCase
	Admin         *usecase.AdminUseCase
	Auth          *usecase.AuthUseCase
	Notifications *usecase.NotificationUseCase
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *zap.Logger
}

type handler struct {
	deps      Dependencies
	validator *Validator
	logger    *zap.Logger
}

// RegisterRoutes wires the HTTP handlers to the Gin router. authMiddleware
// authenticates every route under /api except login and registration.
func RegisterRoutes(router *gin.Engine, deps Dependencies, authMiddleware gin.HandlerFunc) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{deps: deps, validator: NewValidator(), logger: logger.Named("http")}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	api := router.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.POST("/admin/register", h.registerAdmin)
	authRoutes.POST("/admin/login", h.loginAdmin)
	authRoutes.POST("/student/login", h.loginStudent)

	protected := api.Group("", authMiddleware)

	admin := protected.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/courses", h.createCourse)
	admin.GET("/courses", h.listCourses)
	admin.DELETE("/courses/:code", h.deactivateCourse)
	admin.POST("/students", h.createStudent)
	admin.GET("/students", h.listStudents)
	admin.DELETE("/students/:id", h.deactivateStudent)
	admin.GET("/attendance", h.listAttendance)

	student := protected.Group("/student", auth.RequireRole(auth.RoleStudent))
	student.GET("/dashboard", h.dashboard)
	student.GET("/courses", h.studentCourses)
	student.POST("/face", h.registerFace)
	student.POST("/face-image", h.registerFaceImage)
	student.POST("/attendance", h.markAttendance)
	student.POST("/attendance-image", h.markAttendanceImage)
	student.GET("/attendance", h.attendanceHistory)
	student.GET("/attendance/:id", h.attendanceRecord)

	notifications := protected.Group("/notifications", auth.RequireRole(auth.RoleStudent, auth.RoleAdmin))
	notifications.GET("", h.listNotifications)
	notifications.PUT("/:id/read", h.markNotificationRead)
}

// bind decodes the JSON body into dst and validates it.
func (h *handler) bind(c *gin.Context, dst interface{}) error {
	if err := json.NewDecoder(c.Request.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		if errors.Is(err, io.EOF) {
			return &ValidationError{Fields: map[string]string{"body": "request body is required"}}
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return &ValidationError{Fields: map[string]string{typeErr.Field: "has the wrong type"}}
		}
		return &ValidationError{Fields: map[string]string{"body": "request body must be valid JSON"}}
	}
	return h.validator.Struct(dst)
}

func (h *handler) subject(c *gin.Context) (string, bool) {
	id, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		fail(c, http.StatusUnauthorized, "unauthorized")
	}
	return id, ok
}

// recipient is the caller's inbox. The token role keeps student and admin
// ids apart.
func (h *handler) recipient(c *gin.Context) (notify.Recipient, bool) {
	id, ok := h.subject(c)
	if !ok {
		return notify.Recipient{}, false
	}
	role, _ := auth.GetRole(c.Request.Context())
	return notify.Recipient{Role: string(role), ID: id}, true
}

func (h *handler) registerAdmin(c *gin.Context) {
	var req adminRegisterRequest
	if err := h.bind(c, &req); err != nil {
		handleError(c, h.logger, err)
		return
	}
	session, err := h.deps.Auth.RegisterAdmin(c.Request.Context(), usecase.AdminRegistration{
		UniqueID: req.UniqueID,
		Name:     req.AdminName,
		Email:    req.Email,
		Password: req.Password,
		Level:    req.AdminLevel,
	})
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, newSessionResponse(session))
}

func (h *handler) loginAdmin(c *gin.Context) {
	var req adminLoginRequest
	if err := h.bind(c, &req); err != nil {
		handleError(c, h.logger, err)
		return
	}
	session, err := h.deps.Auth.LoginAdmin(c.Request.Context(), req.UniqueID, req.Password)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, newSessionResponse(session))
}

func (h *handler) loginStudent(c *gin.Context) {
	var req studentLoginRequest
	if err := h.bind(c, &req); err != nil {
		handleError(c, h.logger, err)
		return
	}
	session, err := h.deps.Auth.LoginStudent(c.Request.Context(), req.StudentID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, newSessionResponse(session))
}
