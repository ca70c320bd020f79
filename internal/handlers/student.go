package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/face-attendance/internal/usecase"
)

func (h *handler) dashboard(c *gin.Context) {
	studentID, ok := h.subject(c)
	if !ok {
		return
	}
	d, err := h.deps.Attendance.Dashboard(c.Request.Context(), studentID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, newDashboardResponse(d))
}

func (h *handler) studentCourses(c *gin.Context) {
	studentID, ok := h.subject(c)
	if !ok {
		return
	}
	courses, err := h.deps.Attendance.Courses(c.Request.Context(), studentID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, newCourseResponses(courses))
}

func (h *handler) registerFace(c *gin.Context) {
	studentID, ok := h.subject(c)
	if !ok {
		return
	}
	var req faceRequest
	if err := h.bind(c, &req); err != nil {
		handleError(c, h.logger, err)
		return
	}
	if err := h.deps.Attendance.RegisterEmbedding(c.Request.Context(), studentID, req.FaceData); err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"faceRegistered": true})
}

func (h *handler) registerFaceImage(c *gin.Context) {
	studentID, ok := h.subject(c)
	if !ok {
		return
	}

	var (
		image []byte
		err   error
	)
	if isMultipart(c) {
		image, err = readImageFile(c)
	} else {
		var req faceImageRequest
		if err = h.bind(c, &req); err == nil {
			image, err = decodeBase64Image(req.ImageBase64)
		}
	}
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	if err := h.deps.Attendance.RegisterImage(c.Request.Context(), studentID, image); err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"faceRegistered": true})
}

func (h *handler) markAttendance(c *gin.Context) {
	studentID, ok := h.subject(c)
	if !ok {
		return
	}
	var req markRequest
	if err := h.bind(c, &req); err != nil {
		handleError(c, h.logger, err)
		return
	}
	rec, err := h.deps.Attendance.Mark(c.Request.Context(), studentID, usecase.MarkRequest{
		CourseCode: req.CourseCode,
		Embedding:  req.FaceData,
		Location:   req.Location.toDomain(),
		Notes:      req.Notes,
	})
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, newRecordResponse(rec))
}

// markAttendanceImage accepts JSON with imageBase64 or a multipart form with
// an "image" file.
func (h *handler) markAttendanceImage(c *gin.Context) {
	studentID, ok := h.subject(c)
	if !ok {
		return
	}

	var (
		req   markImageRequest
		image []byte
		err   error
	)
	if isMultipart(c) {
		if err = c.ShouldBind(&req); err != nil {
			err = formError(err)
		} else if err = h.validator.Struct(&req); err == nil {
			image, err = readImageFile(c)
		}
	} else if err = h.bind(c, &req); err == nil {
		image, err = decodeBase64Image(req.ImageBase64)
	}
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	rec, err := h.deps.Attendance.Mark(c.Request.Context(), studentID, usecase.MarkRequest{
		CourseCode: req.CourseCode,
		Image:      image,
		Location:   req.Location.toDomain(),
		Notes:      req.Notes,
	})
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, newRecordResponse(rec))
}

func (h *handler) attendanceHistory(c *gin.Context) {
	studentID, ok := h.subject(c)
	if !ok {
		return
	}
	records, err := h.deps.Attendance.History(c.Request.Context(), studentID)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, newRecordResponses(records))
}

func (h *handler) attendanceRecord(c *gin.Context) {
	studentID, ok := h.subject(c)
	if !ok {
		return
	}
	rec, err := h.deps.Attendance.GetRecord(c.Request.Context(), studentID, c.Param("id"))
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, newRecordResponse(rec))
}

func (h *handler) listNotifications(c *gin.Context) {
	to, ok := h.recipient(c)
	if !ok {
		return
	}
	inbox, err := h.deps.Notifications.Inbox(c.Request.Context(), to)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, inbox)
}

func (h *handler) markNotificationRead(c *gin.Context) {
	to, ok := h.recipient(c)
	if !ok {
		return
	}
	if err := h.deps.Notifications.MarkRead(c.Request.Context(), to, c.Param("id")); err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": c.Param("id"), "read": true})
}
