package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/face-attendance/internal/attendance"
	"github.com/example/face-attendance/internal/usecase"
)

func (h *handler) createCourse(c *gin.Context) {
	var req courseRequest
	if err := h.bind(c, &req); err != nil {
		handleError(c, h.logger, err)
		return
	}
	course, err := h.deps.Admin.CreateCourse(c.Request.Context(), usecase.CourseInput{
		Code:        req.CourseCode,
		Name:        req.CourseName,
		Instructor:  req.Instructor,
		Department:  req.Department,
		Credits:     int(req.Credits),
		Description: req.Description,
		Schedule:    req.Schedule,
	})
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, newCourseResponse(course))
}

func (h *handler) listCourses(c *gin.Context) {
	courses, err := h.deps.Admin.ListCourses(c.Request.Context())
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, newCourseResponses(courses))
}

func (h *handler) deactivateCourse(c *gin.Context) {
	if err := h.deps.Admin.DeactivateCourse(c.Request.Context(), c.Param("code")); err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"courseCode": attendance.NormalizeCourseCode(c.Param("code")), "isActive": false})
}

func (h *handler) createStudent(c *gin.Context) {
	var req studentRequest
	if err := h.bind(c, &req); err != nil {
		handleError(c, h.logger, err)
		return
	}
	image, err := decodeOptionalImage("faceImage", req.FaceImage)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	student, err := h.deps.Admin.CreateStudent(c.Request.Context(), usecase.StudentInput{
		ID:        req.StudentID,
		Name:      req.StudentName,
		Email:     req.Email,
		Courses:   req.EnrolledCourses,
		FaceImage: image,
	})
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusCreated, newStudentResponse(student))
}

func (h *handler) listStudents(c *gin.Context) {
	students, err := h.deps.Admin.ListStudents(c.Request.Context())
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	out := make([]studentResponse, 0, len(students))
	for _, s := range students {
		out = append(out, newStudentResponse(s))
	}
	respond(c, http.StatusOK, out)
}

func (h *handler) deactivateStudent(c *gin.Context) {
	id := c.Param("id")
	if err := h.deps.Admin.DeactivateStudent(c.Request.Context(), id); err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"studentId": id, "isActive": false})
}

func (h *handler) listAttendance(c *gin.Context) {
	records, err := h.deps.Admin.ListAttendance(c.Request.Context(), c.Query("courseCode"), c.Query("date"))
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, newRecordResponses(records))
}
