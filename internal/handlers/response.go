package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/face-attendance/internal/attendance"
	"github.com/example/face-attendance/internal/faceoracle"
	"github.com/example/face-attendance/internal/usecase"
)

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": message})
}

func failFields(c *gin.Context, message string, fields map[string]string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": message, "fields": fields})
}

// handleError maps domain errors onto HTTP statuses. Anything unrecognized is
// logged and reported as a 500 without detail.
func handleError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		reqErr   *ValidationError
		useErr   *usecase.ValidationError
		rejected *attendance.Rejection
		verErr   *faceoracle.VerificationError
	)

	switch {
	case errors.As(err, &reqErr):
		failFields(c, "validation failed", reqErr.Fields)
	case errors.As(err, &useErr):
		failFields(c, useErr.Error(), map[string]string{useErr.Field: useErr.Message})
	case errors.Is(err, errImageTooLarge), errors.Is(err, errBodyTooLarge):
		fail(c, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, errUnsupportedImage):
		fail(c, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, errImageMissing), errors.Is(err, errImageEncoding):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &rejected):
		if rejected.Reason == attendance.ReasonCourseNotFound {
			fail(c, http.StatusNotFound, string(rejected.Reason))
			return
		}
		fail(c, http.StatusBadRequest, string(rejected.Reason))
	case errors.Is(err, faceoracle.ErrProviderDisabled):
		fail(c, http.StatusServiceUnavailable, "face provider not configured")
	case errors.As(err, &verErr):
		logger.Info("face verification failed", zap.Error(err))
		fail(c, http.StatusBadRequest, string(attendance.ReasonVerificationFailed))
	case errors.Is(err, usecase.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, usecase.ErrStudentNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, attendance.ErrNotFound):
		fail(c, http.StatusNotFound, "not found")
	case errors.Is(err, attendance.ErrAlreadyExists):
		fail(c, http.StatusConflict, "already exists")
	default:
		logger.Error("request failed", zap.Error(err), zap.String("path", c.FullPath()))
		fail(c, http.StatusInternalServerError, "internal server error")
	}
}
