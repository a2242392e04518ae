package utils

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"intake/models"
	"intake/repository"
)

// SendJSONError sends a standardized JSON error response and logs the
// underlying error. Service errors carry their machine-readable code to the
// client; for anything else the public message is generic and the detail
// stays in the log.
func SendJSONError(c *gin.Context, log *zap.Logger, statusCode int, err error) {
	response := gin.H{"error": "An unexpected error occurred. Please try again later."}

	var svcErr *models.ServiceError
	if errors.As(err, &svcErr) {
		response["error"] = svcErr.Message
		response["code"] = svcErr.Code
	}

	if statusCode >= http.StatusInternalServerError {
		log.Error("Handler error",
			zap.Int("status", statusCode),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	} else {
		log.Info("Request rejected",
			zap.Int("status", statusCode),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}

	c.AbortWithStatusJSON(statusCode, response)
}

// StatusForError maps a service error to its HTTP status. Unknown errors
// are treated as internal.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrAssessmentNotFound),
		errors.Is(err, models.ErrQuestionNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidResponse):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDuplicateResponse),
		errors.Is(err, models.ErrAssessmentActive),
		errors.Is(err, models.ErrCannotPause),
		errors.Is(err, models.ErrCannotResume),
		errors.Is(err, models.ErrAssessmentCompleted),
		errors.Is(err, models.ErrAssessmentPaused),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FormatTime formats timestamps for API payloads.
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
