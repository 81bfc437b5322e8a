package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Pranjal0410/real-estate-project-sub000/internal/errors"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/logger"
)

// ErrorHandler renders the last error attached with c.Error as the standard
// envelope, unless a response was already written. Unknown errors become
// INTERNAL_ERROR.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		RespondError(c, c.Errors.Last().Err)
	}
}

// RespondError writes err as the standard envelope. Failures carrying an
// internal cause or a 5xx status are logged with the request id.
func RespondError(c *gin.Context, err error) {
	appErr := resolveAppError(err)

	if appErr.Internal != nil || appErr.StatusCode >= http.StatusInternalServerError {
		cause := err
		if appErr.Internal != nil {
			cause = appErr.Internal
		}
		logger.Named("http").Errorw("Request failed",
			"code", appErr.Code,
			"error", cause.Error(),
			"request_id", RequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
	}

	c.JSON(appErr.StatusCode, errorEnvelope(appErr))
}

func resolveAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.ErrInternalServer
}

func errorEnvelope(appErr *apperrors.AppError) gin.H {
	return gin.H{"error": gin.H{"code": appErr.Code, "message": appErr.Message}}
}
