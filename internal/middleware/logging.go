package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Pranjal0410/real-estate-project-sub000/internal/logger"
	"github.com/Pranjal0410/real-estate-project-sub000/internal/uuid"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
)

// RequestID returns the id assigned to the current request by RequestLogging.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequestLogging logs each request once it completes. An X-Request-ID sent by
// the client is reused so retries of one command correlate in the logs.
func RequestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.New()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		c.Next()

		fields := []interface{}{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if userID := c.GetString(ContextUserID); userID != "" {
			fields = append(fields, "user_id", userID)
		}
		if key := c.GetHeader("Idempotency-Key"); key != "" {
			fields = append(fields, "idempotency_key", key)
		}
		logger.Named("http").Infow("request", fields...)
	}
}
