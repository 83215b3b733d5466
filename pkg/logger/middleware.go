package logger

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware stores a request-scoped logger under "logger" and logs each completed request.
// It reads the request ID set by the request ID middleware, falling back to the X-Request-ID header.
func Middleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetString("requestID")
		if requestID == "" {
			requestID = c.GetHeader("X-Request-ID")
		}
		reqLogger := logger.WithRequestID(requestID)

		c.Set("logger", reqLogger)
		c.Request = c.Request.WithContext(NewContext(c.Request.Context(), reqLogger))

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if subject := c.GetString("subject"); subject != "" {
			reqLogger = reqLogger.WithSubject(subject)
		}
		reqLogger.LogRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
