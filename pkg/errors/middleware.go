package errors

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"whatsapp-agent/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	responseErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_error_responses_total",
		Help: "Error responses rendered by the error handler, by error code",
	}, []string{"code"})

	recoveredPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "http_panics_recovered_total",
		Help: "Handler panics turned into 500 responses",
	})
)

// ErrorHandler renders the first error a handler attached with c.Error as
// {"error":{"code","message","details"}}. Responses already written are left alone.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		appErr := FromError(c.Errors[0].Err)
		responseErrors.WithLabelValues(appErr.Code).Inc()

		level := slog.LevelWarn
		if appErr.StatusCode >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		requestLogger(c).Log(c.Request.Context(), level, "Request failed",
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"status_code", appErr.StatusCode,
			"error_code", appErr.Code,
			"error", c.Errors[0].Err.Error(),
		)

		if c.Writer.Written() {
			return
		}
		c.AbortWithStatusJSON(appErr.StatusCode, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			},
		})
	}
}

// RecoveryWithLogger turns a handler panic into a 500 and logs it with its stack
func RecoveryWithLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			recoveredPanics.Inc()
			stack := string(debug.Stack())
			requestLogger(c).Error("Panic recovered",
				"error", r,
				"stack", stack,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			var details any
			if gin.Mode() == gin.DebugMode {
				details = fmt.Sprintf("Panic: %v\n%s", r, stack)
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "SERVER_ERROR",
					"message": "The server encountered an unexpected error",
					"details": details,
				},
			})
		}()

		c.Next()
	}
}

func requestLogger(c *gin.Context) *logger.Logger {
	if l, ok := c.Get("logger"); ok {
		if log, ok := l.(*logger.Logger); ok {
			return log
		}
	}
	if log := logger.GetGlobal(); log != nil {
		return log
	}
	return logger.New(logger.DefaultConfig())
}
