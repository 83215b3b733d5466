package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

const (
	// RequestIDKey is the key for request ID values in contexts
	RequestIDKey contextKey = "requestID"
	// SubjectKey is the key for the authenticated token subject in contexts
	SubjectKey contextKey = "subject"
)

const maxRequestIDLen = 128

// RequestIDMiddleware tags each request with an ID, reusing a well-formed X-Request-ID from upstream.
// The ID is stored on the gin context, the request context and the response headers.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
			c.Request.Header.Set("X-Request-ID", requestID)
		}

		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), RequestIDKey, requestID))
		c.Header("X-Request-ID", requestID)
		c.Set("requestID", requestID)

		c.Next()
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}

// WithRequestContext copies the request-scoped values of c onto parent.
// Work that outlives the request starts from a detached parent and keeps its request ID this way.
func WithRequestContext(parent context.Context, c *gin.Context) context.Context {
	ctx := parent
	if requestID, exists := c.Get("requestID"); exists {
		ctx = context.WithValue(ctx, RequestIDKey, requestID)
	}
	if subject, exists := c.Get("subject"); exists {
		ctx = context.WithValue(ctx, SubjectKey, subject)
	}

	return ctx
}

// GetRequestID extracts the request ID from a context
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}

// GetSubject extracts the authenticated subject from a context
func GetSubject(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	subject, _ := ctx.Value(SubjectKey).(string)
	return subject
}
