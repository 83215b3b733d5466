package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"whatsapp-agent/backend/pkg/errors"
	"whatsapp-agent/backend/pkg/jwt"
	"whatsapp-agent/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewRateLimiter(testLogger(), RateLimiterOptions{
		Limit:          1,
		Burst:          2,
		ExpiryDuration: time.Minute,
		KeyFunc:        func(c *gin.Context) string { return "client" },
	})
	r := gin.New()
	r.Use(errors.ErrorHandler(), limiter.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func newAuthRouter(svc *jwt.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(errors.ErrorHandler())
	auth := r.Group("/", JWTAuthMiddleware(svc, testLogger()))
	auth.GET("/read", RequirePermission(jwt.PermReadApprovals), func(c *gin.Context) {
		c.String(http.StatusOK, GetSubject(WithRequestContext(c.Request.Context(), c)))
	})
	auth.POST("/write", RequirePermission(jwt.PermWriteApprovals), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	auth.DELETE("/admin", RequireRole(jwt.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestJWTAuthAndPermissions(t *testing.T) {
	svc := jwt.NewService("secret", time.Hour)
	r := newAuthRouter(svc)

	viewer, err := svc.GenerateToken("viewer-1", jwt.RoleViewer)
	require.NoError(t, err)
	admin, err := svc.GenerateToken("admin-1", jwt.RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"missing token", http.MethodGet, "/read", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/read", "Bearer nope", http.StatusUnauthorized},
		{"viewer reads", http.MethodGet, "/read", "Bearer " + viewer, http.StatusOK},
		{"viewer cannot write", http.MethodPost, "/write", "Bearer " + viewer, http.StatusForbidden},
		{"admin writes", http.MethodPost, "/write", "Bearer " + admin, http.StatusNoContent},
		{"viewer is not admin", http.MethodDelete, "/admin", "Bearer " + viewer, http.StatusForbidden},
		{"token in query", http.MethodGet, "/read?token=" + viewer, "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestSubjectPropagates(t *testing.T) {
	svc := jwt.NewService("secret", time.Hour)
	token, err := svc.GenerateToken("ops", jwt.RoleViewer)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/read", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	newAuthRouter(svc).ServeHTTP(w, req)

	assert.Equal(t, "ops", w.Body.String())
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c.Request.Context())) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Body.String())
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Body.String())
	assert.Equal(t, w.Body.String(), w.Header().Get("X-Request-ID"))
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(testLogger(), RateLimiterOptions{
		Limit:          10,
		Burst:          10,
		ExpiryDuration: time.Minute,
	})

	start := time.Now()
	limiter.limiterFor("ip:1.1.1.1", start)
	limiter.limiterFor("ip:2.2.2.2", start.Add(30*time.Second))
	assert.Equal(t, 2, limiter.Clients())

	limiter.limiterFor("ip:2.2.2.2", start.Add(3*time.Minute))
	assert.Equal(t, 1, limiter.Clients())
}

func TestKeyBySubjectOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "ip:10.0.0.1", KeyBySubjectOrIP(c))

	c.Set("subject", "ops")
	assert.Equal(t, "sub:ops", KeyBySubjectOrIP(c))
}

func TestRequestIDMiddlewareSanitizesInvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c.Request.Context())) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "upstream-42", w.Body.String())
	assert.Equal(t, "upstream-42", w.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "bad id\twith spaces")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEqual(t, "bad id\twith spaces", w.Body.String())
	assert.Len(t, w.Body.String(), 36)
}
