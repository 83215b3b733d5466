package validator

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "whatsapp-agent/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `openapi: 3.0.3
info:
  title: test
  version: 1.0.0
paths:
  /admin/approvals/{id}/edit:
    post:
      parameters:
        - name: id
          in: path
          required: true
          schema:
            type: string
            format: uuid
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [draft]
              properties:
                draft:
                  type: string
                  minLength: 1
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: object
                required: [result]
                properties:
                  result:
                    type: string
                    enum: [applied, unchanged]
`

func writeSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "openapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSchema), 0o644))
	return path
}

func newValidatedEngine(t *testing.T) (*gin.Engine, *OpenAPIValidator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	v, err := NewOpenAPIValidator(writeSchema(t))
	require.NoError(t, err)

	r := gin.New()
	r.Use(apperrors.ErrorHandler())
	r.Use(v.Middleware())
	r.POST("/admin/approvals/:id/edit", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"result": "applied"})
	})
	r.GET("/unlisted", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r, v
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddlewareValidatesRequests(t *testing.T) {
	r, _ := newValidatedEngine(t)
	const path = "/admin/approvals/5f0c2f4e-3f2a-4b8e-9d7c-1a2b3c4d5e6f/edit"

	w := post(r, path, `{"draft":"Thanks for waiting"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = post(r, path, `{"draft":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_REQUEST")

	w = post(r, path, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMiddlewareSkipsUnlistedRoutes(t *testing.T) {
	r, _ := newValidatedEngine(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unlisted", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidateResponse(t *testing.T) {
	_, v := newValidatedEngine(t)
	req := httptest.NewRequest(http.MethodPost, "/admin/approvals/5f0c2f4e-3f2a-4b8e-9d7c-1a2b3c4d5e6f/edit", nil)
	header := http.Header{"Content-Type": []string{"application/json"}}

	assert.NoError(t, v.ValidateResponse(req, http.StatusOK, header, []byte(`{"result":"applied"}`)))
	assert.Error(t, v.ValidateResponse(req, http.StatusOK, header, []byte(`{"result":"maybe"}`)))
}

func TestNewOpenAPIValidatorMissingFile(t *testing.T) {
	_, err := NewOpenAPIValidator(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestAdminSchemaLoads(t *testing.T) {
	v, err := NewOpenAPIValidator(filepath.Join("..", "..", "api", "openapi.yaml"))
	require.NoError(t, err)
	assert.Greater(t, v.Operations(), 5)
}
