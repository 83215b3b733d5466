package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"whatsapp-agent/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAuthRouter(t *testing.T, keyHash string, svc *jwt.Service) *gin.Engine {
	t.Helper()
	r := newTestEngine()
	r.POST("/login", NewAuthHandler(keyHash, svc, testLogger()).Login)
	return r
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	svc := jwt.NewService("test-secret", time.Hour)
	r := newAuthRouter(t, string(hash), svc)

	w := perform(r, http.MethodPost, "/login", `{"key":"s3cret","subject":"ops"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, jwt.RoleAdmin, resp.Role)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.True(t, claims.HasRole(jwt.RoleAdmin))
}

func TestLoginRejected(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	r := newAuthRouter(t, string(hash), jwt.NewService("test-secret", time.Hour))

	w := perform(r, http.MethodPost, "/login", `{"key":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = perform(r, http.MethodPost, "/login", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginDisabled(t *testing.T) {
	r := newAuthRouter(t, "", jwt.NewService("test-secret", time.Hour))

	w := perform(r, http.MethodPost, "/login", `{"key":"anything"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
