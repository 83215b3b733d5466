package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.GenerateToken("ops", RoleReviewer)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, RoleReviewer, claims.Role)
	assert.True(t, claims.HasPermission(PermWriteApprovals))
	assert.False(t, claims.HasPermission(PermWriteDocuments))
	assert.True(t, claims.HasRole(RoleReviewer))
	assert.False(t, claims.HasRole(RoleAdmin))
}

func TestAdminHoldsEveryRole(t *testing.T) {
	claims := &JWTClaims{Role: RoleAdmin}
	assert.True(t, claims.HasRole(RoleViewer))
	assert.True(t, claims.HasPermission(PermWriteDocuments))
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	token, err := NewService("one", time.Hour).GenerateToken("ops", RoleAdmin)
	require.NoError(t, err)

	_, err = NewService("two", time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateExpired(t *testing.T) {
	svc := NewService("secret", -time.Minute)
	token, err := svc.GenerateToken("ops", RoleAdmin)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("viewer")
	assert.True(t, ok)
	assert.Equal(t, RoleViewer, role)

	_, ok = ParseRole("root")
	assert.False(t, ok)
}

func TestValidateRejectsUnknownRole(t *testing.T) {
	svc := NewService("secret", time.Hour)
	token, err := svc.GenerateToken("ops", Role("root"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokensCarryDistinctIDs(t *testing.T) {
	svc := NewService("secret", time.Hour)
	first, err := svc.GenerateToken("ops", RoleViewer)
	require.NoError(t, err)
	second, err := svc.GenerateToken("ops", RoleViewer)
	require.NoError(t, err)

	a, err := svc.ValidateToken(first)
	require.NoError(t, err)
	b, err := svc.ValidateToken(second)
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}
