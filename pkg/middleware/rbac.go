package middleware

import (
	"strings"

	"whatsapp-agent/backend/pkg/errors"
	"whatsapp-agent/backend/pkg/jwt"
	"whatsapp-agent/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// Claims returns the token claims JWTAuthMiddleware stored on c
func Claims(c *gin.Context) (*jwt.JWTClaims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*jwt.JWTClaims)
	return claims, ok && claims != nil
}

// guard aborts with 401 when the request is unauthenticated and with deny when allow rejects the claims
func guard(allow func(*jwt.JWTClaims) bool, deny func() *errors.AppError) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authentication required"))
			c.Abort()
			return
		}
		if !allow(claims) {
			c.Error(deny())
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole lets through tokens holding role. Admin tokens hold every role.
func RequireRole(role jwt.Role) gin.HandlerFunc {
	return guard(
		func(claims *jwt.JWTClaims) bool { return claims.HasRole(role) },
		func() *errors.AppError {
			return errors.NewForbiddenError("INSUFFICIENT_ROLE", "Your role does not allow this operation")
		},
	)
}

// RequirePermission lets through tokens whose role grants permission
func RequirePermission(permission jwt.Permission) gin.HandlerFunc {
	return guard(
		func(claims *jwt.JWTClaims) bool { return claims.HasPermission(permission) },
		func() *errors.AppError {
			return errors.NewForbiddenError("INSUFFICIENT_PERMISSION", "You don't have permission to perform this operation").
				WithDetails(gin.H{"required": permission})
		},
	)
}

// JWTAuthMiddleware checks that the request has a valid JWT and adds claims to the context.
// The token is read from the Authorization header, or from the token query parameter for websocket upgrades.
func JWTAuthMiddleware(jwtService *jwt.Service, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authorization header is required"))
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			log.Warn("Invalid JWT token", "error", err.Error(), "path", c.Request.URL.Path)
			c.Error(errors.NewUnauthorizedError("INVALID_TOKEN", "Invalid or expired token"))
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Set("subject", claims.Subject)
		c.Set("role", claims.Role)
		if l, ok := c.Get("logger"); ok {
			if reqLogger, ok := l.(*logger.Logger); ok {
				c.Set("logger", reqLogger.WithSubject(claims.Subject))
			}
		}

		c.Next()
	}
}
