package api

import (
	"net/http"
	"strings"

	apperrors "whatsapp-agent/backend/pkg/errors"
	"whatsapp-agent/backend/pkg/jwt"
	"whatsapp-agent/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// LoginRequest exchanges the admin key for a token
type LoginRequest struct {
	Key     string `json:"key" binding:"required"`
	Subject string `json:"subject"`
}

// LoginResponse carries an issued token
type LoginResponse struct {
	Token     string   `json:"token"`
	Role      jwt.Role `json:"role"`
	ExpiresIn int64    `json:"expires_in"`
}

// AuthHandler handles admin authentication
type AuthHandler struct {
	keyHash    []byte
	jwtService *jwt.Service
	logger     *logger.Logger
}

// NewAuthHandler creates a new auth handler. keyHash is the bcrypt hash of the admin key; empty disables login.
func NewAuthHandler(keyHash string, jwtService *jwt.Service, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{
		keyHash:    []byte(keyHash),
		jwtService: jwtService,
		logger:     logger,
	}
}

// Login checks the admin key and issues an admin token
func (h *AuthHandler) Login(c *gin.Context) {
	if len(h.keyHash) == 0 {
		abort(c, apperrors.NewServiceUnavailableError("ADMIN_DISABLED", "Admin login is not configured"))
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Error binding JSON for login", "error", err.Error())
		abort(c, apperrors.NewBadRequestError("INVALID_REQUEST", "Invalid request format"))
		return
	}

	if err := bcrypt.CompareHashAndPassword(h.keyHash, []byte(req.Key)); err != nil {
		h.logger.Warn("Admin login rejected", "client_ip", c.ClientIP())
		abort(c, apperrors.NewUnauthorizedError("INVALID_CREDENTIALS", "Invalid admin key"))
		return
	}

	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = "admin"
	}
	token, err := h.jwtService.GenerateToken(subject, jwt.RoleAdmin)
	if err != nil {
		h.logger.LogError(err, "Error issuing token")
		abort(c, apperrors.NewInternalServerError("TOKEN_FAILED", "Failed to issue token"))
		return
	}

	h.logger.Info("Admin login", "subject", subject)
	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		Role:      jwt.RoleAdmin,
		ExpiresIn: int64(h.jwtService.Expiry().Seconds()),
	})
}
