package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"whatsapp-agent/backend/internal/whatsapp"
	apperrors "whatsapp-agent/backend/pkg/errors"
	"whatsapp-agent/backend/pkg/logger"
	"whatsapp-agent/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Hub-Signature-256"

// WebhookHandler receives WhatsApp Cloud API webhook calls
type WebhookHandler struct {
	dispatcher  *Dispatcher
	verifyToken string
	appSecret   string
	logger      *logger.Logger
}

// NewWebhookHandler creates a new webhook handler. An empty appSecret disables signature checks.
func NewWebhookHandler(dispatcher *Dispatcher, verifyToken, appSecret string, logger *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		dispatcher:  dispatcher,
		verifyToken: verifyToken,
		appSecret:   appSecret,
		logger:      logger,
	}
}

// RegisterRoutes registers the webhook routes
func (h *WebhookHandler) RegisterRoutes(router gin.IRoutes) {
	router.GET("/webhook", h.Verify)
	router.POST("/webhook", h.Receive)
}

// Verify answers the subscription handshake
func (h *WebhookHandler) Verify(c *gin.Context) {
	challenge, ok := whatsapp.VerifyChallenge(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
		h.verifyToken,
	)
	if !ok {
		h.logger.Warn("Webhook verification failed", "mode", c.Query("hub.mode"))
		abort(c, apperrors.NewForbiddenError("VERIFICATION_FAILED", "Webhook verification failed"))
		return
	}
	c.String(http.StatusOK, challenge)
}

// Receive acknowledges a delivery and hands its text messages to the dispatcher
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Warn("Error reading webhook body", "error", err.Error())
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Invalid payload"})
		return
	}

	if !whatsapp.VerifySignature(body, c.GetHeader(signatureHeader), h.appSecret) {
		abort(c, apperrors.NewUnauthorizedError("INVALID_SIGNATURE", "Webhook signature mismatch"))
		return
	}

	var payload whatsapp.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		// 200 so the platform does not keep redelivering a payload we can never read
		h.logger.Warn("Error decoding webhook payload", "error", err.Error())
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Invalid payload"})
		return
	}

	msgs := whatsapp.ParseMessages(&payload)
	if len(msgs) > 0 {
		ctx := middleware.WithRequestContext(context.WithoutCancel(c.Request.Context()), c)
		h.dispatcher.Dispatch(ctx, msgs)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "messages_received": len(msgs)})
}
