package api

import (
	"context"
	"net/http"
	"strconv"

	"whatsapp-agent/backend/internal/models"
	apperrors "whatsapp-agent/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxListLimit = 500

// History answers message and action history queries
type History interface {
	MessageHistory(ctx context.Context, groupID string, limit int) ([]models.Message, error)
	ActionsForMessage(ctx context.Context, messageID uuid.UUID) ([]models.Action, error)
	RecentActions(ctx context.Context, limit int) ([]models.Action, error)
}

// MessageHandler exposes tracked messages and actions
type MessageHandler struct {
	history History
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(history History) *MessageHandler {
	return &MessageHandler{history: history}
}

// RegisterRoutes registers the history routes
func (h *MessageHandler) RegisterRoutes(router gin.IRoutes, read gin.HandlerFunc) {
	router.GET("/messages", read, h.List)
	router.GET("/messages/:id/actions", read, h.Actions)
	router.GET("/actions/recent", read, h.Recent)
}

// List returns messages newest first, optionally for one group
func (h *MessageHandler) List(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	messages, err := h.history.MessageHistory(c.Request.Context(), c.Query("group"), limit)
	if err != nil {
		abort(c, serviceError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "count": len(messages)})
}

// Actions returns the actions recorded for one message
func (h *MessageHandler) Actions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abort(c, apperrors.NewBadRequestError("INVALID_ID", "Message id must be a UUID"))
		return
	}
	actions, err := h.history.ActionsForMessage(c.Request.Context(), id)
	if err != nil {
		abort(c, serviceError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

// Recent returns the latest actions across all messages
func (h *MessageHandler) Recent(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	actions, err := h.history.RecentActions(c.Request.Context(), limit)
	if err != nil {
		abort(c, serviceError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions, "count": len(actions)})
}

// queryLimit parses ?limit=. Zero means the service default.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 || limit > maxListLimit {
		abort(c, apperrors.NewBadRequestError("INVALID_LIMIT", "limit must be between 0 and 500"))
		return 0, false
	}
	return limit, true
}
