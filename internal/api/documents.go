package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"whatsapp-agent/backend/internal/docstore"
	apperrors "whatsapp-agent/backend/pkg/errors"
	"whatsapp-agent/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// DocumentIndex is the knowledge base the admin API manages
type DocumentIndex interface {
	Add(ctx context.Context, docs []docstore.Document) (int, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Search(ctx context.Context, query string, k int) ([]docstore.Result, error)
}

// AddDocumentRequest is raw text to chunk and index
type AddDocumentRequest struct {
	Text   string `json:"text" binding:"required"`
	Source string `json:"source"`
}

// DocumentHandler manages the knowledge base
type DocumentHandler struct {
	index        DocumentIndex
	chunkSize    int
	chunkOverlap int
	logger       *logger.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(index DocumentIndex, chunkSize, chunkOverlap int, logger *logger.Logger) *DocumentHandler {
	return &DocumentHandler{index: index, chunkSize: chunkSize, chunkOverlap: chunkOverlap, logger: logger}
}

// RegisterRoutes registers the document routes
func (h *DocumentHandler) RegisterRoutes(router gin.IRoutes, read, write gin.HandlerFunc) {
	router.POST("/documents", write, h.Add)
	router.DELETE("/documents", write, h.Clear)
	router.GET("/documents/search", read, h.Search)
}

// Add chunks and indexes a text
func (h *DocumentHandler) Add(c *gin.Context) {
	var req AddDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, apperrors.BadRequestWithDetails("INVALID_REQUEST", "Document text is required", err.Error()))
		return
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = "api"
	}

	chunks := docstore.Chunk(req.Text, h.chunkSize, h.chunkOverlap)
	docs := make([]docstore.Document, 0, len(chunks))
	for i, chunk := range chunks {
		docs = append(docs, docstore.Document{Text: chunk, Source: source, ChunkIndex: i})
	}

	added, err := h.index.Add(c.Request.Context(), docs)
	if err != nil {
		h.logger.LogError(err, "Failed to index document", "source", source)
		abort(c, apperrors.NewInternalServerError("INDEX_FAILED", "Failed to index document"))
		return
	}
	total, _ := h.index.Count(c.Request.Context())
	c.JSON(http.StatusCreated, gin.H{"chunks_added": added, "total_chunks": total})
}

// Clear removes every indexed chunk
func (h *DocumentHandler) Clear(c *gin.Context) {
	if err := h.index.Clear(c.Request.Context()); err != nil {
		h.logger.LogError(err, "Failed to clear documents")
		abort(c, apperrors.NewInternalServerError("CLEAR_FAILED", "Failed to clear documents"))
		return
	}
	c.Status(http.StatusNoContent)
}

// Search returns the k chunks most relevant to q
func (h *DocumentHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		abort(c, apperrors.NewBadRequestError("INVALID_QUERY", "q is required"))
		return
	}
	k := docstore.DefaultK
	if raw := c.Query("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 50 {
			abort(c, apperrors.NewBadRequestError("INVALID_K", "k must be between 1 and 50"))
			return
		}
		k = parsed
	}

	results, err := h.index.Search(c.Request.Context(), query, k)
	if err != nil {
		h.logger.LogError(err, "Document search failed")
		abort(c, apperrors.NewInternalServerError("SEARCH_FAILED", "Document search failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}
