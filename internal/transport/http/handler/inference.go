package handler

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"cortex/internal/app"
	"cortex/internal/pkg/textextract"
	"cortex/internal/transport/http/response"
)

// Inference is the subset of app.InferenceService the gateway routes need.
type Inference interface {
	Chat(ctx context.Context, userID uint, message string) (*app.ChatResult, error)
	IngestFile(ctx context.Context, userID uint, filename, text string) (*app.IngestResult, error)
	IngestURL(ctx context.Context, userID uint, rawURL string) (*app.IngestResult, error)
}

// InferenceHandler answers /chat, /upload and /crawl. Successful bodies are
// the bare payloads the client decodes, not the envelope.
type InferenceHandler struct {
	inference      Inference
	maxUploadBytes int64
}

type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

type CrawlRequest struct {
	URL string `json:"url" binding:"required"`
}

func NewInferenceHandler(inference Inference, maxUploadBytes int64) *InferenceHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &InferenceHandler{inference: inference, maxUploadBytes: maxUploadBytes}
}

func (h *InferenceHandler) Chat(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.inference.Chat(c.Request.Context(), userID, req.Message)
	if err != nil {
		writeInferenceError(c, err, "chat failed")
		return
	}

	c.JSON(http.StatusOK, result)
}

// Upload accepts a multipart form with "file" and ingests its text.
func (h *InferenceHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > h.maxUploadBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, "file too large")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	filename := filepath.Base(file.Filename)
	text, err := textextract.FromFile(filename, f)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to extract text: "+err.Error())
		return
	}

	result, err := h.inference.IngestFile(c.Request.Context(), userID, filename, strings.TrimSpace(text))
	if err != nil {
		writeInferenceError(c, err, "upload failed")
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *InferenceHandler) Crawl(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CrawlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.inference.IngestURL(c.Request.Context(), userID, req.URL)
	if err != nil {
		writeInferenceError(c, err, "crawl failed")
		return
	}

	c.JSON(http.StatusOK, result)
}

func writeInferenceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrEmptyDocument):
		response.Error(c, http.StatusBadRequest, response.CodeEmptyDocument, err.Error())
	case errors.Is(err, app.ErrCrawlFailed):
		response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailed, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
