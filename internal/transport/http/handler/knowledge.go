package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cortex/internal/app"
	"cortex/internal/transport/http/response"
)

// KnowledgeHandler serves the raw document rows and the audit trail.
type KnowledgeHandler struct {
	knowledgeService *app.KnowledgeService
	auditService     *app.AuditService
}

type RecordAuditRequest struct {
	Action  string `json:"action" binding:"required,max=64"`
	Details string `json:"details" binding:"max=1024"`
}

func NewKnowledgeHandler(knowledgeService *app.KnowledgeService, auditService *app.AuditService) *KnowledgeHandler {
	return &KnowledgeHandler{knowledgeService: knowledgeService, auditService: auditService}
}

func (h *KnowledgeHandler) ListDocuments(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	docs, err := h.knowledgeService.ListDocuments(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}

	response.OK(c, docs)
}

func (h *KnowledgeHandler) RecordAudit(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req RecordAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	entry, err := h.auditService.Record(c.Request.Context(), userID, req.Action, req.Details)
	if err != nil {
		writeConversationError(c, err, "record audit log failed")
		return
	}

	response.Accepted(c, entry)
}

func (h *KnowledgeHandler) ListAudit(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	limit := 5
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	entries, err := h.auditService.Recent(userID, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list audit logs failed")
		return
	}

	response.OK(c, entries)
}
