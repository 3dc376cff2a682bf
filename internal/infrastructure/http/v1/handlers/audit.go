package handlers

import (
	"github.com/gin-gonic/gin"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/id"
	"farmapos/internal/infrastructure/http/v1/dto"
	"farmapos/internal/infrastructure/storage/postgres"
)

// AuditHandler exposes the audit trail, read-only.
type AuditHandler struct {
	*BaseHandler
	audit *postgres.AuditService
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(base *BaseHandler, audit *postgres.AuditService) *AuditHandler {
	return &AuditHandler{
		BaseHandler: base,
		audit:       audit,
	}
}

// EntityHistory handles GET /audit/:entityType/:entityId
func (h *AuditHandler) EntityHistory(c *gin.Context) {
	entityType := c.Param("entityType")
	if entityType == "" {
		h.Error(c, apperror.NewValidation("entityType is required"))
		return
	}

	entityID, err := id.Parse(c.Param("entityId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid entityId format"))
		return
	}

	limit := h.ParseIntQuery(c, "limit", 100)

	entries, err := h.audit.GetEntityHistory(c.Request.Context(), entityType, entityID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      entries,
		TotalCount: int64(len(entries)),
		Limit:      limit,
	})
}
