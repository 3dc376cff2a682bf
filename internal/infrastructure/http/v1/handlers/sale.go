package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/id"
	"farmapos/internal/domain/settlement"
	"farmapos/internal/infrastructure/http/v1/dto"
	"farmapos/internal/infrastructure/storage/postgres"
	"farmapos/pkg/logger"
)

// SaleHandler handles HTTP requests for the settlement engine.
type SaleHandler struct {
	*BaseHandler
	engine *settlement.Engine
	audit  *postgres.AuditService
}

// NewSaleHandler creates a new sale handler.
func NewSaleHandler(base *BaseHandler, engine *settlement.Engine, audit *postgres.AuditService) *SaleHandler {
	return &SaleHandler{
		BaseHandler: base,
		engine:      engine,
		audit:       audit,
	}
}

// Settle handles POST /sales
func (h *SaleHandler) Settle(c *gin.Context) {
	var req settlement.SaleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sale, err := h.engine.SettleSale(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.auditLog(c, "sale", sale.ID, postgres.AuditActionSettle, map[string]any{
		"number": sale.Number,
		"total":  int64(sale.Total),
		"lines":  len(sale.Lines),
	})
	h.CreatedWith(c, sale)
}

// Dispense handles POST /sales/dispense
func (h *SaleHandler) Dispense(c *gin.Context) {
	var req settlement.DispenseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sale, err := h.engine.Dispense(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.auditLog(c, "sale", sale.ID, postgres.AuditActionDispense, map[string]any{
		"number":          sale.Number,
		"prescription_id": req.PrescriptionID.String(),
		"total":           int64(sale.Total),
	})
	h.CreatedWith(c, sale)
}

// VoidRequest carries the mandatory void reason.
type VoidRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Void handles POST /sales/:id/void
func (h *SaleHandler) Void(c *gin.Context) {
	saleID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req VoidRequest
	if !h.BindJSON(c, &req) {
		return
	}

	sale, err := h.engine.VoidSale(c.Request.Context(), saleID, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.auditLog(c, "sale", sale.ID, postgres.AuditActionVoid, map[string]any{
		"number": sale.Number,
		"reason": req.Reason,
	})
	h.OK(c, sale)
}

// Get handles GET /sales/:id
func (h *SaleHandler) Get(c *gin.Context) {
	saleID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	sale, err := h.engine.GetSale(c.Request.Context(), saleID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, sale)
}

// List handles GET /sales
func (h *SaleHandler) List(c *gin.Context) {
	filter := settlement.SaleFilter{
		Limit:  h.ParseIntQuery(c, "limit", 50),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}

	if custStr := c.Query("customerId"); custStr != "" {
		parsed, err := id.Parse(custStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid customerId format"))
			return
		}
		filter.CustomerID = &parsed
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := settlement.SaleStatus(statusStr)
		filter.Status = &status
	}

	if kindStr := c.Query("kind"); kindStr != "" {
		kind := settlement.SaleKind(kindStr)
		filter.Kind = &kind
	}

	if fromStr := c.Query("from"); fromStr != "" {
		if parsed, err := time.Parse(time.RFC3339, fromStr); err == nil {
			filter.From = &parsed
		}
	}
	if toStr := c.Query("to"); toStr != "" {
		if parsed, err := time.Parse(time.RFC3339, toStr); err == nil {
			filter.To = &parsed
		}
	}

	sales, err := h.engine.ListSales(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      sales,
		TotalCount: int64(len(sales)),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// auditLog records an operator-attributed audit entry. Failures are
// logged, not returned: the settlement already committed.
func (h *SaleHandler) auditLog(c *gin.Context, entityType string, entityID id.ID, action postgres.AuditAction, changes map[string]any) {
	if h.audit == nil {
		return
	}
	ctx := c.Request.Context()
	if err := h.audit.LogChange(ctx, entityType, entityID, action, changes); err != nil {
		logger.Warn(ctx, "audit log failed",
			"entity_type", entityType,
			"entity_id", entityID,
			"action", string(action),
			"error", err,
		)
	}
}
