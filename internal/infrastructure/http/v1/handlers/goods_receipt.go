package handlers

import (
	"github.com/gin-gonic/gin"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/id"
	"farmapos/internal/domain/settlement"
	"farmapos/internal/infrastructure/http/v1/dto"
	"farmapos/internal/infrastructure/storage/postgres"
	"farmapos/pkg/logger"
)

// GoodsReceiptHandler handles HTTP requests for goods intake.
type GoodsReceiptHandler struct {
	*BaseHandler
	engine *settlement.Engine
	audit  *postgres.AuditService
}

// NewGoodsReceiptHandler creates a new goods receipt handler.
func NewGoodsReceiptHandler(base *BaseHandler, engine *settlement.Engine, audit *postgres.AuditService) *GoodsReceiptHandler {
	return &GoodsReceiptHandler{
		BaseHandler: base,
		engine:      engine,
		audit:       audit,
	}
}

// Receive handles POST /goods-receipts
func (h *GoodsReceiptHandler) Receive(c *gin.Context) {
	var req settlement.ReceiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	receipt, err := h.engine.ReceiveStock(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}

	if h.audit != nil {
		ctx := c.Request.Context()
		if err := h.audit.LogChange(ctx, "goods_receipt", receipt.ID, postgres.AuditActionReceive, map[string]any{
			"number":        receipt.Number,
			"stock_unit_id": receipt.StockUnitID.String(),
			"quantity":      receipt.Quantity.Int64(),
		}); err != nil {
			logger.Warn(ctx, "audit log failed", "entity_id", receipt.ID, "error", err)
		}
	}
	h.CreatedWith(c, receipt)
}

// Get handles GET /goods-receipts/:id
func (h *GoodsReceiptHandler) Get(c *gin.Context) {
	receiptID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	receipt, err := h.engine.GetReceipt(c.Request.Context(), receiptID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, receipt)
}

// List handles GET /goods-receipts
func (h *GoodsReceiptHandler) List(c *gin.Context) {
	unitStr := c.Query("stockUnitId")
	if unitStr == "" {
		h.Error(c, apperror.NewValidation("stockUnitId is required"))
		return
	}
	stockUnitID, err := id.Parse(unitStr)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid stockUnitId format"))
		return
	}

	limit := h.ParseIntQuery(c, "limit", 50)
	offset := h.ParseIntQuery(c, "offset", 0)

	receipts, err := h.engine.ListReceipts(c.Request.Context(), stockUnitID, limit, offset)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      receipts,
		TotalCount: int64(len(receipts)),
		Limit:      limit,
		Offset:     offset,
	})
}
