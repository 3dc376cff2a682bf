package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/entity"
	"farmapos/internal/core/id"
	"farmapos/internal/domain/registers/stock"
	"farmapos/internal/infrastructure/http/v1/dto"
)

// StockRegisterHandler handles HTTP requests for the stock register.
// All writes to the register happen inside settlement transactions;
// this handler is read-only.
type StockRegisterHandler struct {
	*BaseHandler
	service *stock.Service
}

// NewStockRegisterHandler creates a new stock register handler.
func NewStockRegisterHandler(base *BaseHandler, service *stock.Service) *StockRegisterHandler {
	return &StockRegisterHandler{
		BaseHandler: base,
		service:     service,
	}
}

// GetMovements handles GET /registers/stock/:stockUnitId/movements
func (h *StockRegisterHandler) GetMovements(c *gin.Context) {
	stockUnitID, err := id.Parse(c.Param("stockUnitId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid stockUnitId format"))
		return
	}

	filter := stock.MovementFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}

	if typeStr := c.Query("recordType"); typeStr != "" {
		recordType := entity.RecordType(typeStr)
		filter.RecordType = &recordType
	}

	if fromStr := c.Query("fromDate"); fromStr != "" {
		if parsed, err := time.Parse(time.RFC3339, fromStr); err == nil {
			filter.FromDate = &parsed
		}
	}
	if toStr := c.Query("toDate"); toStr != "" {
		if parsed, err := time.Parse(time.RFC3339, toStr); err == nil {
			filter.ToDate = &parsed
		}
	}

	movements, err := h.service.GetMovementHistory(c.Request.Context(), stockUnitID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      movements,
		TotalCount: int64(len(movements)),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// GetOnHand handles GET /registers/stock/:stockUnitId/on-hand
// Returns the balance at a historical date when the date query
// parameter is provided, otherwise the current cached quantity.
func (h *StockRegisterHandler) GetOnHand(c *gin.Context) {
	stockUnitID, err := id.Parse(c.Param("stockUnitId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid stockUnitId format"))
		return
	}

	if dateStr := c.Query("date"); dateStr != "" {
		date, err := time.Parse(time.RFC3339, dateStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid date format, expected RFC3339"))
			return
		}
		quantity, err := h.service.GetBalanceAtDate(c.Request.Context(), stockUnitID, date)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, gin.H{
			"stockUnitId": stockUnitID.String(),
			"date":        date,
			"onHand":      quantity.Int64(),
		})
		return
	}

	quantity, err := h.service.GetOnHand(c.Request.Context(), stockUnitID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, gin.H{
		"stockUnitId": stockUnitID.String(),
		"onHand":      quantity.Int64(),
	})
}
