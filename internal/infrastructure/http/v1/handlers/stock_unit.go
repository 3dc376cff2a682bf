package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/id"
	"farmapos/internal/domain/catalogs/stockunit"
	"farmapos/internal/infrastructure/http/v1/dto"
)

// StockUnitHandler handles HTTP requests for the stock unit catalog.
type StockUnitHandler struct {
	*BaseHandler
	service *stockunit.Service
}

// NewStockUnitHandler creates a new stock unit handler.
func NewStockUnitHandler(base *BaseHandler, service *stockunit.Service) *StockUnitHandler {
	return &StockUnitHandler{
		BaseHandler: base,
		service:     service,
	}
}

// List handles GET /catalog/stock-units
func (h *StockUnitHandler) List(c *gin.Context) {
	filter := stockunit.ListFilter{
		Search:         c.Query("search"),
		ControlledOnly: c.Query("controlled") == "true",
		IncludeDeleted: c.Query("includeDeleted") == "true",
		ExcludeZero:    c.Query("excludeZero") == "true",
		Limit:          h.ParseIntQuery(c, "limit", 50),
		Offset:         h.ParseIntQuery(c, "offset", 0),
	}

	if beforeStr := c.Query("expiringBefore"); beforeStr != "" {
		parsed, err := time.Parse(time.RFC3339, beforeStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid expiringBefore format, expected RFC3339"))
			return
		}
		filter.ExpiringBefore = &parsed
	}

	units, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      dto.FromStockUnits(units),
		TotalCount: int64(len(units)),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// Create handles POST /catalog/stock-units
func (h *StockUnitHandler) Create(c *gin.Context) {
	var req dto.CreateStockUnitRequest
	if !h.BindJSON(c, &req) {
		return
	}

	unit := req.ToStockUnit()
	if err := h.service.Create(c.Request.Context(), unit); err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, unit.ID.String())
}

// Get handles GET /catalog/stock-units/:id
func (h *StockUnitHandler) Get(c *gin.Context) {
	unitID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	unit, err := h.service.GetByID(c.Request.Context(), unitID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromStockUnit(unit))
}

// Update handles PUT /catalog/stock-units/:id
func (h *StockUnitHandler) Update(c *gin.Context) {
	unitID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	var req dto.UpdateStockUnitRequest
	if !h.BindJSON(c, &req) {
		return
	}

	unit, err := h.service.GetByID(c.Request.Context(), unitID)
	if err != nil {
		h.Error(c, err)
		return
	}

	req.Apply(unit)
	if err := h.service.UpdateDetails(c.Request.Context(), unit); err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromStockUnit(unit))
}

// SetDeletionMark handles POST /catalog/stock-units/:id/deletion-mark
func (h *StockUnitHandler) SetDeletionMark(c *gin.Context) {
	unitID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	if err := h.service.MarkDeleted(c.Request.Context(), unitID); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "stock unit marked for deletion")
}

// Expiring handles GET /catalog/stock-units/expiring
func (h *StockUnitHandler) Expiring(c *gin.Context) {
	days := h.ParseIntQuery(c, "days", 90)
	if days <= 0 {
		h.Error(c, apperror.NewValidation("days must be positive"))
		return
	}

	units, err := h.service.ExpiringWithin(c.Request.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      dto.FromStockUnits(units),
		TotalCount: int64(len(units)),
	})
}
