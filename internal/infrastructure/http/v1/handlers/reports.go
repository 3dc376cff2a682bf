package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/id"
	"farmapos/internal/domain/reports"
)

// ReportsHandler serves the read-only reports.
type ReportsHandler struct {
	*BaseHandler
	service *reports.Service
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, service *reports.Service) *ReportsHandler {
	return &ReportsHandler{BaseHandler: base, service: service}
}

// SalesSummary handles GET /reports/sales-summary.
func (h *ReportsHandler) SalesSummary(c *gin.Context) {
	from, to, ok := h.parsePeriod(c, true)
	if !ok {
		return
	}

	filter := reports.SalesSummaryFilter{FromDate: from, ToDate: to}
	if raw := c.Query("customerId"); raw != "" {
		customerID, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid customerId").WithDetail("value", raw))
			return
		}
		filter.CustomerID = &customerID
	}

	report, err := h.service.GetSalesSummary(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// StockValuation handles GET /reports/stock-valuation.
func (h *ReportsHandler) StockValuation(c *gin.Context) {
	filter := reports.StockValuationFilter{
		ExcludeZero:    c.Query("excludeZero") == "true",
		ControlledOnly: c.Query("controlled") == "true",
		Limit:          h.ParseIntQuery(c, "limit", 100),
		Offset:         h.ParseIntQuery(c, "offset", 0),
	}

	report, err := h.service.GetStockValuation(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// StockTurnover handles GET /reports/stock-turnover.
func (h *ReportsHandler) StockTurnover(c *gin.Context) {
	from, to, ok := h.parsePeriod(c, false)
	if !ok {
		return
	}

	filter := reports.StockTurnoverFilter{
		FromDate:    from,
		ToDate:      to,
		IncludeZero: c.Query("includeZero") == "true",
		Limit:       h.ParseIntQuery(c, "limit", 100),
		Offset:      h.ParseIntQuery(c, "offset", 0),
	}
	if raw := c.Query("stockUnitId"); raw != "" {
		unitID, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid stockUnitId").WithDetail("value", raw))
			return
		}
		filter.StockUnitIDs = []id.ID{unitID}
	}

	report, err := h.service.GetStockTurnover(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// parsePeriod reads from/to query params (RFC 3339).
func (h *ReportsHandler) parsePeriod(c *gin.Context, toRequired bool) (time.Time, time.Time, bool) {
	var from, to time.Time

	raw := c.Query("from")
	if raw == "" {
		h.Error(c, apperror.NewValidation("from is required"))
		return from, to, false
	}
	from, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid from date").WithDetail("value", raw))
		return from, to, false
	}

	raw = c.Query("to")
	if raw == "" {
		if toRequired {
			h.Error(c, apperror.NewValidation("to is required"))
			return from, to, false
		}
		return from, to, true
	}
	to, err = time.Parse(time.RFC3339, raw)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid to date").WithDetail("value", raw))
		return from, to, false
	}
	return from, to, true
}
