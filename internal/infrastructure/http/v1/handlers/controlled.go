package handlers

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"farmapos/internal/core/apperror"
	appctx "farmapos/internal/core/context"
	"farmapos/internal/core/id"
	"farmapos/internal/core/types"
	"farmapos/internal/domain/registers/controlled"
	"farmapos/internal/domain/settlement"
	"farmapos/internal/infrastructure/http/v1/dto"
	"farmapos/internal/infrastructure/storage/postgres"
	"farmapos/pkg/logger"
)

// ControlledHandler handles HTTP requests for the controlled substance
// register. Mutations are narrow: manual entries (transfers,
// adjustments, destruction) go through the settlement engine so stock
// moves with them, and existing entries can only be counter-signed.
type ControlledHandler struct {
	*BaseHandler
	service *controlled.Service
	engine  *settlement.Engine
	audit   *postgres.AuditService
}

// NewControlledHandler creates a new controlled register handler.
func NewControlledHandler(base *BaseHandler, service *controlled.Service, engine *settlement.Engine, audit *postgres.AuditService) *ControlledHandler {
	return &ControlledHandler{
		BaseHandler: base,
		service:     service,
		engine:      engine,
		audit:       audit,
	}
}

// controlledEntryRequest is the wire shape of a manual entry; the
// context payload is decoded against the declared entry type.
type controlledEntryRequest struct {
	StockUnitID id.ID           `json:"stockUnitId" binding:"required"`
	Type        string          `json:"type" binding:"required"`
	QuantityIn  types.Quantity  `json:"quantityIn,omitempty"`
	QuantityOut types.Quantity  `json:"quantityOut,omitempty"`
	Context     json.RawMessage `json:"context" binding:"required"`
}

// Append handles POST /registers/controlled
func (h *ControlledHandler) Append(c *gin.Context) {
	var req controlledEntryRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entryType := controlled.EntryType(req.Type)
	entryCtx, err := controlled.DecodeContext(entryType, req.Context)
	if err != nil {
		h.Error(c, apperror.NewValidation("context does not decode for this entry type").
			WithDetail("type", req.Type))
		return
	}

	entry, err := h.engine.RecordControlledEntry(c.Request.Context(), settlement.ControlledEntryRequest{
		StockUnitID: req.StockUnitID,
		Type:        entryType,
		QuantityIn:  req.QuantityIn,
		QuantityOut: req.QuantityOut,
		Context:     entryCtx,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	if h.audit != nil {
		ctx := c.Request.Context()
		if err := h.audit.LogChange(ctx, "controlled_entry", entry.ID, postgres.AuditActionCreate, map[string]any{
			"stock_unit_id": entry.StockUnitID.String(),
			"entry_no":      entry.EntryNo,
			"type":          string(entry.Type),
		}); err != nil {
			logger.Warn(ctx, "audit log failed", "entity_id", entry.ID, "error", err)
		}
	}
	h.CreatedWith(c, entry)
}

// List handles GET /registers/controlled
func (h *ControlledHandler) List(c *gin.Context) {
	filter := controlled.EntryFilter{
		UnverifiedOnly: c.Query("unverified") == "true",
		Limit:          h.ParseIntQuery(c, "limit", 100),
		Offset:         h.ParseIntQuery(c, "offset", 0),
	}

	if unitStr := c.Query("stockUnitId"); unitStr != "" {
		parsed, err := id.Parse(unitStr)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid stockUnitId format"))
			return
		}
		filter.StockUnitID = &parsed
	}

	if typeStr := c.Query("type"); typeStr != "" {
		entryType := controlled.EntryType(typeStr)
		filter.Type = &entryType
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

	entries, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      entries,
		TotalCount: int64(len(entries)),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// Get handles GET /registers/controlled/:id
func (h *ControlledHandler) Get(c *gin.Context) {
	entryID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	entry, err := h.service.GetByID(c.Request.Context(), entryID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, entry)
}

// Verify handles POST /registers/controlled/:id/verify
// The verifier is the authenticated operator; an entry cannot be
// counter-signed by the operator who recorded it.
func (h *ControlledHandler) Verify(c *gin.Context) {
	entryID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	verifierID := appctx.GetOperatorID(c.Request.Context())
	if verifierID == "" {
		h.Error(c, apperror.NewUnauthorized("authentication required"))
		return
	}

	entry, err := h.service.Verify(c.Request.Context(), entryID, verifierID)
	if err != nil {
		h.Error(c, err)
		return
	}

	if h.audit != nil {
		ctx := c.Request.Context()
		if err := h.audit.LogChange(ctx, "controlled_entry", entry.ID, postgres.AuditActionVerify, map[string]any{
			"stock_unit_id": entry.StockUnitID.String(),
			"entry_no":      entry.EntryNo,
		}); err != nil {
			logger.Warn(ctx, "audit log failed", "entity_id", entry.ID, "error", err)
		}
	}
	h.OK(c, entry)
}

// Chain handles GET /registers/controlled/stock-units/:stockUnitId/chain
func (h *ControlledHandler) Chain(c *gin.Context) {
	stockUnitID, err := id.Parse(c.Param("stockUnitId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid stockUnitId format"))
		return
	}

	entries, err := h.service.List(c.Request.Context(), controlled.EntryFilter{
		StockUnitID: &stockUnitID,
		Limit:       10000,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      entries,
		TotalCount: int64(len(entries)),
	})
}

// Reconcile handles GET /registers/controlled/stock-units/:stockUnitId/reconcile
// Walks the full chain and reports gaps, broken balance links and
// arithmetic errors.
func (h *ControlledHandler) Reconcile(c *gin.Context) {
	stockUnitID, err := id.Parse(c.Param("stockUnitId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid stockUnitId format"))
		return
	}

	result, err := h.service.Reconcile(c.Request.Context(), stockUnitID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, gin.H{
		"stockUnitId":   result.StockUnitID.String(),
		"entryCount":    result.EntryCount,
		"finalBalance":  result.FinalBalance.Int64(),
		"clean":         result.Clean(),
		"discrepancies": result.Discrepancies,
	})
}

// Balance handles GET /registers/controlled/stock-units/:stockUnitId/balance
func (h *ControlledHandler) Balance(c *gin.Context) {
	stockUnitID, err := id.Parse(c.Param("stockUnitId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid stockUnitId format"))
		return
	}

	balance, err := h.service.CurrentBalance(c.Request.Context(), stockUnitID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, gin.H{
		"stockUnitId": stockUnitID.String(),
		"balance":     balance.Int64(),
	})
}
