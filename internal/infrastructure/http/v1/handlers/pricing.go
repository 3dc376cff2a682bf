package handlers

import (
	"github.com/gin-gonic/gin"

	"farmapos/internal/domain/pricing"
	"farmapos/internal/infrastructure/http/v1/dto"
)

// PricingHandler exposes the active discount rule set.
type PricingHandler struct {
	*BaseHandler
	evaluator *pricing.Evaluator
}

// NewPricingHandler creates a new pricing handler.
func NewPricingHandler(base *BaseHandler, evaluator *pricing.Evaluator) *PricingHandler {
	return &PricingHandler{
		BaseHandler: base,
		evaluator:   evaluator,
	}
}

// Rules handles GET /pricing/rules
func (h *PricingHandler) Rules(c *gin.Context) {
	rules := h.evaluator.Rules()
	h.OK(c, dto.ListResponse{
		Items:      rules,
		TotalCount: int64(len(rules)),
	})
}
