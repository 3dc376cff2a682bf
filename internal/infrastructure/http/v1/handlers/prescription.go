package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/id"
	"farmapos/internal/domain/prescriptions"
	"farmapos/internal/infrastructure/http/v1/dto"
)

// PrescriptionHandler handles HTTP requests for prescriptions.
type PrescriptionHandler struct {
	*BaseHandler
	service *prescriptions.Service
}

// NewPrescriptionHandler creates a new prescription handler.
func NewPrescriptionHandler(base *BaseHandler, service *prescriptions.Service) *PrescriptionHandler {
	return &PrescriptionHandler{
		BaseHandler: base,
		service:     service,
	}
}

// Create handles POST /prescriptions
func (h *PrescriptionHandler) Create(c *gin.Context) {
	var req dto.CreatePrescriptionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p := req.ToPrescription()
	if err := h.service.Create(c.Request.Context(), p); err != nil {
		h.Error(c, err)
		return
	}

	h.CreatedWith(c, p)
}

// Get handles GET /prescriptions/:id
func (h *PrescriptionHandler) Get(c *gin.Context) {
	prescriptionID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	p, err := h.service.GetByID(c.Request.Context(), prescriptionID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, p)
}

// GetByNumber handles GET /prescriptions/by-number/:number
func (h *PrescriptionHandler) GetByNumber(c *gin.Context) {
	number := c.Param("number")
	if number == "" {
		h.Error(c, apperror.NewValidation("number is required"))
		return
	}

	p, err := h.service.GetByNumber(c.Request.Context(), number)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, p)
}

// List handles GET /prescriptions
func (h *PrescriptionHandler) List(c *gin.Context) {
	filter := prescriptions.ListFilter{
		PatientName: c.Query("patientName"),
		Limit:       h.ParseIntQuery(c, "limit", 50),
		Offset:      h.ParseIntQuery(c, "offset", 0),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		status := prescriptions.Status(statusStr)
		filter.Status = &status
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

	list, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      list,
		TotalCount: int64(len(list)),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// Cancel handles POST /prescriptions/:id/cancel
func (h *PrescriptionHandler) Cancel(c *gin.Context) {
	prescriptionID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	if err := h.service.Cancel(c.Request.Context(), prescriptionID); err != nil {
		h.Error(c, err)
		return
	}

	h.Success(c, "prescription cancelled")
}

// History handles GET /prescriptions/:id/history
func (h *PrescriptionHandler) History(c *gin.Context) {
	prescriptionID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format"))
		return
	}

	events, err := h.service.History(c.Request.Context(), prescriptionID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:      events,
		TotalCount: int64(len(events)),
	})
}
