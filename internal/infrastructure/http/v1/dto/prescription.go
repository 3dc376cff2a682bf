package dto

import (
	"time"

	"farmapos/internal/core/entity"
	"farmapos/internal/core/id"
	"farmapos/internal/core/types"
	"farmapos/internal/domain/prescriptions"
)

// --- Prescription DTOs ---

// PrescriptionItemRequest is one prescribed line.
type PrescriptionItemRequest struct {
	StockUnitID         id.ID `json:"stockUnitId" binding:"required"`
	Quantity            int64 `json:"quantity" binding:"required,gt=0"`
	SubstitutionAllowed bool  `json:"substitutionAllowed,omitempty"`
}

// CreatePrescriptionRequest registers a paper prescription in the system.
type CreatePrescriptionRequest struct {
	PatientName    string                    `json:"patientName" binding:"required"`
	PrescriberName string                    `json:"prescriberName" binding:"required"`
	PrescriberRef  string                    `json:"prescriberRef,omitempty"`
	IssuedDate     time.Time                 `json:"issuedDate" binding:"required"`
	ExpiryDate     time.Time                 `json:"expiryDate" binding:"required"`
	Items          []PrescriptionItemRequest `json:"items" binding:"required,min=1,dive"`
}

// ToPrescription builds the domain document from the request.
func (r CreatePrescriptionRequest) ToPrescription() *prescriptions.Prescription {
	p := &prescriptions.Prescription{
		BaseDocument:   entity.NewBaseDocument(),
		PatientName:    r.PatientName,
		PrescriberName: r.PrescriberName,
		PrescriberRef:  r.PrescriberRef,
		IssuedDate:     r.IssuedDate,
		ExpiryDate:     r.ExpiryDate,
	}
	p.Items = make([]prescriptions.PrescriptionItem, len(r.Items))
	for i, item := range r.Items {
		p.Items[i] = prescriptions.PrescriptionItem{
			StockUnitID:         item.StockUnitID,
			QuantityPrescribed:  types.Quantity(item.Quantity),
			SubstitutionAllowed: item.SubstitutionAllowed,
		}
	}
	return p
}
