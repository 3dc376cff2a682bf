// Package prescriptions manages prescriptions and the dispensing
// resolver that decides how much of each item may still be handed out.
package prescriptions

import (
	"context"
	"time"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/entity"
	"farmapos/internal/core/id"
	"farmapos/internal/core/types"
)

// Status is derived from item fulfilment and dates, except CANCELLED
// which is set explicitly and is terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPartial   Status = "PARTIAL"
	StatusDispensed Status = "DISPENSED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// Prescription is the document against which controlled and
// prescription-only medicines are dispensed.
type Prescription struct {
	entity.BaseDocument

	// Number is assigned by the RX numerator
	Number string `db:"number" json:"number"`

	PatientName    string `db:"patient_name" json:"patientName"`
	PrescriberName string `db:"prescriber_name" json:"prescriberName"`
	PrescriberRef  string `db:"prescriber_ref" json:"prescriberRef,omitempty"`

	IssuedDate time.Time `db:"issued_date" json:"issuedDate"`
	ExpiryDate time.Time `db:"expiry_date" json:"expiryDate"`

	Status Status `db:"status" json:"status"`

	Items []PrescriptionItem `db:"-" json:"items"`
}

// PrescriptionItem is one prescribed line. QuantityDispensed accumulates
// across dispensing events and never exceeds QuantityPrescribed.
type PrescriptionItem struct {
	ID             id.ID `db:"id" json:"id"`
	PrescriptionID id.ID `db:"prescription_id" json:"prescriptionId"`
	StockUnitID    id.ID `db:"stock_unit_id" json:"stockUnitId"`

	QuantityPrescribed types.Quantity `db:"quantity_prescribed" json:"quantityPrescribed"`
	QuantityDispensed  types.Quantity `db:"quantity_dispensed" json:"quantityDispensed"`

	// SubstitutionAllowed permits dispensing from a different batch
	// than the prescribed one
	SubstitutionAllowed bool `db:"substitution_allowed" json:"substitutionAllowed"`
}

// Remaining returns how much of the item may still be dispensed.
func (i *PrescriptionItem) Remaining() types.Quantity {
	r := i.QuantityPrescribed - i.QuantityDispensed
	if r < 0 {
		return 0
	}
	return r
}

// DispensingEvent records one partial or full dispensing against a
// prescription. SaleID links to the settlement that moved the stock.
type DispensingEvent struct {
	ID             id.ID     `db:"id" json:"id"`
	PrescriptionID id.ID     `db:"prescription_id" json:"prescriptionId"`
	SaleID         id.ID     `db:"sale_id" json:"saleId"`
	DispensedBy    string    `db:"dispensed_by" json:"dispensedBy"`
	DispensedAt    time.Time `db:"dispensed_at" json:"dispensedAt"`

	Notes              string `db:"notes" json:"notes,omitempty"`
	CounselingProvided bool   `db:"counseling_provided" json:"counselingProvided"`

	Lines []DispensingLine `db:"-" json:"lines"`
}

// DispensingLine is one item quantity within a dispensing event.
type DispensingLine struct {
	ID      id.ID `db:"id" json:"id"`
	EventID id.ID `db:"event_id" json:"eventId"`
	ItemID  id.ID `db:"item_id" json:"itemId"`

	// StockUnitID is the batch actually handed out, which differs from
	// the prescribed one when IsSubstitution is set
	StockUnitID    id.ID          `db:"stock_unit_id" json:"stockUnitId"`
	Quantity       types.Quantity `db:"quantity" json:"quantity"`
	IsSubstitution bool           `db:"is_substitution" json:"isSubstitution"`
}

// Validate implements entity.Validatable.
func (p *Prescription) Validate(ctx context.Context) error {
	if p.PatientName == "" {
		return apperror.NewValidation("patient name is required").
			WithDetail("field", "patientName")
	}
	if p.PrescriberName == "" {
		return apperror.NewValidation("prescriber name is required").
			WithDetail("field", "prescriberName")
	}
	if p.IssuedDate.IsZero() {
		return apperror.NewValidation("issued date is required").
			WithDetail("field", "issuedDate")
	}
	if p.ExpiryDate.IsZero() || !p.ExpiryDate.After(p.IssuedDate) {
		return apperror.NewValidation("expiry date must be after the issue date").
			WithDetail("field", "expiryDate")
	}
	if len(p.Items) == 0 {
		return apperror.NewValidation("prescription must have at least one item")
	}
	seen := make(map[id.ID]bool, len(p.Items))
	for _, item := range p.Items {
		if id.IsNil(item.StockUnitID) {
			return apperror.NewValidation("prescription item requires a stock unit")
		}
		if !item.QuantityPrescribed.IsPositive() {
			return apperror.NewValidation("prescribed quantity must be positive").
				WithDetail("stock_unit_id", item.StockUnitID.String())
		}
		if item.QuantityDispensed.IsNegative() || item.QuantityDispensed > item.QuantityPrescribed {
			return apperror.NewValidation("dispensed quantity out of range").
				WithDetail("stock_unit_id", item.StockUnitID.String())
		}
		if seen[item.StockUnitID] {
			return apperror.NewValidation("duplicate stock unit in prescription").
				WithDetail("stock_unit_id", item.StockUnitID.String())
		}
		seen[item.StockUnitID] = true
	}
	return nil
}
