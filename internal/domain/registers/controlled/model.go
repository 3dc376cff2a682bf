// Package controlled provides the controlled-substance register:
// an append-only, balance-chained ledger per stock unit used for
// regulatory reconciliation.
package controlled

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/id"
	"farmapos/internal/core/types"
)

// EntryType classifies a register entry.
type EntryType string

const (
	EntryReceipt     EntryType = "RECEIPT"
	EntrySale        EntryType = "SALE"
	EntryDispense    EntryType = "DISPENSE"
	EntryTransferIn  EntryType = "TRANSFER_IN"
	EntryTransferOut EntryType = "TRANSFER_OUT"
	EntryAdjustment  EntryType = "ADJUSTMENT"
	EntryDestruction EntryType = "DESTRUCTION"
	EntryReturn      EntryType = "RETURN"
)

// direction reports which quantity side an entry type uses.
// in=true means quantityIn must be positive, out=true means quantityOut.
// Adjustments may go either way.
func (t EntryType) direction() (in, out bool) {
	switch t {
	case EntryReceipt, EntryTransferIn, EntryReturn:
		return true, false
	case EntrySale, EntryDispense, EntryTransferOut, EntryDestruction:
		return false, true
	case EntryAdjustment:
		return true, true
	}
	return false, false
}

// EntryContext carries the fields whose presence depends on the entry
// type. Each type has its own struct so required-field validation is
// enforced by the shape rather than scattered nil checks.
type EntryContext interface {
	// EntryType returns the entry type this context belongs to.
	EntryType() EntryType

	// Validate checks the type-specific required fields.
	Validate() error
}

// SaleContext identifies the patient for SALE entries.
type SaleContext struct {
	PatientName    string `json:"patientName"`
	PatientID      string `json:"patientId,omitempty"`
	PrescriberName string `json:"prescriberName,omitempty"`
}

func (c SaleContext) EntryType() EntryType { return EntrySale }

func (c SaleContext) Validate() error {
	if c.PatientName == "" {
		return apperror.NewValidation("patient name is required for sale entries").
			WithDetail("field", "patientName")
	}
	return nil
}

// DispenseContext identifies patient and prescription for DISPENSE entries.
type DispenseContext struct {
	PatientName        string `json:"patientName"`
	PrescriberName     string `json:"prescriberName"`
	PrescriptionNumber string `json:"prescriptionNumber"`
}

func (c DispenseContext) EntryType() EntryType { return EntryDispense }

func (c DispenseContext) Validate() error {
	if c.PatientName == "" {
		return apperror.NewValidation("patient name is required for dispense entries").
			WithDetail("field", "patientName")
	}
	if c.PrescriptionNumber == "" {
		return apperror.NewValidation("prescription number is required for dispense entries").
			WithDetail("field", "prescriptionNumber")
	}
	return nil
}

// ReceiptContext identifies the supplier for RECEIPT entries.
type ReceiptContext struct {
	SupplierName string `json:"supplierName"`
	InvoiceRef   string `json:"invoiceRef,omitempty"`
}

func (c ReceiptContext) EntryType() EntryType { return EntryReceipt }

func (c ReceiptContext) Validate() error {
	if c.SupplierName == "" {
		return apperror.NewValidation("supplier name is required for receipt entries").
			WithDetail("field", "supplierName")
	}
	return nil
}

// TransferInContext identifies the sending facility.
type TransferInContext struct {
	SupplierName string `json:"supplierName"`
	FacilityName string `json:"facilityName,omitempty"`
}

func (c TransferInContext) EntryType() EntryType { return EntryTransferIn }

func (c TransferInContext) Validate() error {
	if c.SupplierName == "" {
		return apperror.NewValidation("supplier name is required for transfer-in entries").
			WithDetail("field", "supplierName")
	}
	return nil
}

// TransferOutContext identifies the receiving facility.
type TransferOutContext struct {
	FacilityName string `json:"facilityName"`
}

func (c TransferOutContext) EntryType() EntryType { return EntryTransferOut }

func (c TransferOutContext) Validate() error {
	if c.FacilityName == "" {
		return apperror.NewValidation("facility name is required for transfer-out entries").
			WithDetail("field", "facilityName")
	}
	return nil
}

// AdjustmentContext documents the reason for count corrections.
type AdjustmentContext struct {
	Reason string `json:"reason"`
}

func (c AdjustmentContext) EntryType() EntryType { return EntryAdjustment }

func (c AdjustmentContext) Validate() error {
	if c.Reason == "" {
		return apperror.NewValidation("reason is required for adjustment entries").
			WithDetail("field", "reason")
	}
	return nil
}

// DestructionContext documents witnessed destruction.
type DestructionContext struct {
	WitnessName string `json:"witnessName"`
	WitnessRole string `json:"witnessRole"`
	Method      string `json:"method"`
}

func (c DestructionContext) EntryType() EntryType { return EntryDestruction }

func (c DestructionContext) Validate() error {
	if c.WitnessName == "" {
		return apperror.NewValidation("witness name is required for destruction entries").
			WithDetail("field", "witnessName")
	}
	if c.WitnessRole == "" {
		return apperror.NewValidation("witness role is required for destruction entries").
			WithDetail("field", "witnessRole")
	}
	if c.Method == "" {
		return apperror.NewValidation("destruction method is required").
			WithDetail("field", "method")
	}
	return nil
}

// ReturnContext identifies the patient returning stock.
type ReturnContext struct {
	PatientName string `json:"patientName"`
	Reason      string `json:"reason,omitempty"`
}

func (c ReturnContext) EntryType() EntryType { return EntryReturn }

func (c ReturnContext) Validate() error {
	if c.PatientName == "" {
		return apperror.NewValidation("patient name is required for return entries").
			WithDetail("field", "patientName")
	}
	return nil
}

// DecodeContext rebuilds a typed context from its stored JSON form.
func DecodeContext(entryType EntryType, data []byte) (EntryContext, error) {
	var (
		c   EntryContext
		err error
	)
	switch entryType {
	case EntrySale:
		v := SaleContext{}
		err = json.Unmarshal(data, &v)
		c = v
	case EntryDispense:
		v := DispenseContext{}
		err = json.Unmarshal(data, &v)
		c = v
	case EntryReceipt:
		v := ReceiptContext{}
		err = json.Unmarshal(data, &v)
		c = v
	case EntryTransferIn:
		v := TransferInContext{}
		err = json.Unmarshal(data, &v)
		c = v
	case EntryTransferOut:
		v := TransferOutContext{}
		err = json.Unmarshal(data, &v)
		c = v
	case EntryAdjustment:
		v := AdjustmentContext{}
		err = json.Unmarshal(data, &v)
		c = v
	case EntryDestruction:
		v := DestructionContext{}
		err = json.Unmarshal(data, &v)
		c = v
	case EntryReturn:
		v := ReturnContext{}
		err = json.Unmarshal(data, &v)
		c = v
	default:
		return nil, fmt.Errorf("unknown entry type %q", entryType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s context: %w", entryType, err)
	}
	return c, nil
}

// RegisterEntry is one immutable row of the register. Entries are never
// edited or deleted; verification only sets VerifiedBy/VerifiedAt and
// does not touch the balance chain.
type RegisterEntry struct {
	ID id.ID `db:"id" json:"id"`

	// StockUnitID is the controlled batch this entry belongs to
	StockUnitID id.ID `db:"stock_unit_id" json:"stockUnitId"`

	// EntryNo is monotonic per stock unit, assigned at append time
	EntryNo int64 `db:"entry_no" json:"entryNo"`

	Type EntryType `db:"entry_type" json:"type"`

	QuantityIn  types.Quantity `db:"quantity_in" json:"quantityIn"`
	QuantityOut types.Quantity `db:"quantity_out" json:"quantityOut"`

	// BalanceBefore of entry N+1 must equal BalanceAfter of entry N.
	BalanceBefore types.Quantity `db:"balance_before" json:"balanceBefore"`
	BalanceAfter  types.Quantity `db:"balance_after" json:"balanceAfter"`

	// Context holds the type-specific fields (patient, supplier, witness)
	Context EntryContext `db:"-" json:"context"`

	RecordedBy string     `db:"recorded_by" json:"recordedBy"`
	VerifiedBy *string    `db:"verified_by" json:"verifiedBy,omitempty"`
	VerifiedAt *time.Time `db:"verified_at" json:"verifiedAt,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// IsVerified reports whether a second operator has counter-signed the entry.
func (e *RegisterEntry) IsVerified() bool {
	return e.VerifiedBy != nil
}

// AppendRequest describes a new register entry before balances are assigned.
type AppendRequest struct {
	StockUnitID id.ID
	Type        EntryType
	QuantityIn  types.Quantity
	QuantityOut types.Quantity
	Context     EntryContext
	RecordedBy  string
	Period      time.Time
}

// Validate checks everything that does not require the current balance.
func (r *AppendRequest) Validate(ctx context.Context) error {
	if id.IsNil(r.StockUnitID) {
		return apperror.NewValidation("stock unit is required").
			WithDetail("field", "stockUnitId")
	}
	if r.RecordedBy == "" {
		return apperror.NewValidation("recording operator is required").
			WithDetail("field", "recordedBy")
	}
	if r.QuantityIn.IsNegative() || r.QuantityOut.IsNegative() {
		return apperror.NewValidation("quantities cannot be negative")
	}
	if r.QuantityIn.IsZero() && r.QuantityOut.IsZero() {
		return apperror.NewValidation("entry must move some quantity")
	}

	wantIn, wantOut := r.Type.direction()
	if !wantIn && !wantOut {
		return apperror.NewValidation("unknown entry type").
			WithDetail("type", string(r.Type))
	}
	if !wantIn && r.QuantityIn.IsPositive() {
		return apperror.NewValidation(fmt.Sprintf("%s entries cannot increase the balance", r.Type)).
			WithDetail("type", string(r.Type))
	}
	if !wantOut && r.QuantityOut.IsPositive() {
		return apperror.NewValidation(fmt.Sprintf("%s entries cannot decrease the balance", r.Type)).
			WithDetail("type", string(r.Type))
	}

	if r.Context == nil {
		return apperror.NewValidation("entry context is required").
			WithDetail("type", string(r.Type))
	}
	if r.Context.EntryType() != r.Type {
		return apperror.NewValidation("entry context does not match entry type").
			WithDetail("type", string(r.Type)).
			WithDetail("context_type", string(r.Context.EntryType()))
	}
	return r.Context.Validate()
}
