// Package settlement implements the transactional settlement engine.
// Every sale, dispense, void and goods receipt commits its document,
// the stock register, the controlled register and the customer
// sub-ledgers in one database transaction or not at all.
package settlement

import (
	"context"
	"time"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/entity"
	"farmapos/internal/core/id"
	"farmapos/internal/core/types"
)

// SaleStatus is the lifecycle state of a sale document.
type SaleStatus string

const (
	SaleCompleted SaleStatus = "COMPLETED"
	SaleVoided    SaleStatus = "VOIDED"
)

// PaymentMethod identifies how a sale was paid.
type PaymentMethod string

const (
	PayCash   PaymentMethod = "CASH"
	PayCard   PaymentMethod = "CARD"
	PayCredit PaymentMethod = "CREDIT"
	PayMobile PaymentMethod = "MOBILE"
)

// Valid reports whether the payment method is known.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PayCash, PayCard, PayCredit, PayMobile:
		return true
	}
	return false
}

// SaleKind distinguishes regular counter sales from prescription
// dispensings, which settle through the same engine.
type SaleKind string

const (
	KindSale     SaleKind = "SALE"
	KindDispense SaleKind = "DISPENSE"
)

// Sale is the settlement document. Amounts are captured at settlement
// time so the document stays a faithful snapshot even after catalog
// prices change.
type Sale struct {
	entity.Document

	Kind   SaleKind   `db:"kind" json:"kind"`
	Status SaleStatus `db:"status" json:"status"`

	// CustomerID is nil for walk-in sales
	CustomerID *id.ID `db:"customer_id" json:"customerId,omitempty"`

	// PatientName is required when any line is a controlled substance
	PatientName string `db:"patient_name" json:"patientName,omitempty"`

	// PrescriptionID links a dispense settlement to its prescription
	PrescriptionID *id.ID `db:"prescription_id" json:"prescriptionId,omitempty"`

	PaymentMethod PaymentMethod `db:"payment_method" json:"paymentMethod"`

	// Subtotal is the sum of line totals before discounts
	Subtotal types.MinorUnits `db:"subtotal" json:"subtotal"`

	// Discount is the manual discount entered at the counter
	Discount types.MinorUnits `db:"discount" json:"discount"`

	// RuleDiscount is the discount granted by the winning pricing rule
	RuleDiscount types.MinorUnits `db:"rule_discount" json:"ruleDiscount"`

	// RuleName records which pricing rule granted the discount
	RuleName string `db:"rule_name" json:"ruleName,omitempty"`

	// PointsRedeemed and PointsDiscount capture loyalty redemption
	PointsRedeemed types.Points     `db:"points_redeemed" json:"pointsRedeemed"`
	PointsDiscount types.MinorUnits `db:"points_discount" json:"pointsDiscount"`

	// Total is the amount actually charged
	Total types.MinorUnits `db:"total" json:"total"`

	// PointsEarned on the final total, reversed if the sale is voided
	PointsEarned types.Points `db:"points_earned" json:"pointsEarned"`

	// Void audit trail
	VoidedAt   *time.Time `db:"voided_at" json:"voidedAt,omitempty"`
	VoidedBy   string     `db:"voided_by" json:"voidedBy,omitempty"`
	VoidReason string     `db:"void_reason" json:"voidReason,omitempty"`

	Lines []SaleLine `db:"-" json:"lines"`
}

// SaleLine is one settled item with its price snapshot.
type SaleLine struct {
	ID     id.ID `db:"id" json:"id"`
	SaleID id.ID `db:"sale_id" json:"saleId"`

	StockUnitID  id.ID  `db:"stock_unit_id" json:"stockUnitId"`
	MedicineName string `db:"medicine_name" json:"medicineName"`
	BatchNumber  string `db:"batch_number" json:"batchNumber"`

	Quantity  types.Quantity   `db:"quantity" json:"quantity"`
	UnitPrice types.MinorUnits `db:"unit_price" json:"unitPrice"`
	LineTotal types.MinorUnits `db:"line_total" json:"lineTotal"`

	// Controlled marks lines that produced a register entry
	Controlled bool `db:"controlled" json:"controlled"`
}

// IsVoided reports whether the sale has been reversed.
func (s *Sale) IsVoided() bool {
	return s.Status == SaleVoided
}

// LineRequest is one requested item of a sale.
type LineRequest struct {
	StockUnitID id.ID          `json:"stockUnitId" binding:"required"`
	Quantity    types.Quantity `json:"quantity" binding:"required,gt=0"`
}

// SaleRequest describes a counter sale to settle.
type SaleRequest struct {
	Lines         []LineRequest `json:"lines" binding:"required,min=1,dive"`
	CustomerID    *id.ID        `json:"customerId,omitempty"`
	PaymentMethod PaymentMethod `json:"paymentMethod" binding:"required"`

	// Discount is a manual discount applied to the whole sale
	Discount types.MinorUnits `json:"discount,omitempty"`

	// RedeemPoints is how many loyalty points to apply as a discount
	RedeemPoints types.Points `json:"redeemPoints,omitempty"`

	// PatientName is mandatory when a controlled line is present
	PatientName string `json:"patientName,omitempty"`

	Comment string `json:"comment,omitempty"`
}

// Validate checks request shape; stock and balance checks happen later,
// under locks, inside the settlement transaction.
func (r *SaleRequest) Validate(ctx context.Context) error {
	if len(r.Lines) == 0 {
		return apperror.NewValidation("sale must have at least one line")
	}
	seen := make(map[id.ID]bool, len(r.Lines))
	for _, line := range r.Lines {
		if id.IsNil(line.StockUnitID) {
			return apperror.NewValidation("line requires a stock unit")
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("line quantity must be positive").
				WithDetail("stock_unit_id", line.StockUnitID.String())
		}
		if seen[line.StockUnitID] {
			return apperror.NewValidation("duplicate stock unit in sale").
				WithDetail("stock_unit_id", line.StockUnitID.String())
		}
		seen[line.StockUnitID] = true
	}
	if !r.PaymentMethod.Valid() {
		return apperror.NewValidation("unknown payment method").
			WithDetail("payment_method", string(r.PaymentMethod))
	}
	if r.Discount.IsNegative() {
		return apperror.NewValidation("discount cannot be negative")
	}
	if r.RedeemPoints.IsNegative() {
		return apperror.NewValidation("redeemed points cannot be negative")
	}
	if r.RedeemPoints.IsPositive() && r.CustomerID == nil {
		return apperror.NewValidation("point redemption requires a customer")
	}
	if r.PaymentMethod == PayCredit && r.CustomerID == nil {
		return apperror.NewValidation("credit payment requires a customer")
	}
	return nil
}

// DispenseLineRequest asks for a quantity of one prescription item.
// StockUnitID is optional; when set to a different batch than the
// prescribed one it requests a substitution.
type DispenseLineRequest struct {
	PrescriptionItemID id.ID          `json:"prescriptionItemId" binding:"required"`
	StockUnitID        id.ID          `json:"stockUnitId,omitempty"`
	Quantity           types.Quantity `json:"quantity" binding:"required,gt=0"`
}

// DispenseRequest describes a prescription dispensing to settle.
type DispenseRequest struct {
	PrescriptionID id.ID `json:"prescriptionId" binding:"required"`

	Items []DispenseLineRequest `json:"items" binding:"required,min=1,dive"`

	CustomerID    *id.ID           `json:"customerId,omitempty"`
	PaymentMethod PaymentMethod    `json:"paymentMethod" binding:"required"`
	Discount      types.MinorUnits `json:"discount,omitempty"`
	RedeemPoints  types.Points     `json:"redeemPoints,omitempty"`

	Notes              string `json:"notes,omitempty"`
	CounselingProvided bool   `json:"counselingProvided,omitempty"`
}

// ReceiveRequest describes a goods intake.
type ReceiveRequest struct {
	StockUnitID id.ID            `json:"stockUnitId" binding:"required"`
	Quantity    types.Quantity   `json:"quantity" binding:"required,gt=0"`
	UnitCost    types.MinorUnits `json:"unitCost" binding:"gte=0"`

	SupplierName string `json:"supplierName" binding:"required"`
	InvoiceRef   string `json:"invoiceRef,omitempty"`
	Comment      string `json:"comment,omitempty"`
}

// GoodsReceipt is the intake document backing receipt movements.
type GoodsReceipt struct {
	entity.Document

	StockUnitID  id.ID            `db:"stock_unit_id" json:"stockUnitId"`
	Quantity     types.Quantity   `db:"quantity" json:"quantity"`
	UnitCost     types.MinorUnits `db:"unit_cost" json:"unitCost"`
	SupplierName string           `db:"supplier_name" json:"supplierName"`
	InvoiceRef   string           `db:"invoice_ref" json:"invoiceRef,omitempty"`
}
