// Package reports provides read-only reporting over the settlement and
// stock data. Reports aggregate committed rows; they never lock.
package reports

import (
	"time"

	"farmapos/internal/core/id"
	"farmapos/internal/core/types"
)

// --- Sales Summary Report ---

// SalesSummaryFilter bounds the sales summary period.
type SalesSummaryFilter struct {
	FromDate time.Time
	ToDate   time.Time

	// CustomerID limits the report to one customer
	CustomerID *id.ID
}

// PaymentMethodSummary is one payment method's share of the period.
type PaymentMethodSummary struct {
	PaymentMethod string           `json:"paymentMethod"`
	Count         int              `json:"count"`
	Total         types.MinorUnits `json:"total"`
}

// SalesSummaryReport aggregates completed sales over a period. Voided
// sales are counted separately; their compensating movements already
// cancelled the stock and ledger effects.
type SalesSummaryReport struct {
	FromDate time.Time `json:"fromDate"`
	ToDate   time.Time `json:"toDate"`

	SaleCount     int              `json:"saleCount"`
	VoidedCount   int              `json:"voidedCount"`
	Subtotal      types.MinorUnits `json:"subtotal"`
	Discount      types.MinorUnits `json:"discount"`
	RuleDiscount  types.MinorUnits `json:"ruleDiscount"`
	PointDiscount types.MinorUnits `json:"pointDiscount"`
	Total         types.MinorUnits `json:"total"`
	PointsEarned  types.Points     `json:"pointsEarned"`

	ByPaymentMethod []PaymentMethodSummary `json:"byPaymentMethod"`
}

// --- Stock Valuation Report ---

// StockValuationFilter selects the stock units to value.
type StockValuationFilter struct {
	ExcludeZero    bool
	ControlledOnly bool

	Limit  int
	Offset int
}

// StockValuationItem is one batch valued at its weighted average cost.
type StockValuationItem struct {
	StockUnitID  id.ID            `json:"stockUnitId"`
	MedicineName string           `json:"medicineName"`
	BatchNumber  string           `json:"batchNumber"`
	ExpiryDate   time.Time        `json:"expiryDate"`
	OnHand       types.Quantity   `json:"onHand"`
	UnitCost     types.MinorUnits `json:"unitCost"`
	TotalCost    types.MinorUnits `json:"totalCost"`
	Controlled   bool             `json:"controlled"`
}

// StockValuationReport values current stock at cost.
type StockValuationReport struct {
	AsOfDate   time.Time            `json:"asOfDate"`
	Items      []StockValuationItem `json:"items"`
	TotalItems int                  `json:"totalItems"`

	TotalQuantity types.Quantity   `json:"totalQuantity"`
	TotalCost     types.MinorUnits `json:"totalCost"`
}

// --- Stock Turnover Report ---

// StockTurnoverFilter bounds the turnover period.
type StockTurnoverFilter struct {
	FromDate time.Time
	ToDate   time.Time

	// StockUnitIDs limits the report to specific batches
	StockUnitIDs []id.ID

	IncludeZero bool

	Limit  int
	Offset int
}

// StockTurnoverItem is one batch's movement over the period.
type StockTurnoverItem struct {
	StockUnitID    id.ID          `json:"stockUnitId"`
	MedicineName   string         `json:"medicineName"`
	BatchNumber    string         `json:"batchNumber"`
	OpeningBalance types.Quantity `json:"openingBalance"`
	Receipt        types.Quantity `json:"receipt"`
	Expense        types.Quantity `json:"expense"`
	ClosingBalance types.Quantity `json:"closingBalance"`
}

// StockTurnoverReport shows opening, in, out and closing per batch.
// Closing is derived from the movement rows, so a mismatch against the
// cached on-hand quantity indicates a broken invariant.
type StockTurnoverReport struct {
	FromDate   time.Time           `json:"fromDate"`
	ToDate     time.Time           `json:"toDate"`
	Items      []StockTurnoverItem `json:"items"`
	TotalItems int                 `json:"totalItems"`

	TotalReceipt types.Quantity `json:"totalReceipt"`
	TotalExpense types.Quantity `json:"totalExpense"`
}
