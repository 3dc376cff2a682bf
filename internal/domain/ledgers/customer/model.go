// Package customer provides the loyalty and store-credit sub-ledgers.
// Both are append-only transaction logs; the cached balances on the
// customer card are projections that the ledger keeps in step inside
// the same transaction.
package customer

import (
	"time"

	"farmapos/internal/core/id"
	"farmapos/internal/core/types"
)

// LoyaltyReason classifies what produced a loyalty movement.
type LoyaltyReason string

const (
	LoyaltyEarned   LoyaltyReason = "EARNED"
	LoyaltyRedeemed LoyaltyReason = "REDEEMED"
	LoyaltyVoided   LoyaltyReason = "VOIDED"
	LoyaltyAdjusted LoyaltyReason = "ADJUSTED"
)

// LoyaltyTransaction is one immutable loyalty movement. Delta is signed:
// positive earns, negative redeems.
type LoyaltyTransaction struct {
	ID           id.ID         `db:"id" json:"id"`
	CustomerID   id.ID         `db:"customer_id" json:"customerId"`
	Delta        types.Points  `db:"delta" json:"delta"`
	BalanceAfter types.Points  `db:"balance_after" json:"balanceAfter"`
	Reason       LoyaltyReason `db:"reason" json:"reason"`

	// RecorderID links back to the sale or void that produced the movement
	RecorderID   id.ID  `db:"recorder_id" json:"recorderId"`
	RecorderType string `db:"recorder_type" json:"recorderType"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// CreditReason classifies what produced a credit movement.
type CreditReason string

const (
	CreditCharge  CreditReason = "CHARGE"
	CreditPayment CreditReason = "PAYMENT"
	CreditVoided  CreditReason = "VOIDED"
)

// CreditTransaction is one immutable store-credit movement. Delta is
// signed in debt terms: positive increases what the customer owes.
type CreditTransaction struct {
	ID           id.ID            `db:"id" json:"id"`
	CustomerID   id.ID            `db:"customer_id" json:"customerId"`
	Delta        types.MinorUnits `db:"delta" json:"delta"`
	BalanceAfter types.MinorUnits `db:"balance_after" json:"balanceAfter"`
	Reason       CreditReason     `db:"reason" json:"reason"`

	RecorderID   id.ID  `db:"recorder_id" json:"recorderId"`
	RecorderType string `db:"recorder_type" json:"recorderType"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
