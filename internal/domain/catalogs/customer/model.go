// Package customer provides the Customer catalog.
package customer

import (
	"context"
	"time"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/entity"
	"farmapos/internal/core/types"
)

// Customer holds identity plus the cached sub-ledger balances.
// LoyaltyPoints and CreditBalance are projections of the immutable
// loyalty/credit transaction rows; they are updated only in the same
// transaction that appends the corresponding transaction row, so the
// cache can always be rebuilt by summing the rows.
type Customer struct {
	entity.BaseCatalog

	Name  string `db:"name" json:"name"`
	Phone string `db:"phone" json:"phone,omitempty"`

	// LoyaltyPoints is the cached point balance, never negative
	LoyaltyPoints types.Points `db:"loyalty_points" json:"loyaltyPoints"`

	// CreditBalance is the cached outstanding credit, minor units, never negative
	CreditBalance types.MinorUnits `db:"credit_balance" json:"creditBalance"`

	// CreditLimit caps CreditBalance; zero disables credit sales
	CreditLimit types.MinorUnits `db:"credit_limit" json:"creditLimit"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewCustomer creates a new customer with zero balances.
func NewCustomer(name, phone string, creditLimit types.MinorUnits) *Customer {
	now := time.Now().UTC()
	return &Customer{
		BaseCatalog: entity.NewBaseCatalog(),
		Name:        name,
		Phone:       phone,
		CreditLimit: creditLimit,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AvailableCredit returns the remaining credit headroom.
func (c *Customer) AvailableCredit() types.MinorUnits {
	if c.CreditBalance >= c.CreditLimit {
		return 0
	}
	return c.CreditLimit - c.CreditBalance
}

// Validate implements entity.Validatable.
func (c *Customer) Validate(ctx context.Context) error {
	if c.Name == "" {
		return apperror.NewValidation("customer name is required").
			WithDetail("field", "name")
	}
	if c.LoyaltyPoints.IsNegative() {
		return apperror.NewValidation("loyalty points cannot be negative").
			WithDetail("field", "loyaltyPoints")
	}
	if c.CreditBalance.IsNegative() {
		return apperror.NewValidation("credit balance cannot be negative").
			WithDetail("field", "creditBalance")
	}
	if c.CreditLimit.IsNegative() {
		return apperror.NewValidation("credit limit cannot be negative").
			WithDetail("field", "creditLimit")
	}
	return nil
}
