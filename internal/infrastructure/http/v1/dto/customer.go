package dto

import (
	"time"

	"farmapos/internal/core/types"
	"farmapos/internal/domain/catalogs/customer"
	custledger "farmapos/internal/domain/ledgers/customer"
)

// --- Customer DTOs ---

// CustomerResponse represents a customer card in API responses.
type CustomerResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone,omitempty"`
	LoyaltyPoints int64     `json:"loyaltyPoints"`
	CreditBalance int64     `json:"creditBalance"`
	CreditLimit   int64     `json:"creditLimit"`
	CreditAvail   int64     `json:"creditAvailable"`
	DeletionMark  bool      `json:"deletionMark"`
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// FromCustomer converts entity to response DTO.
func FromCustomer(c *customer.Customer) CustomerResponse {
	return CustomerResponse{
		ID:            c.ID.String(),
		Name:          c.Name,
		Phone:         c.Phone,
		LoyaltyPoints: c.LoyaltyPoints.Int64(),
		CreditBalance: int64(c.CreditBalance),
		CreditLimit:   int64(c.CreditLimit),
		CreditAvail:   int64(c.AvailableCredit()),
		DeletionMark:  c.DeletionMark,
		Version:       c.Version,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

// FromCustomers converts a slice of entities.
func FromCustomers(customers []*customer.Customer) []CustomerResponse {
	out := make([]CustomerResponse, len(customers))
	for i, c := range customers {
		out[i] = FromCustomer(c)
	}
	return out
}

// CreateCustomerRequest for registering a customer card.
type CreateCustomerRequest struct {
	Name        string `json:"name" binding:"required"`
	Phone       string `json:"phone,omitempty"`
	CreditLimit int64  `json:"creditLimit" binding:"gte=0"`
}

// ToCustomer builds a catalog entity from the request.
func (r CreateCustomerRequest) ToCustomer() *customer.Customer {
	return customer.NewCustomer(r.Name, r.Phone, types.MinorUnits(r.CreditLimit))
}

// UpdateCustomerRequest for editing card details. Point and credit
// balances are ledger projections and cannot be edited here.
type UpdateCustomerRequest struct {
	Name        *string `json:"name"`
	Phone       *string `json:"phone"`
	CreditLimit *int64  `json:"creditLimit"`
	Version     int     `json:"version" binding:"required,min=1"`
}

// Apply copies the provided fields onto the entity.
func (r UpdateCustomerRequest) Apply(c *customer.Customer) {
	if r.Name != nil {
		c.Name = *r.Name
	}
	if r.Phone != nil {
		c.Phone = *r.Phone
	}
	if r.CreditLimit != nil {
		c.CreditLimit = types.MinorUnits(*r.CreditLimit)
	}
	c.Version = r.Version
}

// --- Ledger DTOs ---

// LoyaltyTransactionResponse is one loyalty ledger row.
type LoyaltyTransactionResponse struct {
	ID           string    `json:"id"`
	Delta        int64     `json:"delta"`
	BalanceAfter int64     `json:"balanceAfter"`
	Reason       string    `json:"reason"`
	RecorderID   string    `json:"recorderId,omitempty"`
	RecorderType string    `json:"recorderType,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FromLoyaltyTransactions converts ledger rows to response DTOs.
func FromLoyaltyTransactions(txs []*custledger.LoyaltyTransaction) []LoyaltyTransactionResponse {
	out := make([]LoyaltyTransactionResponse, len(txs))
	for i, t := range txs {
		out[i] = LoyaltyTransactionResponse{
			ID:           t.ID.String(),
			Delta:        t.Delta.Int64(),
			BalanceAfter: t.BalanceAfter.Int64(),
			Reason:       string(t.Reason),
			RecorderID:   t.RecorderID.String(),
			RecorderType: t.RecorderType,
			CreatedAt:    t.CreatedAt,
		}
	}
	return out
}

// CreditTransactionResponse is one credit ledger row.
type CreditTransactionResponse struct {
	ID           string    `json:"id"`
	Delta        int64     `json:"delta"`
	BalanceAfter int64     `json:"balanceAfter"`
	Reason       string    `json:"reason"`
	RecorderID   string    `json:"recorderId,omitempty"`
	RecorderType string    `json:"recorderType,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FromCreditTransactions converts ledger rows to response DTOs.
func FromCreditTransactions(txs []*custledger.CreditTransaction) []CreditTransactionResponse {
	out := make([]CreditTransactionResponse, len(txs))
	for i, t := range txs {
		out[i] = CreditTransactionResponse{
			ID:           t.ID.String(),
			Delta:        int64(t.Delta),
			BalanceAfter: int64(t.BalanceAfter),
			Reason:       string(t.Reason),
			RecorderID:   t.RecorderID.String(),
			RecorderType: t.RecorderType,
			CreatedAt:    t.CreatedAt,
		}
	}
	return out
}

// LedgerVerifyResponse reports a projection consistency check.
type LedgerVerifyResponse struct {
	CustomerID   string `json:"customerId"`
	Consistent   bool   `json:"consistent"`
	CachedPoints int64  `json:"cachedPoints"`
	LedgerPoints int64  `json:"ledgerPoints"`
	CachedCredit int64  `json:"cachedCredit"`
	LedgerCredit int64  `json:"ledgerCredit"`
}
