package customer

import (
	"context"

	"farmapos/internal/core/id"
	"farmapos/internal/core/types"
)

// ListFilter contains filtering options for customer queries.
type ListFilter struct {
	Search         string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// Repository defines persistence operations for the customer catalog.
type Repository interface {
	// Create inserts a new customer.
	Create(ctx context.Context, c *Customer) error

	// Update saves catalog fields with optimistic version check.
	// Cached balances are not written here.
	Update(ctx context.Context, c *Customer) error

	// GetByID retrieves a customer.
	GetByID(ctx context.Context, customerID id.ID) (*Customer, error)

	// GetByIDForUpdate retrieves a customer with a row lock.
	// Must be called within a transaction.
	GetByIDForUpdate(ctx context.Context, customerID id.ID) (*Customer, error)

	// List retrieves customers with filtering.
	List(ctx context.Context, filter ListFilter) ([]*Customer, error)

	// UpdateBalances writes the cached loyalty/credit balances.
	// Called only by the customer ledger service inside the transaction
	// that appends the backing transaction rows.
	UpdateBalances(ctx context.Context, customerID id.ID, points types.Points, credit types.MinorUnits) error

	// SetDeletionMark toggles the soft-delete flag.
	SetDeletionMark(ctx context.Context, customerID id.ID, marked bool) error
}
